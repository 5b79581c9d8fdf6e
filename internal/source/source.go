// Package source supplies raw documents to the indexing pipeline. The
// filesystem implementation walks a vault directory for Markdown
// files; transient read failures are retried with backoff.
package source

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	verrors "github.com/vaultscope/vaultscope/internal/errors"
)

// DocumentInfo describes a document without its content.
type DocumentInfo struct {
	// Path is the vault-relative path, slash-separated.
	Path         string
	LastModified time.Time
	Size         int64
}

// Document is a document with its content.
type Document struct {
	DocumentInfo
	Text string
}

// Source lists and fetches documents.
type Source interface {
	List(ctx context.Context) ([]DocumentInfo, error)
	Get(ctx context.Context, path string) (*Document, error)
}

// Default per-call timeout for source operations.
const DefaultTimeout = 30 * time.Second

// FSSource reads Markdown documents from a vault directory.
type FSSource struct {
	root    string
	timeout time.Duration
	retry   verrors.RetryConfig
	logger  *slog.Logger
}

var _ Source = (*FSSource)(nil)

// FSOption configures an FSSource.
type FSOption func(*FSSource)

// WithTimeout sets the per-call timeout.
func WithTimeout(d time.Duration) FSOption {
	return func(s *FSSource) { s.timeout = d }
}

// WithRetryConfig overrides the retry policy.
func WithRetryConfig(cfg verrors.RetryConfig) FSOption {
	return func(s *FSSource) { s.retry = cfg }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) FSOption {
	return func(s *FSSource) { s.logger = logger }
}

// NewFSSource creates a source rooted at the vault directory.
func NewFSSource(root string, opts ...FSOption) (*FSSource, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "resolve vault path", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeSourceNotFound, "vault directory not found: "+abs, err)
	}
	if !info.IsDir() {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "vault path is not a directory: "+abs, nil)
	}

	s := &FSSource{
		root:    abs,
		timeout: DefaultTimeout,
		retry:   verrors.DefaultRetryConfig(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the absolute vault directory.
func (s *FSSource) Root() string {
	return s.root
}

func isMarkdown(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".md" || ext == ".markdown"
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".")
}

// List walks the vault and returns every Markdown document. Hidden
// directories and files are skipped. Unreadable entries are logged
// and skipped rather than failing the walk.
func (s *FSSource) List(ctx context.Context) ([]DocumentInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var docs []DocumentInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			s.logger.Warn("skipping unreadable entry", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != s.root && isHidden(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if isHidden(d.Name()) || !isMarkdown(d.Name()) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			s.logger.Warn("skipping file, stat failed", "path", path, "error", err)
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return nil
		}
		docs = append(docs, DocumentInfo{
			Path:         filepath.ToSlash(rel),
			LastModified: info.ModTime(),
			Size:         info.Size(),
		})
		return nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, verrors.New(verrors.ErrCodeSourceTimeout, "vault listing timed out", err)
		}
		return nil, verrors.New(verrors.ErrCodeSourceUnavailable, "vault listing failed", err)
	}
	return docs, nil
}

// Get reads one document by its vault-relative path, retrying
// transient failures with backoff.
func (s *FSSource) Get(ctx context.Context, path string) (*Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	full := filepath.Join(s.root, filepath.FromSlash(path))

	return verrors.RetryWithResult(ctx, s.retry, func() (*Document, error) {
		info, err := os.Stat(full)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, verrors.New(verrors.ErrCodeSourceNotFound, "document not found: "+path, err)
			}
			return nil, verrors.New(verrors.ErrCodeSourceUnavailable, "stat failed: "+path, err)
		}

		data, err := os.ReadFile(full)
		if err != nil {
			if os.IsPermission(err) {
				return nil, verrors.New(verrors.ErrCodeSourceUnreadable, "document unreadable: "+path, err)
			}
			return nil, verrors.New(verrors.ErrCodeSourceUnavailable, "read failed: "+path, err)
		}

		return &Document{
			DocumentInfo: DocumentInfo{
				Path:         path,
				LastModified: info.ModTime(),
				Size:         info.Size(),
			},
			Text: string(data),
		}, nil
	})
}
