package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
)

// KeywordIndex wraps bleve for BM25 keyword retrieval over chunk text.
type KeywordIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	closed bool
}

// keywordDocument is the bleve document shape.
type keywordDocument struct {
	Content string `json:"content"`
	Path    string `json:"path"`
}

// NewKeywordIndex opens or creates a bleve index at path. An empty
// path creates an in-memory index. A corrupt on-disk index is cleared
// and recreated; the caller must reindex afterwards.
func NewKeywordIndex(path string) (*KeywordIndex, error) {
	indexMapping := createKeywordMapping()

	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
		if validErr := validateKeywordIndex(path); validErr != nil {
			slog.Warn("keyword index corrupt, clearing",
				"path", path, "error", validErr)
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("clear corrupt keyword index: %w", removeErr)
			}
		}

		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		} else if err != nil && isBleveCorruption(err) {
			slog.Warn("keyword index open failed, recreating",
				"path", path, "error", err)
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("clear corrupt keyword index: %w", removeErr)
			}
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open keyword index: %w", err)
	}

	return &KeywordIndex{index: idx, path: path}, nil
}

// createKeywordMapping builds the index mapping. Notes are English
// prose, so the stock english analyzer (stemming plus stop words)
// fits better than per-character tokenization.
func createKeywordMapping() *mapping.IndexMappingImpl {
	contentField := bleve.NewTextFieldMapping()
	contentField.Analyzer = en.AnalyzerName

	pathField := bleve.NewTextFieldMapping()
	pathField.Analyzer = "keyword"
	pathField.IncludeInAll = false

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("content", contentField)
	docMapping.AddFieldMappingsAt("path", pathField)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = en.AnalyzerName
	return indexMapping
}

// validateKeywordIndex checks basic on-disk integrity before opening.
func validateKeywordIndex(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	metaPath := filepath.Join(path, "index_meta.json")
	info, err := os.Stat(metaPath)
	if os.IsNotExist(err) {
		return fmt.Errorf("index_meta.json missing")
	}
	if err != nil {
		return fmt.Errorf("stat index_meta.json: %w", err)
	}
	if info.Size() == 0 {
		return fmt.Errorf("index_meta.json is empty")
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return fmt.Errorf("read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json unparseable: %w", err)
	}
	return nil
}

func isBleveCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unexpected end of JSON") ||
		strings.Contains(msg, "error parsing mapping JSON") ||
		strings.Contains(msg, "failed to load segment") ||
		strings.Contains(msg, "error opening bolt") ||
		err == bleve.ErrorIndexMetaCorrupt
}

// Index adds chunk texts to the index in one batch.
func (k *KeywordIndex) Index(ctx context.Context, ids []string, texts []string, paths []string) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(texts) || len(ids) != len(paths) {
		return fmt.Errorf("ids, texts, and paths length mismatch")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := k.index.NewBatch()
	for i, id := range ids {
		doc := keywordDocument{Content: texts[i], Path: paths[i]}
		if err := batch.Index(id, doc); err != nil {
			return fmt.Errorf("index chunk %s: %w", id, err)
		}
	}
	return k.index.Batch(batch)
}

// Search returns BM25 hits for the query text.
func (k *KeywordIndex) Search(ctx context.Context, queryStr string, limit int) ([]*KeywordResult, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return nil, fmt.Errorf("keyword index is closed")
	}
	if strings.TrimSpace(queryStr) == "" {
		return []*KeywordResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	req := bleve.NewSearchRequest(matchQuery)
	req.Size = limit
	req.IncludeLocations = true

	result, err := k.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]*KeywordResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &KeywordResult{
			ID:           hit.ID,
			Score:        hit.Score,
			MatchedTerms: matchedTerms(hit),
		})
	}
	return results, nil
}

// Delete removes documents by ID.
func (k *KeywordIndex) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return fmt.Errorf("keyword index is closed")
	}

	batch := k.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return k.index.Batch(batch)
}

// Count returns the number of indexed documents.
func (k *KeywordIndex) Count() (int, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.closed {
		return 0, fmt.Errorf("keyword index is closed")
	}
	n, err := k.index.DocCount()
	return int(n), err
}

// Close closes the index. Bleve persists on-disk indexes as it goes,
// so there is no separate save step.
func (k *KeywordIndex) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.closed {
		return nil
	}
	k.closed = true
	if k.index != nil {
		return k.index.Close()
	}
	return nil
}

func matchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field != "content" {
			continue
		}
		for term := range locations {
			terms[term] = struct{}{}
		}
	}
	out := make([]string, 0, len(terms))
	for term := range terms {
		out = append(out, term)
	}
	return out
}
