package store

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/vaultscope/vaultscope/internal/chunk"
	verrors "github.com/vaultscope/vaultscope/internal/errors"
)

// On-disk layout inside the index directory.
const (
	VectorFileName  = "vectors.hnsw"
	CatalogFileName = "catalog.db"
	KeywordDirName  = "keyword.bleve"
)

// Filtered queries over-fetch because filtering happens after
// candidate collection. Each round widens the candidate pool.
const (
	filterFetchFactor = 4
	maxFetchRounds    = 3
)

// IndexConfig configures the composed index.
type IndexConfig struct {
	// Dir is the index directory. Empty means fully in-memory.
	Dir string

	// Dimensions is the embedding dimension. Must match any existing
	// on-disk index.
	Dimensions int

	M        int
	EfSearch int
}

// Index composes the vector store, keyword index, and chunk catalog
// behind one upsert/delete/query surface. Mutations are serialized;
// queries run concurrently.
type Index struct {
	mu      sync.Mutex
	vectors *HNSWStore
	keyword *KeywordIndex
	catalog *Catalog
	lock    *flock.Flock
	dir     string
	logger  *slog.Logger
}

// OpenIndex opens or creates the index at cfg.Dir, holding an
// exclusive directory lock for the life of the index. An existing
// index whose stored embedding dimension differs from cfg.Dimensions
// is rejected rather than silently mixed.
func OpenIndex(cfg IndexConfig, logger *slog.Logger) (*Index, error) {
	if cfg.Dimensions <= 0 {
		return nil, verrors.New(verrors.ErrCodeConfigInvalid, "index dimensions must be positive", nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	idx := &Index{dir: cfg.Dir, logger: logger}

	var vectorPath, catalogPath, keywordPath string
	if cfg.Dir != "" {
		lock, err := AcquireDirLock(cfg.Dir)
		if err != nil {
			return nil, err
		}
		idx.lock = lock
		vectorPath = filepath.Join(cfg.Dir, VectorFileName)
		catalogPath = filepath.Join(cfg.Dir, CatalogFileName)
		keywordPath = filepath.Join(cfg.Dir, KeywordDirName)

		stored, err := StoredDimensions(vectorPath)
		if err != nil {
			idx.releaseLock()
			return nil, err
		}
		if stored != 0 && stored != cfg.Dimensions {
			idx.releaseLock()
			return nil, verrors.New(verrors.ErrCodeDimensionMismatch,
				fmt.Sprintf("index holds %d-dimensional vectors but model produces %d; reindex required", stored, cfg.Dimensions), nil)
		}
	}

	catalog, err := OpenCatalog(catalogPath)
	if err != nil {
		idx.releaseLock()
		return nil, err
	}
	idx.catalog = catalog

	keyword, err := NewKeywordIndex(keywordPath)
	if err != nil {
		idx.closePartial()
		return nil, err
	}
	idx.keyword = keyword

	vectors, err := NewHNSWStore(VectorStoreConfig{
		Dimensions: cfg.Dimensions,
		M:          cfg.M,
		EfSearch:   cfg.EfSearch,
	})
	if err != nil {
		idx.closePartial()
		return nil, err
	}
	if vectorPath != "" {
		if _, statErr := os.Stat(vectorPath); statErr == nil {
			if err := vectors.Load(vectorPath); err != nil {
				idx.closePartial()
				return nil, err
			}
		}
	}
	idx.vectors = vectors

	if err := catalog.SetState(context.Background(), StateKeyDimensions, strconv.Itoa(cfg.Dimensions)); err != nil {
		idx.closePartial()
		return nil, err
	}

	logger.Info("index opened",
		"dir", cfg.Dir,
		"dimensions", cfg.Dimensions,
		"chunks", vectors.Count())
	return idx, nil
}

func (i *Index) releaseLock() {
	if i.lock != nil {
		_ = i.lock.Unlock()
		i.lock = nil
	}
}

func (i *Index) closePartial() {
	if i.keyword != nil {
		_ = i.keyword.Close()
	}
	if i.catalog != nil {
		_ = i.catalog.Close()
	}
	i.releaseLock()
}

// Upsert writes chunks and their vectors to all three artifacts.
// Re-upserting the same chunk IDs replaces previous content, so
// repeated ingestion of an unchanged document is idempotent.
func (i *Index) Upsert(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if err := i.catalog.UpsertChunks(ctx, chunks); err != nil {
		return verrors.New(verrors.ErrCodeIndexUnavailable, "catalog upsert failed", err)
	}

	ids := make([]string, len(chunks))
	texts := make([]string, len(chunks))
	paths := make([]string, len(chunks))
	for n, ch := range chunks {
		ids[n] = ch.ID
		texts[n] = ch.Text
		paths[n] = ch.Path
	}

	if err := i.vectors.Add(ctx, ids, vectors); err != nil {
		return err
	}
	if err := i.keyword.Index(ctx, ids, texts, paths); err != nil {
		return verrors.New(verrors.ErrCodeIndexUnavailable, "keyword index failed", err)
	}

	// Record per-source state for startup reconciliation.
	type sourceStat struct {
		modified time.Time
		count    int
	}
	perSource := make(map[string]*sourceStat)
	for _, ch := range chunks {
		st, ok := perSource[ch.Path]
		if !ok {
			st = &sourceStat{}
			perSource[ch.Path] = st
		}
		st.count++
		if ch.Modified.After(st.modified) {
			st.modified = ch.Modified
		}
	}
	for path, st := range perSource {
		if err := i.catalog.SetSource(ctx, path, st.modified, st.count); err != nil {
			return fmt.Errorf("record source %s: %w", path, err)
		}
	}
	return nil
}

// RecordSource stores a source's reconciliation record without any
// chunks. Documents that yield no indexable content still need one,
// or every reconcile pass re-reads them.
func (i *Index) RecordSource(ctx context.Context, path string, modified time.Time) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.catalog.SetSource(ctx, path, modified, 0)
}

// DeleteBySource removes every chunk belonging to a source path from
// all three artifacts and returns the number removed.
func (i *Index) DeleteBySource(ctx context.Context, path string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	ids, err := i.catalog.DeleteBySource(ctx, path)
	if err != nil {
		return 0, verrors.New(verrors.ErrCodeIndexUnavailable, "catalog delete failed", err)
	}
	if err := i.catalog.DeleteSource(ctx, path); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := i.vectors.Delete(ctx, ids); err != nil {
		return 0, err
	}
	if err := i.keyword.Delete(ctx, ids); err != nil {
		return 0, verrors.New(verrors.ErrCodeIndexUnavailable, "keyword delete failed", err)
	}
	return len(ids), nil
}

// Query returns up to k chunks nearest to the query vector that pass
// the filter. Filtering happens after candidate collection, so the
// search widens adaptively until enough filtered hits are found or
// the index is exhausted.
func (i *Index) Query(ctx context.Context, vector []float32, k int, filter *Filter) ([]Match, error) {
	if k <= 0 {
		return nil, verrors.New(verrors.ErrCodeQueryInvalid, "result count must be positive", nil)
	}

	if i.vectors.Count() == 0 {
		return []Match{}, nil
	}

	textSet, err := i.textMatchSet(ctx, filter)
	if err != nil {
		return nil, err
	}
	if textSet != nil && len(textSet) == 0 {
		return []Match{}, nil
	}

	// The widening cap counts orphaned graph nodes too: lazily deleted
	// vectors still consume search slots, so bounding by the live count
	// would starve queries after re-ingestion churn.
	capacity := i.vectors.Total()

	fetch := k
	if !filter.IsZero() {
		fetch = k * filterFetchFactor
	}

	for round := 0; ; round++ {
		if fetch > capacity {
			fetch = capacity
		}
		hits, err := i.vectors.Search(ctx, vector, fetch)
		if err != nil {
			return nil, err
		}

		matches, err := i.resolveVectorHits(ctx, hits, k, filter, textSet)
		if err != nil {
			return nil, err
		}
		if len(matches) >= k || fetch >= capacity || round >= maxFetchRounds {
			return matches, nil
		}
		fetch *= filterFetchFactor
	}
}

// textMatchSet resolves a filter's lexical predicate to the set of
// matching chunk IDs. Nil means the predicate is inactive.
func (i *Index) textMatchSet(ctx context.Context, filter *Filter) (map[string]struct{}, error) {
	if filter == nil || filter.Text == "" {
		return nil, nil
	}
	total, err := i.keyword.Count()
	if err != nil {
		return nil, err
	}
	set := make(map[string]struct{}, total)
	if total == 0 {
		return set, nil
	}
	hits, err := i.keyword.Search(ctx, filter.Text, total)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeQueryFailed, "keyword search failed", err)
	}
	for _, h := range hits {
		set[h.ID] = struct{}{}
	}
	return set, nil
}

func (i *Index) resolveVectorHits(ctx context.Context, hits []*VectorResult, k int, filter *Filter, textSet map[string]struct{}) ([]Match, error) {
	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for n, h := range hits {
		ids[n] = h.ID
		scores[h.ID] = float64(h.Score)
	}

	chunks, err := i.catalog.GetMany(ctx, ids)
	if err != nil {
		return nil, verrors.New(verrors.ErrCodeIndexUnavailable, "catalog lookup failed", err)
	}

	matches := make([]Match, 0, k)
	for _, ch := range chunks {
		if !filter.Matches(&ch) {
			continue
		}
		if textSet != nil {
			if _, ok := textSet[ch.ID]; !ok {
				continue
			}
		}
		matches = append(matches, Match{Chunk: ch, Score: scores[ch.ID]})
		if len(matches) == k {
			break
		}
	}
	return matches, nil
}

// Keyword returns up to k BM25 matches for the query text that pass
// the filter, widening like Query does.
func (i *Index) Keyword(ctx context.Context, text string, k int, filter *Filter) ([]Match, error) {
	if k <= 0 {
		return nil, verrors.New(verrors.ErrCodeQueryInvalid, "result count must be positive", nil)
	}

	total, err := i.keyword.Count()
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return []Match{}, nil
	}

	textSet, err := i.textMatchSet(ctx, filter)
	if err != nil {
		return nil, err
	}
	if textSet != nil && len(textSet) == 0 {
		return []Match{}, nil
	}

	fetch := k
	if !filter.IsZero() {
		fetch = k * filterFetchFactor
	}

	for round := 0; ; round++ {
		if fetch > total {
			fetch = total
		}
		hits, err := i.keyword.Search(ctx, text, fetch)
		if err != nil {
			return nil, verrors.New(verrors.ErrCodeQueryFailed, "keyword search failed", err)
		}

		ids := make([]string, len(hits))
		byID := make(map[string]*KeywordResult, len(hits))
		for n, h := range hits {
			ids[n] = h.ID
			byID[h.ID] = h
		}
		chunks, err := i.catalog.GetMany(ctx, ids)
		if err != nil {
			return nil, verrors.New(verrors.ErrCodeIndexUnavailable, "catalog lookup failed", err)
		}

		matches := make([]Match, 0, k)
		for _, ch := range chunks {
			if !filter.Matches(&ch) {
				continue
			}
			if textSet != nil {
				if _, ok := textSet[ch.ID]; !ok {
					continue
				}
			}
			hit := byID[ch.ID]
			matches = append(matches, Match{Chunk: ch, Score: hit.Score, MatchedTerms: hit.MatchedTerms})
			if len(matches) == k {
				break
			}
		}
		if len(matches) >= k || fetch >= total || round >= maxFetchRounds || len(hits) < fetch {
			return matches, nil
		}
		fetch *= filterFetchFactor
	}
}

// Get fetches a chunk by ID, or nil when absent.
func (i *Index) Get(ctx context.Context, id string) (*chunk.Chunk, error) {
	return i.catalog.Get(ctx, id)
}

// Sources returns indexed source paths with recorded mod times.
func (i *Index) Sources(ctx context.Context) (map[string]time.Time, error) {
	return i.catalog.Sources(ctx)
}

// Stats summarizes index contents.
type Stats struct {
	Chunks  int
	Sources int
	Orphans int
}

// Stats reports index size counters.
func (i *Index) Stats(ctx context.Context) (Stats, error) {
	chunks, err := i.catalog.CountChunks(ctx)
	if err != nil {
		return Stats{}, err
	}
	sources, err := i.catalog.Sources(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{
		Chunks:  chunks,
		Sources: len(sources),
		Orphans: i.vectors.Orphans(),
	}, nil
}

// Save persists the vector graph, compacting it first when orphaned
// nodes outnumber live ones. The catalog and keyword index persist as
// they go.
func (i *Index) Save() error {
	if i.dir == "" {
		return nil
	}
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.vectors.Orphans() > i.vectors.Count() {
		reclaimed, err := i.vectors.Compact()
		if err != nil {
			return err
		}
		i.logger.Info("vector graph compacted", "reclaimed", reclaimed)
	}
	return i.vectors.Save(filepath.Join(i.dir, VectorFileName))
}

// Close saves and closes all artifacts, then releases the directory
// lock.
func (i *Index) Close() error {
	var firstErr error
	if i.dir != "" {
		if err := i.Save(); err != nil {
			firstErr = err
		}
	}
	if err := i.vectors.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := i.keyword.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := i.catalog.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	i.releaseLock()
	return firstErr
}
