package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/vaultscope/vaultscope/internal/chunk"
)

const catalogSchema = `
CREATE TABLE IF NOT EXISTS chunks (
	id           TEXT PRIMARY KEY,
	path         TEXT NOT NULL,
	heading      TEXT NOT NULL DEFAULT '',
	heading_path TEXT NOT NULL DEFAULT '',
	ordinal      INTEGER NOT NULL,
	text         TEXT NOT NULL,
	token_count  INTEGER NOT NULL,
	word_count   INTEGER NOT NULL,
	char_count   INTEGER NOT NULL,
	oversize     INTEGER NOT NULL DEFAULT 0,
	tags         TEXT NOT NULL DEFAULT '[]',
	frontmatter  TEXT NOT NULL DEFAULT '{}',
	modified     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_chunks_path ON chunks(path);

CREATE TABLE IF NOT EXISTS sources (
	path        TEXT PRIMARY KEY,
	modified    INTEGER NOT NULL,
	chunk_count INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS state (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// State keys recorded in the catalog.
const (
	StateKeyDimensions = "embedding_dimensions"
	StateKeyModel      = "embedding_model"
)

// Catalog is the sqlite-backed chunk metadata store. It is the source
// of truth for chunk text and per-source modification times.
type Catalog struct {
	db   *sql.DB
	path string
}

// OpenCatalog opens (or creates) the catalog database. An empty path
// opens an in-memory database for tests.
func OpenCatalog(path string) (*Catalog, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// table-locked errors under concurrent updates.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(catalogSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply catalog schema: %w", err)
	}
	return &Catalog{db: db, path: path}, nil
}

// Close closes the database.
func (c *Catalog) Close() error {
	return c.db.Close()
}

// UpsertChunks writes chunks in one transaction, replacing rows that
// share an ID.
func (c *Catalog) UpsertChunks(ctx context.Context, chunks []chunk.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks
		(id, path, heading, heading_path, ordinal, text, token_count, word_count, char_count, oversize, tags, frontmatter, modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for _, ch := range chunks {
		tags, err := json.Marshal(ch.Tags)
		if err != nil {
			return fmt.Errorf("marshal tags for %s: %w", ch.ID, err)
		}
		fm, err := json.Marshal(ch.Frontmatter)
		if err != nil {
			return fmt.Errorf("marshal frontmatter for %s: %w", ch.ID, err)
		}
		oversize := 0
		if ch.Oversize {
			oversize = 1
		}
		if _, err := stmt.ExecContext(ctx,
			ch.ID, ch.Path, ch.Heading, ch.HeadingPath, ch.Ordinal, ch.Text,
			ch.TokenCount, ch.WordCount, ch.CharCount, oversize,
			string(tags), string(fm), ch.Modified.UnixNano(),
		); err != nil {
			return fmt.Errorf("upsert chunk %s: %w", ch.ID, err)
		}
	}
	return tx.Commit()
}

// IDsBySource returns the chunk IDs currently stored for a source path.
func (c *Catalog) IDsBySource(ctx context.Context, path string) ([]string, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id FROM chunks WHERE path = ?`, path)
	if err != nil {
		return nil, fmt.Errorf("query chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteBySource removes all chunks for a source path and returns the
// IDs that were removed.
func (c *Catalog) DeleteBySource(ctx context.Context, path string) ([]string, error) {
	ids, err := c.IDsBySource(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM chunks WHERE path = ?`, path); err != nil {
		return nil, fmt.Errorf("delete chunks for %s: %w", path, err)
	}
	return ids, nil
}

// Get fetches one chunk by ID.
func (c *Catalog) Get(ctx context.Context, id string) (*chunk.Chunk, error) {
	chunks, err := c.GetMany(ctx, []string{id})
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	ch := chunks[0]
	return &ch, nil
}

// GetMany fetches chunks by ID. Missing IDs are silently omitted, so
// the result may be shorter than the request.
func (c *Catalog) GetMany(ctx context.Context, ids []string) ([]chunk.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT id, path, heading, heading_path, ordinal, text, token_count, word_count, char_count, oversize, tags, frontmatter, modified
		 FROM chunks WHERE id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]chunk.Chunk, len(ids))
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[ch.ID] = ch
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve request order.
	out := make([]chunk.Chunk, 0, len(byID))
	for _, id := range ids {
		if ch, ok := byID[id]; ok {
			out = append(out, ch)
		}
	}
	return out, nil
}

func scanChunk(rows *sql.Rows) (chunk.Chunk, error) {
	var ch chunk.Chunk
	var oversize int
	var tagsJSON, fmJSON string
	var modified int64

	if err := rows.Scan(&ch.ID, &ch.Path, &ch.Heading, &ch.HeadingPath, &ch.Ordinal,
		&ch.Text, &ch.TokenCount, &ch.WordCount, &ch.CharCount, &oversize,
		&tagsJSON, &fmJSON, &modified); err != nil {
		return ch, fmt.Errorf("scan chunk: %w", err)
	}

	ch.Oversize = oversize != 0
	ch.Modified = time.Unix(0, modified)
	if err := json.Unmarshal([]byte(tagsJSON), &ch.Tags); err != nil {
		return ch, fmt.Errorf("unmarshal tags for %s: %w", ch.ID, err)
	}
	if err := json.Unmarshal([]byte(fmJSON), &ch.Frontmatter); err != nil {
		return ch, fmt.Errorf("unmarshal frontmatter for %s: %w", ch.ID, err)
	}
	return ch, nil
}

// CountChunks returns the number of stored chunks.
func (c *Catalog) CountChunks(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n)
	return n, err
}

// SetSource records a source document's modification time and chunk
// count.
func (c *Catalog) SetSource(ctx context.Context, path string, modified time.Time, chunkCount int) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sources (path, modified, chunk_count) VALUES (?, ?, ?)`,
		path, modified.UnixNano(), chunkCount)
	return err
}

// DeleteSource removes a source record.
func (c *Catalog) DeleteSource(ctx context.Context, path string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM sources WHERE path = ?`, path)
	return err
}

// Sources returns every indexed source path with its recorded
// modification time.
func (c *Catalog) Sources(ctx context.Context) (map[string]time.Time, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT path, modified FROM sources`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var path string
		var modified int64
		if err := rows.Scan(&path, &modified); err != nil {
			return nil, err
		}
		out[path] = time.Unix(0, modified)
	}
	return out, rows.Err()
}

// GetState reads a state value, returning "" when absent.
func (c *Catalog) GetState(ctx context.Context, key string) (string, error) {
	var value string
	err := c.db.QueryRowContext(ctx, `SELECT value FROM state WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetState writes a state value.
func (c *Catalog) SetState(ctx context.Context, key, value string) error {
	_, err := c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO state (key, value) VALUES (?, ?)`, key, value)
	return err
}
