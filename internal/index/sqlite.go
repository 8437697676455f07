package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/54b3r/hrassist-go/internal/rag"
)

// Options are the creation-time properties of an index.
type Options struct {
	// Metric is the similarity function. Empty means cosine for a new index
	// and "whatever is stored" for an existing one.
	Metric rag.Metric

	// Dimension pins the vector length up front. Zero pins it on first write.
	Dimension int

	// Model names the embedding model the vectors come from. When set and an
	// existing index records a different model, opening fails.
	Model string

	// Reset discards any stored entries and metadata on open.
	Reset bool
}

// SQLite is a rag.Index persisted in a single SQLite file. The full entry set
// is held in memory as an immutable snapshot; writers commit to disk first and
// swap the snapshot only after the transaction succeeds, so queries never
// observe a partial rebuild.
type SQLite struct {
	// db is the underlying connection pool (single connection).
	db *sql.DB

	// writeMu serialises Rebuild and Add.
	writeMu sync.Mutex

	// mu guards the fields below.
	mu        sync.RWMutex
	entries   []rag.IndexEntry
	dimension int
	metric    rag.Metric
	model     string
}

var _ rag.Index = (*SQLite)(nil)

// DefaultPath returns ~/.hrassist/index.db, creating the directory if needed.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("index: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".hrassist")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("index: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "index.db"), nil
}

// OpenSQLite opens (or creates) the index at path and loads its entries.
// Use ":memory:" in tests.
func OpenSQLite(path string, opts Options) (*SQLite, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("index: create directory for %s: %w", path, err)
		}
	}
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("index: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db}
	if err := s.init(opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// init migrates the schema, reconciles stored metadata with opts and loads
// the entry snapshot.
func (s *SQLite) init(opts Options) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS index_meta (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS index_entries (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    source      TEXT    NOT NULL,
    page        INTEGER NOT NULL,
    chunk_index INTEGER NOT NULL,
    start_off   INTEGER NOT NULL,
    end_off     INTEGER NOT NULL,
    content     TEXT    NOT NULL,
    vector      BLOB    NOT NULL
);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("index: migrate: %w", err)
	}

	if opts.Reset {
		if _, err := s.db.Exec(`DELETE FROM index_entries; DELETE FROM index_meta;`); err != nil {
			return fmt.Errorf("index: reset: %w", err)
		}
	}

	meta, err := s.readMeta()
	if err != nil {
		return err
	}

	metric := opts.Metric
	if stored, ok := meta["metric"]; ok {
		if metric != "" && rag.Metric(stored) != metric {
			return &rag.ConfigError{Field: "index_metric", Reason: fmt.Sprintf("index was created with %q, configured %q (rebuild with reset to change)", stored, metric)}
		}
		metric = rag.Metric(stored)
	}
	if metric == "" {
		metric = rag.MetricCosine
	}

	dimension := opts.Dimension
	if stored, ok := meta["dimension"]; ok {
		d, err := strconv.Atoi(stored)
		if err != nil {
			return fmt.Errorf("index: corrupt dimension %q: %w", stored, err)
		}
		if dimension > 0 && d > 0 && d != dimension {
			return &rag.ConfigError{Field: "embedding_dimensions", Reason: fmt.Sprintf("index holds %d-dimensional vectors, configured %d", d, dimension)}
		}
		if d > 0 {
			dimension = d
		}
	}

	model := opts.Model
	if stored, ok := meta["model"]; ok && stored != "" {
		if model != "" && stored != model {
			return &rag.ConfigError{Field: "embedding_model", Reason: fmt.Sprintf("index was built with %q, configured %q (rebuild with reset to change)", stored, model)}
		}
		model = stored
	}

	if err := s.writeMeta(context.Background(), s.db, metric, dimension, model); err != nil {
		return err
	}

	entries, err := s.readEntries()
	if err != nil {
		return err
	}

	s.entries = entries
	s.dimension = dimension
	s.metric = metric
	s.model = model
	return nil
}

func (s *SQLite) readMeta() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM index_meta`)
	if err != nil {
		return nil, fmt.Errorf("index: read meta: %w", err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("index: read meta scan: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: read meta rows: %w", err)
	}
	return meta, nil
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLite) writeMeta(ctx context.Context, ex execer, metric rag.Metric, dimension int, model string) error {
	const q = `INSERT INTO index_meta (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	for k, v := range map[string]string{
		"metric":    string(metric),
		"dimension": strconv.Itoa(dimension),
		"model":     model,
	} {
		if _, err := ex.ExecContext(ctx, q, k, v); err != nil {
			return fmt.Errorf("index: write meta %s: %w", k, err)
		}
	}
	return nil
}

func (s *SQLite) readEntries() ([]rag.IndexEntry, error) {
	const q = `SELECT source, page, chunk_index, start_off, end_off, content, vector
FROM index_entries ORDER BY seq ASC`
	rows, err := s.db.Query(q)
	if err != nil {
		return nil, fmt.Errorf("index: load entries: %w", err)
	}
	defer rows.Close()

	var entries []rag.IndexEntry
	for rows.Next() {
		var e rag.IndexEntry
		var blob []byte
		if err := rows.Scan(&e.Chunk.Source, &e.Chunk.Page, &e.Chunk.Index, &e.Chunk.Start, &e.Chunk.End, &e.Chunk.Text, &blob); err != nil {
			return nil, fmt.Errorf("index: load entries scan: %w", err)
		}
		if e.Vector, err = decodeVector(blob); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: load entries rows: %w", err)
	}
	return entries, nil
}

// Rebuild replaces every stored entry in one transaction. Vectors are
// validated before anything is written.
func (s *SQLite) Rebuild(ctx context.Context, entries []rag.IndexEntry) error {
	return s.write(ctx, entries, true)
}

// Add appends entries after the existing ones.
func (s *SQLite) Add(ctx context.Context, entries []rag.IndexEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return s.write(ctx, entries, false)
}

func (s *SQLite) write(ctx context.Context, entries []rag.IndexEntry, replace bool) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	dimension, metric, model := s.dimension, s.metric, s.model
	current := s.entries
	s.mu.RUnlock()

	dimension, err := checkDimensions(entries, dimension)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM index_entries`); err != nil {
			return fmt.Errorf("index: clear entries: %w", err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO index_entries
(source, page, chunk_index, start_off, end_off, content, vector) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		c := e.Chunk
		if _, err := stmt.ExecContext(ctx, c.Source, c.Page, c.Index, c.Start, c.End, c.Text, encodeVector(e.Vector)); err != nil {
			return fmt.Errorf("index: insert %s#%d: %w", c.Source, c.Index, err)
		}
	}

	if err := s.writeMeta(ctx, tx, metric, dimension, model); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit: %w", err)
	}

	next := cloneEntries(entries)
	if !replace {
		next = append(append(make([]rag.IndexEntry, 0, len(current)+len(next)), current...), next...)
	}

	s.mu.Lock()
	s.entries = next
	s.dimension = dimension
	s.mu.Unlock()
	return nil
}

// Query ranks the current snapshot against vector.
func (s *SQLite) Query(_ context.Context, vector []float32, k int) (rag.RetrievalResult, error) {
	if k <= 0 {
		return nil, &rag.ConfigError{Field: "k", Reason: fmt.Sprintf("must be > 0, got %d", k)}
	}

	s.mu.RLock()
	entries, dimension, metric := s.entries, s.dimension, s.metric
	s.mu.RUnlock()

	if len(entries) == 0 {
		return nil, &rag.EmptyIndexError{}
	}
	if len(vector) != dimension {
		return nil, &rag.DimensionMismatchError{Want: dimension, Got: len(vector)}
	}
	return rank(entries, vector, metric, k), nil
}

// Stats reports the snapshot size and recorded metadata.
func (s *SQLite) Stats(context.Context) (rag.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return rag.IndexStats{
		Entries:   len(s.entries),
		Dimension: s.dimension,
		Metric:    s.metric,
		Model:     s.model,
	}, nil
}

// Ping verifies the database file is reachable.
func (s *SQLite) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("index: ping: %w", err)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLite) Close() error {
	if err := s.db.Close(); err != nil && !errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("index: close: %w", err)
	}
	return nil
}
