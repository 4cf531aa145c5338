// Package sources maintains the catalog of configured vector-store
// sources: named backend connections that queries can select by id. The
// catalog is persisted in SQLite; resolved adapter instances are cached
// per source so repeated queries reuse connections.
package sources

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register "sqlite" driver

	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/pipeline"
	"github.com/olserra/xmem-go/internal/vector"
)

// Source describes one configured vector backend.
type Source struct {
	// ID is the catalog key, generated on create.
	ID string `json:"id"`
	// Name is the operator-facing label.
	Name string `json:"name"`
	// Type is the backend kind: qdrant, pinecone, chroma, or chromem.
	Type vector.Backend `json:"type"`
	// URL is the backend endpoint (host:port for qdrant, index host for
	// pinecone, base URL for chroma; unused for chromem).
	URL string `json:"url,omitempty"`
	// APIKey authenticates against the backend; never returned by List.
	APIKey string `json:"-"`
	// Collection is the default collection or namespace to search.
	Collection string `json:"collection"`
	// VectorSize is the embedding dimensionality for this source.
	VectorSize int `json:"vectorSize"`
	// CreatedAt is when the source was registered.
	CreatedAt time.Time `json:"createdAt"`
}

// Catalog stores sources in SQLite and resolves them into live search
// adapters. Safe for concurrent use.
type Catalog struct {
	db *sql.DB

	mu     sync.Mutex
	stores map[string]vector.Store

	// embedded is shared across every chromem source so local data
	// survives catalog lookups within one process.
	embedded *vector.ChromemStore
}

// DefaultDBPath returns ~/.xmem/sources.db, creating the directory if
// needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("sources: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".xmem")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("sources: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "sources.db"), nil
}

// Open opens (or creates) the catalog at path. Use ":memory:" in tests.
func Open(path string) (*Catalog, error) {
	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sources: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	c := &Catalog{
		db:       db,
		stores:   make(map[string]vector.Store),
		embedded: vector.NewChromemStore(nil),
	}
	if err := c.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS sources (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	url         TEXT NOT NULL DEFAULT '',
	api_key     TEXT NOT NULL DEFAULT '',
	collection  TEXT NOT NULL DEFAULT '',
	vector_size INTEGER NOT NULL DEFAULT 0,
	created_at  INTEGER NOT NULL
);`
	if _, err := c.db.Exec(ddl); err != nil {
		return fmt.Errorf("sources: migrate: %w", err)
	}
	return nil
}

// Create registers a new source and returns it with a generated id.
func (c *Catalog) Create(ctx context.Context, src Source) (*Source, error) {
	if src.Name == "" {
		return nil, &memory.ValidationError{Field: "name", Reason: "source name must not be empty"}
	}
	if !validBackend(src.Type) {
		return nil, &memory.ValidationError{Field: "type", Reason: fmt.Sprintf("unknown backend type %q", src.Type)}
	}
	src.ID = uuid.NewString()
	src.CreatedAt = time.Now().UTC()

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO sources (id, name, type, url, api_key, collection, vector_size, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		src.ID, src.Name, string(src.Type), src.URL, src.APIKey, src.Collection, src.VectorSize,
		src.CreatedAt.UnixNano())
	if err != nil {
		return nil, c.wrap("create", err)
	}
	return &src, nil
}

// Get returns the source by id, or (nil, nil) when absent.
func (c *Catalog) Get(ctx context.Context, id string) (*Source, error) {
	row := c.db.QueryRowContext(ctx,
		`SELECT id, name, type, url, api_key, collection, vector_size, created_at
		 FROM sources WHERE id = ?`, id)
	src, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, c.wrap("get", err)
	}
	return src, nil
}

// List returns every registered source, oldest first.
func (c *Catalog) List(ctx context.Context) ([]Source, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT id, name, type, url, api_key, collection, vector_size, created_at
		 FROM sources ORDER BY created_at ASC`)
	if err != nil {
		return nil, c.wrap("list", err)
	}
	defer rows.Close()

	var out []Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, c.wrap("list", err)
		}
		out = append(out, *src)
	}
	if err := rows.Err(); err != nil {
		return nil, c.wrap("list", err)
	}
	return out, nil
}

// Delete removes a source and drops its cached adapter. Unknown ids are
// not an error.
func (c *Catalog) Delete(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM sources WHERE id = ?`, id); err != nil {
		return c.wrap("delete", err)
	}
	c.mu.Lock()
	if store, ok := c.stores[id]; ok {
		delete(c.stores, id)
		_ = store.Close()
	}
	c.mu.Unlock()
	return nil
}

// Resolve turns source ids into live SourceRefs for the ranking pipeline.
// Unknown ids are skipped; a source whose adapter cannot be constructed
// is returned in the second value so callers can report it without losing
// the healthy sources.
func (c *Catalog) Resolve(ctx context.Context, ids []string) ([]pipeline.SourceRef, []pipeline.SourceFailure, error) {
	var (
		refs   []pipeline.SourceRef
		failed []pipeline.SourceFailure
	)
	for _, id := range ids {
		src, err := c.Get(ctx, id)
		if err != nil {
			return nil, nil, err
		}
		if src == nil {
			continue
		}
		store, err := c.storeFor(ctx, src)
		if err != nil {
			failed = append(failed, pipeline.SourceFailure{SourceID: id, Err: err})
			continue
		}
		refs = append(refs, pipeline.SourceRef{
			SourceID:   id,
			Store:      store,
			Collection: src.Collection,
		})
	}
	return refs, failed, nil
}

// storeFor returns the cached adapter for a source, constructing it on
// first use.
func (c *Catalog) storeFor(ctx context.Context, src *Source) (vector.Store, error) {
	if src.Type == vector.BackendChromem {
		return c.embedded, nil
	}

	c.mu.Lock()
	store, ok := c.stores[src.ID]
	c.mu.Unlock()
	if ok {
		return store, nil
	}

	var (
		built vector.Store
		err   error
	)
	switch src.Type {
	case vector.BackendQdrant:
		host, port := splitHostPort(src.URL)
		built, err = vector.NewQdrantStore(ctx, &vector.QdrantConfig{
			Host:       host,
			Port:       port,
			Collection: src.Collection,
			VectorSize: uint64(src.VectorSize),
			APIKey:     src.APIKey,
			UseTLS:     src.APIKey != "",
		})
	case vector.BackendPinecone:
		built, err = vector.NewPineconeStore(&vector.PineconeConfig{
			APIKey:     src.APIKey,
			IndexHost:  src.URL,
			Namespace:  src.Collection,
			VectorSize: src.VectorSize,
		})
	case vector.BackendChroma:
		built, err = vector.NewChromaStore(&vector.ChromaConfig{
			URL:        src.URL,
			Collection: src.Collection,
			APIKey:     src.APIKey,
			VectorSize: src.VectorSize,
		})
	default:
		err = fmt.Errorf("sources: unknown backend type %q", src.Type)
	}
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	// Another request may have built the same adapter meanwhile; keep the
	// first one.
	if existing, ok := c.stores[src.ID]; ok {
		_ = built.Close()
		return existing, nil
	}
	c.stores[src.ID] = built
	return built, nil
}

// Embedded returns the process-local chromem store shared by every
// chromem-typed source.
func (c *Catalog) Embedded() *vector.ChromemStore { return c.embedded }

// Close closes the catalog database and every cached adapter.
func (c *Catalog) Close() error {
	c.mu.Lock()
	for id, store := range c.stores {
		_ = store.Close()
		delete(c.stores, id)
	}
	c.mu.Unlock()
	return c.db.Close()
}

// Ping verifies catalog database connectivity.
func (c *Catalog) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Catalog) wrap(op string, err error) error {
	return &memory.BackendError{Backend: "sqlite", Operation: "sources." + op, Cause: err}
}

func validBackend(b vector.Backend) bool {
	switch b {
	case vector.BackendQdrant, vector.BackendPinecone, vector.BackendChroma, vector.BackendChromem:
		return true
	}
	return false
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSource(row rowScanner) (*Source, error) {
	var (
		src       Source
		backend   string
		createdAt int64
	)
	err := row.Scan(&src.ID, &src.Name, &backend, &src.URL, &src.APIKey, &src.Collection, &src.VectorSize, &createdAt)
	if err != nil {
		return nil, err
	}
	src.Type = vector.Backend(backend)
	src.CreatedAt = time.Unix(0, createdAt).UTC()
	return &src, nil
}

// splitHostPort separates "host:port" with a default Qdrant gRPC port of
// 6334.
func splitHostPort(url string) (string, int) {
	host, port := url, 6334
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == ':' {
			var p int
			if _, err := fmt.Sscanf(url[i+1:], "%d", &p); err == nil && p > 0 {
				host, port = url[:i], p
			}
			break
		}
	}
	return host, port
}
