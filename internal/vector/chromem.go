package vector

import (
	"context"
	"fmt"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/olserra/xmem-go/internal/memory"
)

// ChromemConfig holds settings for the embedded chromem store.
type ChromemConfig struct {
	// Collection is the default collection name for this store.
	Collection string

	// VectorSize is the dimensionality enforced on writes. Zero disables
	// the check.
	VectorSize int
}

// ChromemStore implements Store on top of chromem-go, a pure-Go embedded
// vector database. It needs no external service, which makes it the
// default backend for local development and tests.
type ChromemStore struct {
	db  *chromem.DB
	cfg *ChromemConfig

	mu          sync.RWMutex
	collections map[string]*chromem.Collection
}

// NewChromemStore constructs an empty in-process store.
func NewChromemStore(cfg *ChromemConfig) *ChromemStore {
	if cfg == nil {
		cfg = &ChromemConfig{}
	}
	if cfg.Collection == "" {
		cfg.Collection = "xmem"
	}
	return &ChromemStore{
		db:          chromem.NewDB(),
		cfg:         cfg,
		collections: make(map[string]*chromem.Collection),
	}
}

// getOrCreateCollection returns the named collection, creating it on first
// use. Double-checked under the write lock because searches and writes for
// the same new collection can race.
func (s *ChromemStore) getOrCreateCollection(name string) (*chromem.Collection, error) {
	if name == "" {
		name = s.cfg.Collection
	}

	s.mu.RLock()
	col, ok := s.collections[name]
	s.mu.RUnlock()
	if ok {
		return col, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if col, ok := s.collections[name]; ok {
		return col, nil
	}

	// No embedding func: callers always provide pre-computed embeddings.
	col, err := s.db.CreateCollection(name, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem: create collection %q: %w", name, err)
	}
	s.collections[name] = col
	return col, nil
}

// AddEmbedding stores one item with its pre-computed embedding.
func (s *ChromemStore) AddEmbedding(ctx context.Context, item *memory.Item, collection string) error {
	if err := checkDimensions(item.Embedding, s.cfg.VectorSize); err != nil {
		return err
	}

	col, err := s.getOrCreateCollection(collection)
	if err != nil {
		return &memory.BackendError{Backend: string(BackendChromem), Operation: "add", Cause: err}
	}

	metadata := make(map[string]string, len(item.Metadata))
	for k, v := range item.Metadata {
		metadata[k] = fmt.Sprint(v)
	}

	err = col.AddDocument(ctx, chromem.Document{
		ID:        item.ID,
		Content:   item.Text,
		Embedding: item.Embedding,
		Metadata:  metadata,
	})
	if err != nil {
		return &memory.BackendError{Backend: string(BackendChromem), Operation: "add", Cause: err}
	}
	return nil
}

// SearchEmbedding returns the top-k most similar stored items. chromem
// reports cosine similarity directly, so scores are used as-is.
func (s *ChromemStore) SearchEmbedding(ctx context.Context, query []float32, topK int, collection string) ([]Result, error) {
	col, err := s.getOrCreateCollection(collection)
	if err != nil {
		return nil, &memory.BackendError{Backend: string(BackendChromem), Operation: "search", Cause: err}
	}

	// chromem rejects nResults greater than the collection size.
	count := col.Count()
	if count == 0 {
		return nil, nil
	}
	if topK > count {
		topK = count
	}

	hits, err := col.QueryEmbedding(ctx, query, topK, nil, nil)
	if err != nil {
		return nil, &memory.BackendError{Backend: string(BackendChromem), Operation: "search", Cause: err}
	}

	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		payload := make(map[string]any, len(h.Metadata)+1)
		for k, v := range h.Metadata {
			payload[k] = v
		}
		payload["text"] = h.Content
		results = append(results, Result{
			ID:      h.ID,
			Score:   float64(h.Similarity),
			Payload: payload,
		})
	}
	return results, nil
}

// DeleteEmbedding removes one item by ID. Unknown IDs are ignored.
func (s *ChromemStore) DeleteEmbedding(ctx context.Context, id string, collection string) error {
	col, err := s.getOrCreateCollection(collection)
	if err != nil {
		return &memory.BackendError{Backend: string(BackendChromem), Operation: "delete", Cause: err}
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return &memory.BackendError{Backend: string(BackendChromem), Operation: "delete", Cause: err}
	}
	return nil
}

// Close is a no-op; the store lives entirely in process memory.
func (s *ChromemStore) Close() error { return nil }
