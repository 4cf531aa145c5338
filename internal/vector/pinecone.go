package vector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/olserra/xmem-go/internal/memory"
)

// PineconeConfig holds connection parameters for a Pinecone index.
type PineconeConfig struct {
	// APIKey is the Pinecone API key (required).
	APIKey string

	// IndexHost is the full index endpoint, e.g.
	// "https://my-index-abc123.svc.us-west1-gcp.pinecone.io".
	IndexHost string

	// Namespace is the default namespace used when the caller passes an
	// empty collection (Pinecone partitions an index by namespace).
	Namespace string

	// VectorSize is the dimensionality enforced on writes. Zero disables
	// the check.
	VectorSize int
}

// PineconeStore implements Store against the Pinecone REST API. It is safe
// for concurrent use.
type PineconeStore struct {
	cfg    *PineconeConfig
	client *http.Client
}

// NewPineconeStore constructs a PineconeStore from the given config.
func NewPineconeStore(cfg *PineconeConfig) (*PineconeStore, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone: API key is required")
	}
	if cfg.IndexHost == "" {
		return nil, fmt.Errorf("pinecone: index host is required")
	}
	return &PineconeStore{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// namespaceOrDefault resolves the effective namespace.
func (s *PineconeStore) namespaceOrDefault(collection string) string {
	if collection != "" {
		return collection
	}
	return s.cfg.Namespace
}

// post sends a JSON request to the index endpoint and decodes the response
// into out (when non-nil). Non-2xx statuses are returned as errors.
func (s *PineconeStore) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("pinecone: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.IndexHost+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("pinecone: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Api-Key", s.cfg.APIKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("pinecone: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("pinecone: %s returned HTTP %d", path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("pinecone: decode response: %w", err)
	}
	return nil
}

// pineconeVector is one vector in an upsert request.
type pineconeVector struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// pineconeQueryResponse is the body returned from /query.
type pineconeQueryResponse struct {
	Matches []struct {
		ID       string         `json:"id"`
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata,omitempty"`
	} `json:"matches"`
}

// AddEmbedding upserts one vector by ID with its metadata.
func (s *PineconeStore) AddEmbedding(ctx context.Context, item *memory.Item, collection string) error {
	if err := checkDimensions(item.Embedding, s.cfg.VectorSize); err != nil {
		return err
	}

	metadata := map[string]any{"text": item.Text}
	for k, v := range item.Metadata {
		metadata[k] = v
	}

	body := map[string]any{
		"vectors":   []pineconeVector{{ID: item.ID, Values: item.Embedding, Metadata: metadata}},
		"namespace": s.namespaceOrDefault(collection),
	}
	if err := s.post(ctx, "/vectors/upsert", body, nil); err != nil {
		return &memory.BackendError{Backend: string(BackendPinecone), Operation: "add", Cause: err}
	}
	return nil
}

// SearchEmbedding queries the index for the top-k nearest vectors.
// Pinecone scores are similarity-like; no sign adjustment is needed.
func (s *PineconeStore) SearchEmbedding(ctx context.Context, query []float32, topK int, collection string) ([]Result, error) {
	body := map[string]any{
		"vector":          query,
		"topK":            topK,
		"includeMetadata": true,
		"namespace":       s.namespaceOrDefault(collection),
	}

	var out pineconeQueryResponse
	if err := s.post(ctx, "/query", body, &out); err != nil {
		return nil, &memory.BackendError{Backend: string(BackendPinecone), Operation: "search", Cause: err}
	}

	results := make([]Result, 0, len(out.Matches))
	for _, m := range out.Matches {
		payload := m.Metadata
		if payload == nil {
			payload = map[string]any{}
		}
		results = append(results, Result{ID: m.ID, Score: m.Score, Payload: payload})
	}
	return results, nil
}

// DeleteEmbedding removes one vector by ID. Pinecone ignores unknown IDs,
// so delete is idempotent.
func (s *PineconeStore) DeleteEmbedding(ctx context.Context, id string, collection string) error {
	body := map[string]any{
		"ids":       []string{id},
		"namespace": s.namespaceOrDefault(collection),
	}
	if err := s.post(ctx, "/vectors/delete", body, nil); err != nil {
		return &memory.BackendError{Backend: string(BackendPinecone), Operation: "delete", Cause: err}
	}
	return nil
}

// Close is a no-op; the store holds no persistent connections.
func (s *PineconeStore) Close() error { return nil }
