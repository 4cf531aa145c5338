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

// ChromaConfig holds connection parameters for a Chroma server.
type ChromaConfig struct {
	// URL is the Chroma server base URL (e.g. "http://localhost:8000").
	URL string

	// Collection is the default collection name for this store.
	Collection string

	// APIKey is the optional bearer token for authenticated deployments.
	APIKey string

	// VectorSize is the dimensionality enforced on writes. Zero disables
	// the check.
	VectorSize int
}

// ChromaStore implements Store against the Chroma v1 REST API. It is safe
// for concurrent use.
//
// Chroma returns distances rather than similarities; SearchEmbedding
// negates them so that higher Score always means more relevant, matching
// the Result contract.
type ChromaStore struct {
	cfg    *ChromaConfig
	client *http.Client
}

// NewChromaStore constructs a ChromaStore from the given config.
func NewChromaStore(cfg *ChromaConfig) (*ChromaStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("chroma: URL is required")
	}
	return &ChromaStore{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// collectionOrDefault resolves the effective collection name.
func (s *ChromaStore) collectionOrDefault(collection string) string {
	if collection != "" {
		return collection
	}
	return s.cfg.Collection
}

// post sends a JSON request to a collection endpoint and decodes the
// response into out (when non-nil).
func (s *ChromaStore) post(ctx context.Context, collection, action string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("chroma: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/collections/%s/%s", s.cfg.URL, collection, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("chroma: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("chroma: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chroma: %s returned HTTP %d", action, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chroma: decode response: %w", err)
	}
	return nil
}

// chromaQueryResponse is the body returned from /query. Chroma nests each
// field one level deep because a request may carry several query vectors;
// we always send exactly one.
type chromaQueryResponse struct {
	IDs       [][]string         `json:"ids"`
	Distances [][]float64        `json:"distances"`
	Metadatas [][]map[string]any `json:"metadatas"`
	Documents [][]string         `json:"documents"`
}

// AddEmbedding upserts one item by ID with its embedding and metadata.
func (s *ChromaStore) AddEmbedding(ctx context.Context, item *memory.Item, collection string) error {
	if err := checkDimensions(item.Embedding, s.cfg.VectorSize); err != nil {
		return err
	}

	metadata := map[string]any{}
	for k, v := range item.Metadata {
		metadata[k] = v
	}

	body := map[string]any{
		"ids":        []string{item.ID},
		"embeddings": [][]float32{item.Embedding},
		"metadatas":  []map[string]any{metadata},
		"documents":  []string{item.Text},
	}
	if err := s.post(ctx, s.collectionOrDefault(collection), "upsert", body, nil); err != nil {
		return &memory.BackendError{Backend: string(BackendChroma), Operation: "add", Cause: err}
	}
	return nil
}

// SearchEmbedding queries the collection for the top-k nearest items.
// Distances are negated so higher Score means more relevant.
func (s *ChromaStore) SearchEmbedding(ctx context.Context, query []float32, topK int, collection string) ([]Result, error) {
	body := map[string]any{
		"query_embeddings": [][]float32{query},
		"n_results":        topK,
		"include":          []string{"metadatas", "documents", "distances"},
	}

	var out chromaQueryResponse
	if err := s.post(ctx, s.collectionOrDefault(collection), "query", body, &out); err != nil {
		return nil, &memory.BackendError{Backend: string(BackendChroma), Operation: "search", Cause: err}
	}
	if len(out.IDs) == 0 {
		return nil, nil
	}

	ids := out.IDs[0]
	results := make([]Result, 0, len(ids))
	for i, id := range ids {
		r := Result{ID: id, Payload: map[string]any{}}
		if len(out.Distances) > 0 && i < len(out.Distances[0]) {
			r.Score = -out.Distances[0][i]
		}
		if len(out.Metadatas) > 0 && i < len(out.Metadatas[0]) && out.Metadatas[0][i] != nil {
			for k, v := range out.Metadatas[0][i] {
				r.Payload[k] = v
			}
		}
		if len(out.Documents) > 0 && i < len(out.Documents[0]) {
			r.Payload["text"] = out.Documents[0][i]
		}
		results = append(results, r)
	}
	return results, nil
}

// DeleteEmbedding removes one item by ID. Chroma ignores unknown IDs.
func (s *ChromaStore) DeleteEmbedding(ctx context.Context, id string, collection string) error {
	body := map[string]any{"ids": []string{id}}
	if err := s.post(ctx, s.collectionOrDefault(collection), "delete", body, nil); err != nil {
		return &memory.BackendError{Backend: string(BackendChroma), Operation: "delete", Cause: err}
	}
	return nil
}

// Close is a no-op; the store holds no persistent connections.
func (s *ChromaStore) Close() error { return nil }
