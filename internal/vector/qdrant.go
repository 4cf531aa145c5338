package vector

import (
	"context"
	"fmt"

	"github.com/qdrant/go-client/qdrant"

	"github.com/olserra/xmem-go/internal/memory"
)

// QdrantConfig holds connection parameters for a Qdrant instance.
type QdrantConfig struct {
	// Host is the Qdrant server hostname (default: localhost).
	Host string

	// Port is the Qdrant gRPC port (default: 6334).
	Port int

	// Collection is the default collection name for this store.
	Collection string

	// VectorSize is the dimensionality enforced on writes to the default
	// collection. Zero disables the write-time check.
	VectorSize uint64

	// APIKey is the optional Qdrant API key for authenticated clusters.
	APIKey string

	// UseTLS enables TLS for the gRPC connection.
	UseTLS bool
}

// QdrantStore implements Store backed by a Qdrant instance.
type QdrantStore struct {
	client *qdrant.Client
	cfg    *QdrantConfig
}

// NewQdrantStore creates a QdrantStore, ensuring the default collection
// exists (creating it with cosine distance if necessary).
func NewQdrantStore(ctx context.Context, cfg *QdrantConfig) (*QdrantStore, error) {
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6334
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: failed to create client: %w", err)
	}

	s := &QdrantStore{client: client, cfg: cfg}
	if cfg.Collection != "" && cfg.VectorSize > 0 {
		if err := s.ensureCollection(ctx, cfg.Collection); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// ensureCollection creates the collection if it does not already exist.
func (s *QdrantStore) ensureCollection(ctx context.Context, collection string) error {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("qdrant: failed to check collection existence: %w", err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.cfg.VectorSize,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("qdrant: failed to create collection %q: %w", collection, err)
	}
	return nil
}

// collectionOrDefault resolves the effective collection name.
func (s *QdrantStore) collectionOrDefault(collection string) string {
	if collection != "" {
		return collection
	}
	return s.cfg.Collection
}

// AddEmbedding upserts one item by ID with its vector and metadata payload.
func (s *QdrantStore) AddEmbedding(ctx context.Context, item *memory.Item, collection string) error {
	if err := checkDimensions(item.Embedding, int(s.cfg.VectorSize)); err != nil {
		return err
	}

	payload := map[string]any{"text": item.Text}
	for k, v := range item.Metadata {
		payload[k] = v
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionOrDefault(collection),
		Points: []*qdrant.PointStruct{{
			Id:      qdrant.NewIDUUID(item.ID),
			Vectors: qdrant.NewVectors(item.Embedding...),
			Payload: qdrant.NewValueMap(payload),
		}},
	})
	if err != nil {
		return &memory.BackendError{Backend: string(BackendQdrant), Operation: "add", Cause: err}
	}
	return nil
}

// SearchEmbedding performs a cosine similarity search and returns the
// top-k results. Qdrant scores are similarity-like (higher is better), so
// no sign adjustment is needed.
func (s *QdrantStore) SearchEmbedding(ctx context.Context, query []float32, topK int, collection string) ([]Result, error) {
	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionOrDefault(collection),
		Query:          qdrant.NewQuery(query...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, &memory.BackendError{Backend: string(BackendQdrant), Operation: "search", Cause: err}
	}

	results := make([]Result, 0, len(points))
	for _, p := range points {
		r := Result{
			ID:      p.Id.GetUuid(),
			Score:   float64(p.Score),
			Payload: make(map[string]any, len(p.Payload)),
		}
		for k, v := range p.Payload {
			r.Payload[k] = valueToAny(v)
		}
		results = append(results, r)
	}
	return results, nil
}

// DeleteEmbedding removes one point by ID. Qdrant treats deleting an
// unknown point as a no-op, which gives us idempotent delete for free.
func (s *QdrantStore) DeleteEmbedding(ctx context.Context, id string, collection string) error {
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: s.collectionOrDefault(collection),
		Points:         qdrant.NewPointsSelector(qdrant.NewIDUUID(id)),
	})
	if err != nil {
		return &memory.BackendError{Backend: string(BackendQdrant), Operation: "delete", Cause: err}
	}
	return nil
}

// Close closes the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

// Ping probes the backend by listing collections. Used by readiness checks.
func (s *QdrantStore) Ping(ctx context.Context) error {
	if _, err := s.client.ListCollections(ctx); err != nil {
		return fmt.Errorf("qdrant: ping failed: %w", err)
	}
	return nil
}

// valueToAny converts a qdrant payload value into a plain Go value so the
// rest of the system never touches protobuf types.
func valueToAny(v *qdrant.Value) any {
	switch k := v.GetKind().(type) {
	case *qdrant.Value_StringValue:
		return k.StringValue
	case *qdrant.Value_IntegerValue:
		return k.IntegerValue
	case *qdrant.Value_DoubleValue:
		return k.DoubleValue
	case *qdrant.Value_BoolValue:
		return k.BoolValue
	case *qdrant.Value_ListValue:
		vals := k.ListValue.GetValues()
		out := make([]any, 0, len(vals))
		for _, item := range vals {
			out = append(out, valueToAny(item))
		}
		return out
	case *qdrant.Value_StructValue:
		fields := k.StructValue.GetFields()
		out := make(map[string]any, len(fields))
		for name, item := range fields {
			out[name] = valueToAny(item)
		}
		return out
	default:
		return nil
	}
}
