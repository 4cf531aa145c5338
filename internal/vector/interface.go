// Package vector defines the vector-store capability interface and its
// backend adapters (Qdrant, Pinecone, Chroma, embedded chromem). Each
// adapter translates its backend's wire format into the generic Result
// shape; callers never see backend-specific response fields.
package vector

import (
	"context"
	"fmt"

	"github.com/olserra/xmem-go/internal/memory"
)

// Backend enumerates the supported vector-store backends.
type Backend string

const (
	// BackendQdrant selects a Qdrant instance over gRPC.
	BackendQdrant Backend = "qdrant"
	// BackendPinecone selects a Pinecone index over its REST API.
	BackendPinecone Backend = "pinecone"
	// BackendChroma selects a Chroma server over its REST API.
	BackendChroma Backend = "chroma"
	// BackendChromem selects the embedded in-process chromem store.
	BackendChromem Backend = "chromem"
)

// Result is one raw search hit. Score is sign-adjusted by the adapter so
// that higher always means more relevant: distance-based backends negate
// their distances before returning.
type Result struct {
	// ID is the backend identifier of the hit.
	ID string
	// Score is the sign-adjusted backend-native relevance score.
	Score float64
	// Payload is the stored metadata map for the hit.
	Payload map[string]any
}

// Store is the capability interface every vector backend implements.
// Implementations must be safe for concurrent use. An empty collection
// argument selects the adapter's configured default collection.
type Store interface {
	// AddEmbedding upserts one item by ID with its vector and metadata.
	// The item's embedding must match the collection's configured
	// dimensionality; mismatches fail with a memory.ValidationError.
	AddEmbedding(ctx context.Context, item *memory.Item, collection string) error

	// SearchEmbedding returns the top-k most similar stored items for the
	// given query vector.
	SearchEmbedding(ctx context.Context, query []float32, topK int, collection string) ([]Result, error)

	// DeleteEmbedding removes an item by ID. Deleting an unknown ID is not
	// an error.
	DeleteEmbedding(ctx context.Context, id string, collection string) error

	// Close releases any resources held by the store.
	Close() error
}

// checkDimensions validates an embedding length against the collection's
// configured size. A configured size of zero disables the check.
func checkDimensions(embedding []float32, want int) error {
	if want > 0 && len(embedding) != want {
		return &memory.ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("dimension mismatch: got %d, collection expects %d", len(embedding), want),
		}
	}
	if len(embedding) == 0 {
		return &memory.ValidationError{Field: "embedding", Reason: "must not be empty"}
	}
	return nil
}
