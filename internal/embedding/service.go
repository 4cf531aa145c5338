// Package embedding wraps an embedder behind a single-text service with a
// local result cache. The pipeline and orchestrator embed one query or one
// memory text at a time; caching means repeated queries (previews, retried
// chats) skip the network round trip entirely.
package embedding

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/olserra/xmem-go/internal/embedder"
	"github.com/olserra/xmem-go/internal/memory"
)

// cacheMaxCost bounds the cache to roughly 64 MiB of embedding data.
// One 1536-dim float32 vector costs ~6 KiB, so this holds ~10k entries.
const cacheMaxCost = 64 << 20

// Service produces embeddings for single texts with caching and optional
// dimensionality enforcement. It is safe for concurrent use.
type Service struct {
	emb   embedder.Embedder
	cache *ristretto.Cache
	dims  int
	label string
}

// Config holds the settings for constructing a Service.
type Config struct {
	// Dimensions, when non-zero, is enforced on every embedding returned
	// by the backend; mismatches are reported as validation errors so the
	// operator learns about a misconfigured model before bad vectors reach
	// a store.
	Dimensions int

	// DisableCache turns off the result cache (used by tests that count
	// backend calls).
	DisableCache bool
}

// NewService constructs a Service over the given embedder.
func NewService(emb embedder.Embedder, cfg *Config) (*Service, error) {
	if emb == nil {
		return nil, fmt.Errorf("embedding: embedder must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}

	s := &Service{emb: emb, dims: cfg.Dimensions, label: "embedder"}
	if n, ok := emb.(embedder.Named); ok {
		s.label = n.Name()
	}

	if !cfg.DisableCache {
		cache, err := ristretto.NewCache(&ristretto.Config{
			NumCounters: 100_000, // ~10x expected max entries
			MaxCost:     cacheMaxCost,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("embedding: create cache: %w", err)
		}
		s.cache = cache
	}
	return s, nil
}

// Provider returns the backend label of the wrapped embedder.
func (s *Service) Provider() string { return s.label }

// Dimensions returns the enforced vector size, or 0 if not enforced.
func (s *Service) Dimensions() int { return s.dims }

// Embed returns the embedding for text, from cache when possible.
// Failures are reported as *memory.EmbeddingError.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	key := s.cacheKey(text)
	if s.cache != nil {
		if v, ok := s.cache.Get(key); ok {
			if vec, ok := v.([]float32); ok {
				return vec, nil
			}
		}
	}

	vecs, err := s.emb.Embed(ctx, []string{text})
	if err != nil {
		return nil, &memory.EmbeddingError{Provider: s.label, Cause: err}
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, &memory.EmbeddingError{
			Provider: s.label,
			Cause:    fmt.Errorf("backend returned %d vectors for 1 input", len(vecs)),
		}
	}
	vec := vecs[0]

	if s.dims > 0 && len(vec) != s.dims {
		return nil, &memory.ValidationError{
			Field:  "embedding",
			Reason: fmt.Sprintf("backend returned %d dimensions, configured for %d", len(vec), s.dims),
		}
	}

	if s.cache != nil {
		s.cache.Set(key, vec, int64(4*len(vec)))
	}
	return vec, nil
}

// cacheKey derives a fixed-size key from the backend label and text so two
// services over different backends never share entries. ristretto hashes
// string keys internally; hashing here keeps huge texts out of the key.
func (s *Service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(s.label + "\x00" + text))
	return string(sum[:])
}

// Close releases the cache's background resources.
func (s *Service) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}
