package embedding

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/olserra/xmem-go/internal/memory"
)

// countingEmbedder returns fixed-size vectors and counts backend calls.
type countingEmbedder struct {
	dims  int
	calls atomic.Int64
	err   error
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls.Add(1)
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = make([]float32, e.dims)
		out[i][0] = 1
	}
	return out, nil
}

func (e *countingEmbedder) Name() string { return "counting" }

func TestService_EmbedReturnsBackendVector(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{dims: 4}
	svc, err := NewService(emb, &Config{DisableCache: true})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)

	vec, err := svc.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vec) != 4 {
		t.Fatalf("expected 4 dims, got %d", len(vec))
	}
	if svc.Provider() != "counting" {
		t.Errorf("label not taken from Named embedder: %q", svc.Provider())
	}
}

func TestService_DimensionEnforcement(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{dims: 4}
	svc, err := NewService(emb, &Config{Dimensions: 8, DisableCache: true})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)

	_, err = svc.Embed(context.Background(), "hello")
	var ve *memory.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError on dim mismatch, got %v", err)
	}
}

func TestService_BackendFailureIsEmbeddingError(t *testing.T) {
	t.Parallel()

	boom := errors.New("backend down")
	emb := &countingEmbedder{dims: 4, err: boom}
	svc, err := NewService(emb, &Config{DisableCache: true})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)

	_, err = svc.Embed(context.Background(), "hello")
	var ee *memory.EmbeddingError
	if !errors.As(err, &ee) {
		t.Fatalf("expected EmbeddingError, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatalf("cause not preserved: %v", err)
	}
	if ee.Provider != "counting" {
		t.Errorf("provider label lost: %q", ee.Provider)
	}
}

func TestService_CacheSkipsRepeatCalls(t *testing.T) {
	t.Parallel()

	emb := &countingEmbedder{dims: 4}
	svc, err := NewService(emb, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	t.Cleanup(svc.Close)
	ctx := context.Background()

	if _, err := svc.Embed(ctx, "repeated query"); err != nil {
		t.Fatalf("first embed: %v", err)
	}
	// ristretto admits entries asynchronously; wait for the first entry to
	// be admitted so the repeat calls below deterministically hit the cache.
	svc.cache.Wait()
	for i := 0; i < 20; i++ {
		if _, err := svc.Embed(ctx, "repeated query"); err != nil {
			t.Fatalf("embed %d: %v", i, err)
		}
	}

	if got := emb.calls.Load(); got >= 21 {
		t.Fatalf("cache never engaged: %d backend calls for 21 requests", got)
	}
}

func TestService_NilEmbedderRejected(t *testing.T) {
	t.Parallel()

	if _, err := NewService(nil, nil); err == nil {
		t.Fatal("expected error for nil embedder")
	}
}
