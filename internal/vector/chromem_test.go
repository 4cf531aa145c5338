package vector

import (
	"context"
	"errors"
	"testing"

	"github.com/olserra/xmem-go/internal/memory"
)

func TestChromem_AddSearchDelete(t *testing.T) {
	t.Parallel()
	s := NewChromemStore(&ChromemConfig{Collection: "notes", VectorSize: 3})
	ctx := context.Background()

	items := []*memory.Item{
		{ID: "a", Text: "points east", Embedding: []float32{1, 0, 0}, Metadata: map[string]any{"lang": "en"}},
		{ID: "b", Text: "points north", Embedding: []float32{0, 1, 0}},
	}
	for _, it := range items {
		if err := s.AddEmbedding(ctx, it, ""); err != nil {
			t.Fatalf("add %s: %v", it.ID, err)
		}
	}

	hits, err := s.SearchEmbedding(ctx, []float32{0.9, 0.1, 0}, 2, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 || hits[0].ID != "a" {
		t.Fatalf("expected 'a' as top hit, got %+v", hits)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v vs %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].Payload["text"] != "points east" || hits[0].Payload["lang"] != "en" {
		t.Errorf("payload lost fields: %v", hits[0].Payload)
	}

	if err := s.DeleteEmbedding(ctx, "a", ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	hits, err = s.SearchEmbedding(ctx, []float32{1, 0, 0}, 2, "")
	if err != nil {
		t.Fatalf("search after delete: %v", err)
	}
	for _, h := range hits {
		if h.ID == "a" {
			t.Fatal("deleted item still returned")
		}
	}
}

func TestChromem_DimensionMismatchRejected(t *testing.T) {
	t.Parallel()
	s := NewChromemStore(&ChromemConfig{VectorSize: 3})

	err := s.AddEmbedding(context.Background(), &memory.Item{
		ID: "x", Text: "wrong dims", Embedding: []float32{1, 0},
	}, "")

	var ve *memory.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestChromem_EmptyEmbeddingRejected(t *testing.T) {
	t.Parallel()
	s := NewChromemStore(nil)

	err := s.AddEmbedding(context.Background(), &memory.Item{ID: "x", Text: "no vector"}, "")

	var ve *memory.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestChromem_SearchEmptyCollection(t *testing.T) {
	t.Parallel()
	s := NewChromemStore(nil)

	hits, err := s.SearchEmbedding(context.Background(), []float32{1, 0}, 5, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits, got %+v", hits)
	}
}

func TestChromem_TopKClampedToCollectionSize(t *testing.T) {
	t.Parallel()
	s := NewChromemStore(nil)
	ctx := context.Background()

	if err := s.AddEmbedding(ctx, &memory.Item{ID: "only", Text: "one", Embedding: []float32{1, 0}}, ""); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := s.SearchEmbedding(ctx, []float32{1, 0}, 50, "")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
}

func TestChromem_CollectionsAreIsolated(t *testing.T) {
	t.Parallel()
	s := NewChromemStore(nil)
	ctx := context.Background()

	if err := s.AddEmbedding(ctx, &memory.Item{ID: "a", Text: "in alpha", Embedding: []float32{1, 0}}, "alpha"); err != nil {
		t.Fatalf("add: %v", err)
	}

	hits, err := s.SearchEmbedding(ctx, []float32{1, 0}, 5, "beta")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("beta should be empty, got %+v", hits)
	}
}
