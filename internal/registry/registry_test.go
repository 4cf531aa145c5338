package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/session"
	"github.com/olserra/xmem-go/internal/vector"
)

// fakeVector is a minimal vector.Store for registry identity checks.
type fakeVector struct{ id string }

func (f *fakeVector) AddEmbedding(context.Context, *memory.Item, string) error { return nil }
func (f *fakeVector) SearchEmbedding(context.Context, []float32, int, string) ([]vector.Result, error) {
	return nil, nil
}
func (f *fakeVector) DeleteEmbedding(context.Context, string, string) error { return nil }
func (f *fakeVector) Close() error                                          { return nil }

func Test_FirstRegistrationBecomesDefault(t *testing.T) {
	t.Parallel()

	r := New()
	first := &fakeVector{id: "first"}
	second := &fakeVector{id: "second"}
	r.RegisterVector("qdrant-main", first)
	r.RegisterVector("qdrant-backup", second)

	got, err := r.Vector("")
	if err != nil {
		t.Fatalf("Vector(\"\") returned error: %v", err)
	}
	if got != first {
		t.Fatalf("default vector store = %v, want the first registration", got)
	}
}

func Test_SetDefaultSwitchesLookup(t *testing.T) {
	t.Parallel()

	r := New()
	first := &fakeVector{id: "first"}
	second := &fakeVector{id: "second"}
	r.RegisterVector("a", first)
	r.RegisterVector("b", second)

	if err := r.SetDefault(KindVector, "b"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}
	got, err := r.Vector("")
	if err != nil {
		t.Fatalf("Vector(\"\"): %v", err)
	}
	if got != second {
		t.Fatalf("default after SetDefault = %v, want %v", got, second)
	}
}

func Test_SetDefaultUnknownNameKeepsPrevious(t *testing.T) {
	t.Parallel()

	r := New()
	first := &fakeVector{id: "first"}
	r.RegisterVector("a", first)

	err := r.SetDefault(KindVector, "missing")
	var nf *memory.ProviderNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("SetDefault(missing) error = %v, want ProviderNotFoundError", err)
	}

	got, err := r.Vector("")
	if err != nil {
		t.Fatalf("Vector(\"\"): %v", err)
	}
	if got != first {
		t.Fatalf("default was disturbed by failed SetDefault")
	}
}

func Test_ReRegisterReplacesInstance(t *testing.T) {
	t.Parallel()

	r := New()
	old := &fakeVector{id: "old"}
	replacement := &fakeVector{id: "new"}
	r.RegisterVector("a", old)
	r.RegisterVector("a", replacement)

	got, err := r.Vector("a")
	if err != nil {
		t.Fatalf("Vector(a): %v", err)
	}
	if got != replacement {
		t.Fatalf("Vector(a) = %v, want replacement instance", got)
	}
}

func Test_LookupMissingProvider(t *testing.T) {
	t.Parallel()

	r := New()

	if _, err := r.Vector(""); err == nil {
		t.Fatal("Vector(\"\") on empty registry: expected error")
	}
	_, err := r.Session("nope")
	var nf *memory.ProviderNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("Session(nope) error = %v, want ProviderNotFoundError", err)
	}
	if nf.Kind != string(KindSession) || nf.Name != "nope" {
		t.Fatalf("ProviderNotFoundError = %+v, want kind=session name=nope", nf)
	}
}

func Test_KindsAreIndependent(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterVector("shared-name", &fakeVector{})
	r.RegisterSession("shared-name", session.NewMemStore())

	if _, err := r.Vector("shared-name"); err != nil {
		t.Fatalf("Vector(shared-name): %v", err)
	}
	if _, err := r.Session("shared-name"); err != nil {
		t.Fatalf("Session(shared-name): %v", err)
	}
	if _, err := r.LLM("shared-name"); err == nil {
		t.Fatal("LLM(shared-name): expected ProviderNotFoundError, name is registered under other kinds only")
	}
}

func Test_NamesListsDefaultFirst(t *testing.T) {
	t.Parallel()

	r := New()
	r.RegisterVector("a", &fakeVector{})
	r.RegisterVector("b", &fakeVector{})
	r.RegisterVector("c", &fakeVector{})
	if err := r.SetDefault(KindVector, "c"); err != nil {
		t.Fatalf("SetDefault: %v", err)
	}

	got := r.VectorNames()
	if len(got) != 3 {
		t.Fatalf("VectorNames len = %d, want 3", len(got))
	}
	if got[0] != "c" {
		t.Fatalf("VectorNames[0] = %q, want default %q first", got[0], "c")
	}
}
