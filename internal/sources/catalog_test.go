package sources

import (
	"context"
	"errors"
	"testing"

	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/vector"
)

func openTestCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func Test_CreateAndGetSource(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	ctx := context.Background()

	created, err := c.Create(ctx, Source{
		Name:       "local",
		Type:       vector.BackendChromem,
		Collection: "notes",
		VectorSize: 8,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("Create did not assign an id")
	}

	got, err := c.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil || got.Name != "local" || got.Type != vector.BackendChromem || got.Collection != "notes" {
		t.Fatalf("Get = %+v, want the created source back", got)
	}
}

func Test_CreateValidatesInput(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	ctx := context.Background()

	var ve *memory.ValidationError
	if _, err := c.Create(ctx, Source{Type: vector.BackendChromem}); !errors.As(err, &ve) {
		t.Fatalf("Create without name: err = %v, want ValidationError", err)
	}
	if _, err := c.Create(ctx, Source{Name: "x", Type: "redis"}); !errors.As(err, &ve) {
		t.Fatalf("Create with unknown type: err = %v, want ValidationError", err)
	}
}

func Test_GetUnknownSourceIsNil(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	got, err := c.Get(context.Background(), "nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Fatalf("Get(nope) = %+v, want nil", got)
	}
}

func Test_ListOrdersByCreation(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		if _, err := c.Create(ctx, Source{Name: name, Type: vector.BackendChromem}); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
	}

	got, err := c.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 3 || got[0].Name != "first" || got[2].Name != "third" {
		t.Fatalf("List = %+v, want creation order", got)
	}
}

func Test_DeleteIsIdempotent(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	ctx := context.Background()

	created, err := c.Create(ctx, Source{Name: "gone", Type: vector.BackendChromem})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := c.Delete(ctx, created.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := c.Delete(ctx, created.ID); err != nil {
		t.Fatalf("repeat Delete: %v", err)
	}
	if err := c.Delete(ctx, "never-existed"); err != nil {
		t.Fatalf("Delete(unknown): %v", err)
	}
}

func Test_ResolveSkipsUnknownIDs(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	ctx := context.Background()

	created, err := c.Create(ctx, Source{Name: "local", Type: vector.BackendChromem, Collection: "notes"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	refs, failed, err := c.Resolve(ctx, []string{"unknown", created.ID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(failed) != 0 {
		t.Fatalf("failed = %+v, want none", failed)
	}
	if len(refs) != 1 || refs[0].SourceID != created.ID || refs[0].Collection != "notes" {
		t.Fatalf("refs = %+v, want one ref for the known source", refs)
	}
}

func Test_ResolveSharesEmbeddedStore(t *testing.T) {
	t.Parallel()

	c := openTestCatalog(t)
	ctx := context.Background()

	a, err := c.Create(ctx, Source{Name: "a", Type: vector.BackendChromem, Collection: "ca"})
	if err != nil {
		t.Fatalf("Create(a): %v", err)
	}
	b, err := c.Create(ctx, Source{Name: "b", Type: vector.BackendChromem, Collection: "cb"})
	if err != nil {
		t.Fatalf("Create(b): %v", err)
	}

	refs, _, err := c.Resolve(ctx, []string{a.ID, b.ID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("len(refs) = %d, want 2", len(refs))
	}
	if refs[0].Store != refs[1].Store {
		t.Fatal("chromem sources must share one embedded store instance")
	}
	if refs[0].Store != vector.Store(c.Embedded()) {
		t.Fatal("resolved store is not the catalog's embedded instance")
	}
}
