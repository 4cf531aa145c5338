package session

import (
	"context"
	"testing"

	"github.com/olserra/xmem-go/internal/memory"
)

func TestMemStore_RoundTrip(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	if err := s.AppendMessage(ctx, "s1", memory.SessionMessage{ID: "m1", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	rec, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if rec == nil || len(rec.Messages) != 1 || rec.Messages[0].ID != "m1" {
		t.Fatalf("unexpected record: %+v", rec)
	}

	if err := s.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	rec, err = s.GetSession(ctx, "s1")
	if err != nil || rec != nil {
		t.Fatalf("expected session gone, got %+v (err %v)", rec, err)
	}
}

func TestMemStore_GetReturnsCopy(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	if err := s.SetSession(ctx, &memory.SessionRecord{
		SessionID: "s1",
		Messages:  []memory.SessionMessage{{ID: "m1", Content: "original"}},
		Data:      map[string]any{"k": "v"},
	}); err != nil {
		t.Fatalf("set: %v", err)
	}

	rec, _ := s.GetSession(ctx, "s1")
	rec.Messages[0].Content = "mutated"
	rec.Data["k"] = "mutated"

	again, _ := s.GetSession(ctx, "s1")
	if again.Messages[0].Content != "original" || again.Data["k"] != "v" {
		t.Fatalf("store state leaked through returned record: %+v", again)
	}
}

func TestMemStore_SoftDeleteMarksMessage(t *testing.T) {
	t.Parallel()
	s := NewMemStore()
	ctx := context.Background()

	_ = s.AppendMessage(ctx, "s1", memory.SessionMessage{ID: "m1", Content: "x"})
	if err := s.DeleteMessage(ctx, "s1", "m1"); err != nil {
		t.Fatalf("delete message: %v", err)
	}
	if err := s.DeleteMessage(ctx, "ghost", "m1"); err != nil {
		t.Fatalf("unknown session should be a no-op: %v", err)
	}

	rec, _ := s.GetSession(ctx, "s1")
	if !rec.Messages[0].Deleted {
		t.Fatal("expected message marked deleted")
	}
}
