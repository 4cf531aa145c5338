package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/olserra/xmem-go/internal/embedding"
	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/registry"
	"github.com/olserra/xmem-go/internal/session"
	"github.com/olserra/xmem-go/internal/vector"
)

// hashEmbedder maps identical text to identical vectors so round-trip
// searches are deterministic without a model backend.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v := make([]float32, 8)
		for j, r := range text {
			v[j%8] += float32(r%13) + 1
		}
		out[i] = v
	}
	return out, nil
}

// failingSession simulates a broken session backend.
type failingSession struct{}

func (failingSession) GetSession(context.Context, string) (*memory.SessionRecord, error) {
	return nil, errors.New("session backend down")
}
func (failingSession) SetSession(context.Context, *memory.SessionRecord) error {
	return errors.New("session backend down")
}
func (failingSession) AppendMessage(context.Context, string, memory.SessionMessage) error {
	return errors.New("session backend down")
}
func (failingSession) DeleteMessage(context.Context, string, string) error {
	return errors.New("session backend down")
}
func (failingSession) DeleteSession(context.Context, string) error {
	return errors.New("session backend down")
}
func (failingSession) Close() error { return nil }

// recordingLLM captures the context passed to GenerateResponse.
type recordingLLM struct {
	lastPrompt  string
	lastContext map[string]any
}

func (r *recordingLLM) GenerateResponse(_ context.Context, prompt string, contextData map[string]any) (string, error) {
	r.lastPrompt = prompt
	r.lastContext = contextData
	return "reply to " + prompt, nil
}
func (r *recordingLLM) Embed(context.Context, string) ([]float32, error) {
	return nil, memory.ErrUnsupported
}

func newTestOrchestrator(t *testing.T, sess session.Store) *Orchestrator {
	t.Helper()
	svc, err := embedding.NewService(hashEmbedder{}, &embedding.Config{Dimensions: 8, DisableCache: true})
	if err != nil {
		t.Fatalf("embedding.NewService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })

	reg := registry.New()
	reg.RegisterVector("embedded", vector.NewChromemStore(&vector.ChromemConfig{Collection: "test", VectorSize: 8}))
	if sess != nil {
		reg.RegisterSession("default", sess)
	}
	return New(reg, svc)
}

func Test_AddThenSearchRoundTrip(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, session.NewMemStore())
	ctx := context.Background()

	id, err := o.AddMemory(ctx, &memory.Item{ID: "m1", Text: "hello"}, nil)
	if err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if id != "m1" {
		t.Fatalf("AddMemory returned id %q, want caller-supplied m1", id)
	}

	hits, err := o.SemanticSearch(ctx, "hello", nil)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	found := false
	for _, h := range hits {
		if h.ID == "m1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("SemanticSearch(hello) hits = %+v, want m1 in top-K", hits)
	}
}

func Test_AddMemoryGeneratesID(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, nil)
	id, err := o.AddMemory(context.Background(), &memory.Item{Text: "no id supplied"}, nil)
	if err != nil {
		t.Fatalf("AddMemory: %v", err)
	}
	if id == "" {
		t.Fatal("AddMemory returned empty id")
	}
}

func Test_AddMemoryRejectsEmptyText(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, nil)
	_, err := o.AddMemory(context.Background(), &memory.Item{}, nil)
	var ve *memory.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("AddMemory(empty) err = %v, want ValidationError", err)
	}
}

func Test_AddMemorySessionMirrorBestEffort(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, failingSession{})
	id, err := o.AddMemory(context.Background(), &memory.Item{Text: "keep me", SessionID: "s1"}, nil)
	if err != nil {
		t.Fatalf("AddMemory must succeed when only the session mirror fails: %v", err)
	}

	// The vector write stuck even though the mirror failed.
	hits, err := o.SemanticSearch(context.Background(), "keep me", nil)
	if err != nil {
		t.Fatalf("SemanticSearch: %v", err)
	}
	if len(hits) == 0 || hits[0].ID != id {
		t.Fatalf("vector write missing after mirror failure: hits = %+v", hits)
	}
}

func Test_AddMemoryMirrorsIntoSession(t *testing.T) {
	t.Parallel()

	sess := session.NewMemStore()
	o := newTestOrchestrator(t, sess)
	ctx := context.Background()

	if _, err := o.AddMemory(ctx, &memory.Item{ID: "m1", Text: "remember", SessionID: "s1",
		Metadata: map[string]any{"pinned": true}}, nil); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	rec, err := sess.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if rec == nil || len(rec.Messages) != 1 {
		t.Fatalf("session record = %+v, want one mirrored message", rec)
	}
	if !rec.Messages[0].Pinned {
		t.Fatal("pinned metadata flag not carried into the session mirror")
	}
}

func Test_DeleteMemoryIdempotentAndCascades(t *testing.T) {
	t.Parallel()

	sess := session.NewMemStore()
	o := newTestOrchestrator(t, sess)
	ctx := context.Background()

	if _, err := o.AddMemory(ctx, &memory.Item{ID: "m1", Text: "to delete", SessionID: "s1"}, nil); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	if err := o.DeleteMemory(ctx, "m1", "s1", nil); err != nil {
		t.Fatalf("DeleteMemory: %v", err)
	}
	// Second delete of the same id must also succeed.
	if err := o.DeleteMemory(ctx, "m1", "s1", nil); err != nil {
		t.Fatalf("repeat DeleteMemory: %v", err)
	}

	rec, err := sess.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if rec != nil {
		t.Fatalf("session s1 survived the cascade: %+v", rec)
	}
}

func Test_AssembleContextCombinesBothMemories(t *testing.T) {
	t.Parallel()

	sess := session.NewMemStore()
	o := newTestOrchestrator(t, sess)
	ctx := context.Background()

	if err := sess.SetSession(ctx, &memory.SessionRecord{SessionID: "s1", Summary: "prior chat"}); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if _, err := o.AddMemory(ctx, &memory.Item{ID: "m1", Text: "long term fact"}, nil); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	got, err := o.AssembleContext(ctx, "s1", "long term fact", nil)
	if err != nil {
		t.Fatalf("AssembleContext: %v", err)
	}
	if got.SessionMemory == nil || got.SessionMemory.Summary != "prior chat" {
		t.Fatalf("SessionMemory = %+v, want the stored record", got.SessionMemory)
	}
	if len(got.LongTermMemory) == 0 {
		t.Fatal("LongTermMemory empty, want semantic hits")
	}
}

func Test_AssembleContextMissingSessionIsNotError(t *testing.T) {
	t.Parallel()

	o := newTestOrchestrator(t, session.NewMemStore())
	got, err := o.AssembleContext(context.Background(), "never-seen", "anything", nil)
	if err != nil {
		t.Fatalf("AssembleContext: %v", err)
	}
	if got.SessionMemory != nil {
		t.Fatalf("SessionMemory = %+v, want nil for unknown session", got.SessionMemory)
	}
}

func Test_QueryFeedsAssembledContextToLLM(t *testing.T) {
	t.Parallel()

	sess := session.NewMemStore()
	o := newTestOrchestrator(t, sess)
	llmStub := &recordingLLM{}
	o.Registry().RegisterLLM("stub", llmStub)
	ctx := context.Background()

	if err := sess.SetSession(ctx, &memory.SessionRecord{SessionID: "s1", Summary: "we discussed Go"}); err != nil {
		t.Fatalf("SetSession: %v", err)
	}
	if _, err := o.AddMemory(ctx, &memory.Item{ID: "m1", Text: "favorite language is Go"}, nil); err != nil {
		t.Fatalf("AddMemory: %v", err)
	}

	reply, err := o.Query(ctx, "favorite language?", "s1", nil)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if !strings.HasPrefix(reply, "reply to ") {
		t.Fatalf("reply = %q", reply)
	}
	if llmStub.lastContext["session"] == nil {
		t.Fatal("session memory not passed to the LLM")
	}
	if llmStub.lastContext["long_term_memory"] == nil {
		t.Fatal("long-term memory not passed to the LLM")
	}
}

func Test_MissingProviderSurfacesTypedError(t *testing.T) {
	t.Parallel()

	svc, err := embedding.NewService(hashEmbedder{}, &embedding.Config{Dimensions: 8, DisableCache: true})
	if err != nil {
		t.Fatalf("embedding.NewService: %v", err)
	}
	t.Cleanup(func() { svc.Close() })
	o := New(registry.New(), svc)

	_, err = o.SemanticSearch(context.Background(), "anything", nil)
	var nf *memory.ProviderNotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("SemanticSearch with empty registry: err = %v, want ProviderNotFoundError", err)
	}
}
