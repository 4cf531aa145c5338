package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/olserra/xmem-go/internal/embedding"
	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/orchestrator"
	"github.com/olserra/xmem-go/internal/pipeline"
	"github.com/olserra/xmem-go/internal/registry"
	"github.com/olserra/xmem-go/internal/session"
	"github.com/olserra/xmem-go/internal/sources"
	"github.com/olserra/xmem-go/internal/stitch"
	"github.com/olserra/xmem-go/internal/vector"
)

// hashEmbedder maps text deterministically onto an 8-dim vector so that
// identical texts embed identically and similarity is reproducible.
type hashEmbedder struct{}

func (hashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, 8)
		for j, r := range t {
			v[j%8] += float32(r%13) + 1
		}
		out[i] = v
	}
	return out, nil
}

// stubLLM records the last prompt and context it saw and replies with a
// fixed string.
type stubLLM struct {
	lastPrompt  string
	lastContext map[string]any
}

func (s *stubLLM) GenerateResponse(_ context.Context, prompt string, contextData map[string]any) (string, error) {
	s.lastPrompt = prompt
	s.lastContext = contextData
	return "stub reply", nil
}

func (s *stubLLM) Embed(context.Context, string) ([]float32, error) {
	return nil, fmt.Errorf("stub: %w", memory.ErrUnsupported)
}

// testEnv bundles the wired components behind a test server.
type testEnv struct {
	srv      *Server
	llm      *stubLLM
	catalog  *sources.Catalog
	sessions *session.MemStore
}

// newTestEnv wires a full server over in-process backends: a chromem vector
// store, an in-memory session store, an in-memory source catalog, and a
// stub LLM.
func newTestEnv(t *testing.T, cfg *Config) *testEnv {
	t.Helper()

	svc, err := embedding.NewService(hashEmbedder{}, &embedding.Config{DisableCache: true})
	if err != nil {
		t.Fatalf("embedding service: %v", err)
	}
	t.Cleanup(svc.Close)

	sessions := session.NewMemStore()
	llm := &stubLLM{}

	reg := registry.New()
	reg.RegisterVector("embedded", vector.NewChromemStore(&vector.ChromemConfig{Collection: "test"}))
	reg.RegisterSession("memory", sessions)
	reg.RegisterLLM("stub", llm)

	catalog, err := sources.Open(":memory:")
	if err != nil {
		t.Fatalf("open catalog: %v", err)
	}
	t.Cleanup(func() { _ = catalog.Close() })

	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	srv, err := New(
		orchestrator.New(reg, svc),
		pipeline.New(svc),
		stitch.New(svc, sessions),
		catalog,
		cfg,
	)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(srv.stopRL)

	return &testEnv{srv: srv, llm: llm, catalog: catalog, sessions: sessions}
}

// do sends a JSON request through the server's full middleware chain.
func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(w.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

// TestServer_MemoryRoundTrip adds a memory over HTTP, finds it via search,
// deletes it, and verifies idempotent delete.
func TestServer_MemoryRoundTrip(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/memory", memoryRequest{Text: "the deploy runs at midnight"})
	if w.Code != http.StatusCreated {
		t.Fatalf("add: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	added := decode[memoryResponse](t, w)
	if added.ID == "" {
		t.Fatal("add: expected a generated id")
	}

	w = env.do(t, http.MethodPost, "/api/search", searchRequest{Query: "the deploy runs at midnight"})
	if w.Code != http.StatusOK {
		t.Fatalf("search: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	found := decode[searchResponse](t, w)
	if len(found.Results) == 0 || found.Results[0].ID != added.ID {
		t.Fatalf("search: expected %q as top hit, got %+v", added.ID, found.Results)
	}

	w = env.do(t, http.MethodDelete, "/api/memory", deleteMemoryRequest{ID: added.ID})
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", w.Code)
	}
	w = env.do(t, http.MethodDelete, "/api/memory", deleteMemoryRequest{ID: added.ID})
	if w.Code != http.StatusNoContent {
		t.Fatalf("repeat delete: expected 204, got %d", w.Code)
	}
}

// TestServer_MemoryValidation verifies that malformed add requests are the
// client's fault.
func TestServer_MemoryValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/memory", memoryRequest{Text: ""})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty text: expected 400, got %d", w.Code)
	}

	w = env.do(t, http.MethodDelete, "/api/memory", deleteMemoryRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("empty id: expected 400, got %d", w.Code)
	}
}

// TestServer_UnknownProviderIs404 verifies that naming an unregistered
// provider maps to 404, not 500.
func TestServer_UnknownProviderIs404(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/search", searchRequest{Query: "q", Provider: "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", w.Code, w.Body.String())
	}
}

// TestServer_ContextPreview ranks context across a catalog source and skips
// unknown source ids without failing the request.
func TestServer_ContextPreview(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	ctx := context.Background()

	src, err := env.catalog.Create(ctx, sources.Source{Name: "local", Type: vector.BackendChromem})
	if err != nil {
		t.Fatalf("create source: %v", err)
	}

	emb := hashEmbedder{}
	for i, text := range []string{"rollback procedure for api gateway", "office plant watering schedule"} {
		vecs, _ := emb.Embed(ctx, []string{text})
		item := &memory.Item{
			ID:        fmt.Sprintf("doc-%d", i),
			Text:      text,
			Embedding: vecs[0],
			Metadata:  map[string]any{"text": text},
		}
		if err := env.catalog.Embedded().AddEmbedding(ctx, item, ""); err != nil {
			t.Fatalf("seed embedded store: %v", err)
		}
	}

	w := env.do(t, http.MethodPost, "/api/context-preview", contextPreviewRequest{
		SourceIDs: []string{src.ID, "does-not-exist"},
		Query:     "rollback procedure for api gateway",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[contextPreviewResponse](t, w)
	if len(resp.Queries) == 0 {
		t.Fatal("expected ranked context items")
	}
	if resp.Queries[0].ID != "doc-0" {
		t.Fatalf("expected doc-0 ranked first, got %q", resp.Queries[0].ID)
	}
	for _, it := range resp.Queries {
		if it.NormalizedScore < 0 || it.NormalizedScore > 1 {
			t.Fatalf("normalized score out of [0,1]: %v", it.NormalizedScore)
		}
	}
}

// TestServer_ContextPreviewNoSources returns an empty list rather than an
// error when no sources are selected.
func TestServer_ContextPreviewNoSources(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/context-preview", contextPreviewRequest{Query: "q"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	resp := decode[contextPreviewResponse](t, w)
	if len(resp.Queries) != 0 {
		t.Fatalf("expected no items, got %d", len(resp.Queries))
	}
}

// TestServer_AgentChat stitches session memory plus ranked source context
// into the LLM call and reports what was injected.
func TestServer_AgentChat(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)
	ctx := context.Background()

	err := env.sessions.AppendMessage(ctx, "s1", memory.SessionMessage{
		ID:        "m1",
		Role:      "user",
		Content:   "we agreed on blue for the dashboard",
		Pinned:    true,
		CreatedAt: time.Now(),
	})
	if err != nil {
		t.Fatalf("seed session: %v", err)
	}

	w := env.do(t, http.MethodPost, "/api/agent-chat", agentChatRequest{
		UserInput: "what color did we pick?",
		Sessions:  []string{"s1"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decode[agentChatResponse](t, w)
	if resp.Reply != "stub reply" {
		t.Fatalf("expected stub reply, got %q", resp.Reply)
	}
	if resp.Metadata.SessionsStitched != 1 {
		t.Fatalf("expected 1 stitched session, got %d", resp.Metadata.SessionsStitched)
	}
	if len(resp.Metadata.StitchedSessions) != 1 || resp.Metadata.StitchedSessions[0] != "s1" {
		t.Fatalf("expected stitched session ids [s1], got %v", resp.Metadata.StitchedSessions)
	}
	if env.llm.lastPrompt != "what color did we pick?" {
		t.Fatalf("prompt not forwarded, got %q", env.llm.lastPrompt)
	}
	rendered, ok := env.llm.lastContext["session_memory"].(string)
	if !ok || rendered == "" {
		t.Fatalf("expected session memory in LLM context, got %v", env.llm.lastContext)
	}
}

// TestServer_AgentChatRequiresInput rejects an empty user_input.
func TestServer_AgentChatRequiresInput(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, nil)

	w := env.do(t, http.MethodPost, "/api/agent-chat", agentChatRequest{})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

// TestServer_AuthProtectsAPI verifies the API key gates /api routes but not
// liveness.
func TestServer_AuthProtectsAPI(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t, &Config{APIKey: "secret"})

	w := env.do(t, http.MethodPost, "/api/search", searchRequest{Query: "q"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("health should not require auth, got %d", rec.Code)
	}
}
