// Package server implements the HTTP server that exposes the memory
// engine via a REST API: memory writes and deletes, semantic search,
// ranked context preview, and agent chat with injected memory.
// The server is started by the `xmem serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/orchestrator"
	"github.com/olserra/xmem-go/internal/pipeline"
	"github.com/olserra/xmem-go/internal/sources"
	"github.com/olserra/xmem-go/internal/stitch"
)

// previewLimit caps the context-preview response size.
const previewLimit = 20

// New constructs a Server from the orchestrator, ranking pipeline,
// stitcher, source catalog, and config.
func New(orch *orchestrator.Orchestrator, pipe *pipeline.Pipeline, stitcher *stitch.Stitcher, catalog *sources.Catalog, cfg *Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("server: orchestrator must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 2 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	s := &Server{
		orch:     orch,
		pipe:     pipe,
		stitcher: stitcher,
		catalog:  catalog,
		cfg:      cfg,
		log:      log,
		metrics:  newServerMetrics(reg),
		pingers:  cfg.Pingers,
	}

	rps := cfg.RateLimit
	if rps == 0 {
		rps = defaultRateLimit
	}
	burst := cfg.RateBurst
	if burst == 0 {
		burst = defaultRateBurst
	}
	rl, stopRL := newRateLimiter(rps, burst, log)
	s.stopRL = stopRL

	if cfg.APIKey == "" {
		log.Warn("server: XMEM_API_KEY not set — API authentication is disabled")
	}
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, authMiddleware(cfg.APIKey, rl.middleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/memory", protected("memory_add", s.handleMemoryAdd))
	mux.Handle("DELETE /api/memory", protected("memory_delete", s.handleMemoryDelete))
	mux.Handle("POST /api/search", protected("search", s.handleSearch))
	mux.Handle("POST /api/context-preview", protected("context_preview", s.handleContextPreview))
	mux.Handle("POST /api/agent-chat", protected("agent_chat", s.handleAgentChat))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the server's root handler; used by tests with httptest.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("xmem server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleMemoryAdd handles POST /api/memory.
func (s *Server) handleMemoryAdd(w http.ResponseWriter, r *http.Request) {
	var req memoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	item := &memory.Item{
		ID:        req.ID,
		Text:      req.Text,
		Metadata:  req.Metadata,
		SessionID: req.SessionID,
	}
	id, err := s.orch.AddMemory(r.Context(), item, &orchestrator.Opts{
		VectorProvider: req.Provider,
		Collection:     req.Collection,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, memoryResponse{ID: id})
}

// handleMemoryDelete handles DELETE /api/memory. Deleting an unknown id
// succeeds: the operation is idempotent.
func (s *Server) handleMemoryDelete(w http.ResponseWriter, r *http.Request) {
	var req deleteMemoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	err := s.orch.DeleteMemory(r.Context(), req.ID, req.SessionID, &orchestrator.Opts{
		VectorProvider: req.Provider,
		Collection:     req.Collection,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Query == "" {
		http.Error(w, "query is required", http.StatusBadRequest)
		return
	}

	hits, err := s.orch.SemanticSearch(r.Context(), req.Query, &orchestrator.Opts{
		VectorProvider: req.Provider,
		Collection:     req.Collection,
		TopK:           req.TopK,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := searchResponse{Results: make([]searchResult, 0, len(hits))}
	for _, h := range hits {
		resp.Results = append(resp.Results, searchResult{ID: h.ID, Score: h.Score, Payload: h.Payload})
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleContextPreview handles POST /api/context-preview: it resolves the
// requested sources, fans the query out through the ranking pipeline, and
// returns at most 20 ranked context items. Sources that fail are reported
// but never fail the request.
func (s *Server) handleContextPreview(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req contextPreviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.SourceIDs) == 0 {
		writeJSON(w, http.StatusOK, contextPreviewResponse{Queries: []memory.ContextItem{}})
		return
	}

	if req.ProjectID != "" {
		logging.FromContext(r.Context()).Debug("context preview", "project_id", req.ProjectID)
	}
	items, failed, err := s.rankSources(r.Context(), req.Query, req.SourceIDs, req.Collection, req.Method, req.RankingFactors)
	if err != nil {
		s.metrics.contextRequestsTotal.WithLabelValues("error").Inc()
		s.writeError(w, r, err)
		return
	}

	s.metrics.contextRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.contextDurationSeconds.Observe(time.Since(start).Seconds())
	if len(items) > previewLimit {
		items = items[:previewLimit]
	}
	if items == nil {
		items = []memory.ContextItem{}
	}
	writeJSON(w, http.StatusOK, contextPreviewResponse{Queries: items, FailedSources: failed})
}

// handleAgentChat handles POST /api/agent-chat: stitched session memory
// plus ranked long-term context are concatenated into one prompt for the
// selected LLM provider.
func (s *Server) handleAgentChat(w http.ResponseWriter, r *http.Request) {
	var req agentChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserInput == "" {
		http.Error(w, "user_input is required", http.StatusBadRequest)
		return
	}

	llmProvider, err := s.orch.Registry().LLM(req.Model)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	meta := agentChatMetadata{Model: req.Model}
	contextData := map[string]any{}

	if len(req.Sessions) > 0 && s.stitcher != nil {
		blocks, err := s.stitcher.Stitch(r.Context(), req.UserInput, req.Sessions)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		meta.SessionsStitched = len(blocks)
		for _, b := range blocks {
			meta.StitchedSessions = append(meta.StitchedSessions, b.SessionID)
		}
		if rendered := stitch.RenderBlocks(blocks); rendered != "" {
			contextData["session_memory"] = rendered
		}
	}

	if len(req.Sources) > 0 {
		items, failed, err := s.rankSources(r.Context(), req.UserInput, req.Sources, "", "", nil)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		meta.ContextItems = len(items)
		meta.Sources = req.Sources
		meta.FailedSources = failed
		if len(items) > 0 {
			texts := make([]map[string]any, 0, len(items))
			for _, it := range items {
				texts = append(texts, it.Payload)
			}
			contextData["long_term_memory"] = texts
		}
	}

	reply, err := llmProvider.GenerateResponse(r.Context(), req.UserInput, contextData)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agentChatResponse{Reply: reply, Metadata: meta})
}

// rankSources resolves catalog sources and runs the ranking pipeline,
// folding resolution failures into the pipeline's per-source failure list.
// A non-empty collection overrides every resolved source's configured
// collection.
func (s *Server) rankSources(ctx context.Context, query string, sourceIDs []string, collection, method string, factors *memory.RankingFactors) ([]memory.ContextItem, []string, error) {
	if s.catalog == nil || s.pipe == nil {
		return nil, nil, fmt.Errorf("server: source retrieval is not configured")
	}
	refs, resolveFailed, err := s.catalog.Resolve(ctx, sourceIDs)
	if err != nil {
		return nil, nil, err
	}
	if collection != "" {
		for i := range refs {
			refs[i].Collection = collection
		}
	}

	res, err := s.pipe.Rank(ctx, query, refs, &pipeline.Options{
		Method:  memory.Method(method),
		Factors: factors,
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.sourcesSearched.Add(float64(len(refs)))
	failed := make([]string, 0, len(resolveFailed)+len(res.Failed))
	for _, f := range resolveFailed {
		failed = append(failed, f.SourceID)
	}
	for _, f := range res.Failed {
		failed = append(failed, f.SourceID)
	}
	s.metrics.sourceFailuresTotal.Add(float64(len(failed)))
	if len(failed) == 0 {
		failed = nil
	}
	return res.Items, failed, nil
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeError maps typed errors onto HTTP statuses: validation problems are
// the client's fault, unknown providers are configuration errors, and
// backend failures are upstream problems.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := logging.FromContext(r.Context())

	var (
		ve *memory.ValidationError
		nf *memory.ProviderNotFoundError
		be *memory.BackendError
		ee *memory.EmbeddingError
	)
	switch {
	case errors.As(err, &ve):
		http.Error(w, ve.Error(), http.StatusBadRequest)
	case errors.As(err, &nf):
		http.Error(w, nf.Error(), http.StatusNotFound)
	case errors.As(err, &ee):
		log.Error("embedding failure", "error", err)
		http.Error(w, "embedding backend unavailable", http.StatusBadGateway)
	case errors.As(err, &be):
		log.Error("backend failure", "backend", be.Backend, "operation", be.Operation, "error", be.Cause)
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	default:
		log.Error("internal error", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
