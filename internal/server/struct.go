package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/orchestrator"
	"github.com/olserra/xmem-go/internal/pipeline"
	"github.com/olserra/xmem-go/internal/sources"
	"github.com/olserra/xmem-go/internal/stitch"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// Registry overrides the Prometheus registry; nil uses a fresh one.
	// Tests inject their own so metric registration stays hermetic.
	Registry registerGatherer
}

// Server is the HTTP server exposing the memory API: write/search/delete
// memories, preview ranked context, and agent chat with injected memory.
type Server struct {
	// orch is the memory orchestrator handling add/search/delete/query.
	orch *orchestrator.Orchestrator
	// pipe ranks context across the sources selected per request.
	pipe *pipeline.Pipeline
	// stitcher assembles session memory for agent chat.
	stitcher *stitch.Stitcher
	// catalog resolves source ids into live vector stores.
	catalog *sources.Catalog
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// metrics holds the Prometheus instruments owned by this server.
	metrics *serverMetrics
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// memoryRequest is the JSON body for POST /api/memory.
type memoryRequest struct {
	// ID is the caller-supplied memory id; generated when empty.
	ID string `json:"id,omitempty"`
	// Text is the memory content to embed and store.
	Text string `json:"text"`
	// Metadata is attached to the stored vector payload.
	Metadata map[string]any `json:"metadata,omitempty"`
	// SessionID mirrors the memory into the named session when set.
	SessionID string `json:"sessionId,omitempty"`
	// Collection overrides the vector store's default collection.
	Collection string `json:"collection,omitempty"`
	// Provider names the vector store to write to; empty means default.
	Provider string `json:"provider,omitempty"`
}

// memoryResponse is the JSON response for POST /api/memory.
type memoryResponse struct {
	// ID is the stored memory id.
	ID string `json:"id"`
}

// deleteMemoryRequest is the JSON body for DELETE /api/memory.
type deleteMemoryRequest struct {
	// ID is the memory id to delete.
	ID string `json:"id"`
	// SessionID, when set, deletes that session too.
	SessionID string `json:"sessionId,omitempty"`
	// Collection overrides the vector store's default collection.
	Collection string `json:"collection,omitempty"`
	// Provider names the vector store; empty means default.
	Provider string `json:"provider,omitempty"`
}

// searchRequest is the JSON body for POST /api/search.
type searchRequest struct {
	// Query is the text to search for.
	Query string `json:"query"`
	// TopK caps the result count; 0 means 5.
	TopK int `json:"topK,omitempty"`
	// Collection overrides the vector store's default collection.
	Collection string `json:"collection,omitempty"`
	// Provider names the vector store; empty means default.
	Provider string `json:"provider,omitempty"`
}

// searchResult is one hit in the POST /api/search response.
type searchResult struct {
	// ID is the stored memory id.
	ID string `json:"id"`
	// Score is the backend relevance score, higher is better.
	Score float64 `json:"score"`
	// Payload is the stored metadata plus text.
	Payload map[string]any `json:"payload"`
}

// searchResponse is the JSON response for POST /api/search.
type searchResponse struct {
	Results []searchResult `json:"results"`
}

// contextPreviewRequest is the JSON body for POST /api/context-preview.
type contextPreviewRequest struct {
	// ProjectID scopes the preview for logging; sources are already
	// project-scoped by the caller's selection.
	ProjectID string `json:"projectId,omitempty"`
	// SourceIDs selects catalog sources to fan out to.
	SourceIDs []string `json:"sourceIds"`
	// Collection overrides every source's configured collection when set.
	Collection string `json:"collection,omitempty"`
	// Method is the ranking strategy: smart, similarity, recency,
	// feedback, or manual. Empty means smart.
	Method string `json:"method,omitempty"`
	// Query is the text whose context is being previewed.
	Query string `json:"query"`
	// RankingFactors weights smart ranking; nil uses the defaults.
	RankingFactors *memory.RankingFactors `json:"rankingFactors,omitempty"`
}

// contextPreviewResponse is the JSON response for POST /api/context-preview.
type contextPreviewResponse struct {
	// Queries is the ranked context list, capped at 20 items.
	Queries []memory.ContextItem `json:"queries"`
	// FailedSources lists source ids that errored and were excluded.
	FailedSources []string `json:"failedSources,omitempty"`
}

// agentChatRequest is the JSON body for POST /api/agent-chat.
type agentChatRequest struct {
	// UserInput is the user's message.
	UserInput string `json:"user_input"`
	// Sources selects catalog sources for long-term memory retrieval.
	Sources []string `json:"sources,omitempty"`
	// Sessions selects session ids for conversational memory stitching.
	Sessions []string `json:"sessions,omitempty"`
	// Model names a registered LLM provider; empty means default.
	Model string `json:"model,omitempty"`
}

// agentChatResponse is the JSON response for POST /api/agent-chat.
type agentChatResponse struct {
	// Reply is the model's response text.
	Reply string `json:"reply"`
	// Metadata describes the memory injected into the prompt.
	Metadata agentChatMetadata `json:"metadata"`
}

// agentChatMetadata summarizes what context reached the model.
type agentChatMetadata struct {
	// ContextItems is the number of ranked vector hits injected.
	ContextItems int `json:"contextItems"`
	// Sources echoes the source ids that were searched.
	Sources []string `json:"sources,omitempty"`
	// SessionsStitched is the number of sessions that contributed memory.
	SessionsStitched int `json:"sessionsStitched"`
	// StitchedSessions lists the session ids that contributed memory.
	StitchedSessions []string `json:"stitchedSessions,omitempty"`
	// FailedSources lists source ids that errored during retrieval.
	FailedSources []string `json:"failedSources,omitempty"`
	// Model is the provider name that generated the reply.
	Model string `json:"model,omitempty"`
}
