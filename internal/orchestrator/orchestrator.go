// Package orchestrator ties the provider registry, embedding service, and
// vector/session stores into the memory API most callers use: add,
// search, delete, assemble context, and query.
package orchestrator

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/olserra/xmem-go/internal/embedding"
	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/registry"
	"github.com/olserra/xmem-go/internal/vector"
)

// defaultSearchTopK caps SemanticSearch results when the caller does not
// choose a K.
const defaultSearchTopK = 5

// Opts selects providers and tuning for one orchestrator call. Empty
// provider names resolve to each kind's registered default.
type Opts struct {
	// VectorProvider names the vector store to use.
	VectorProvider string
	// SessionProvider names the session store to use.
	SessionProvider string
	// LLMProvider names the model used by Query.
	LLMProvider string
	// Collection is the target collection in the vector store.
	Collection string
	// TopK caps search results; 0 means 5.
	TopK int
}

// Context is the assembled memory for one query: the session record (nil
// when no session was requested or found) plus the long-term semantic
// hits.
type Context struct {
	SessionMemory  *memory.SessionRecord
	LongTermMemory []vector.Result
}

// Orchestrator is the high-level memory API. Safe for concurrent use.
type Orchestrator struct {
	reg   *registry.Registry
	embed *embedding.Service
}

// New returns an Orchestrator resolving providers from reg and embedding
// text with svc.
func New(reg *registry.Registry, svc *embedding.Service) *Orchestrator {
	return &Orchestrator{reg: reg, embed: svc}
}

// Embedding exposes the orchestrator's embedding service for components
// that share its cache.
func (o *Orchestrator) Embedding() *embedding.Service { return o.embed }

// Registry exposes the provider registry backing this orchestrator.
func (o *Orchestrator) Registry() *registry.Registry { return o.reg }

// AddMemory embeds item.Text (unless an embedding is attached), writes it
// to the selected vector store, and mirrors it into the session store when
// item.SessionID is set. The session mirror is best effort: its failure is
// logged and does not undo or fail the vector write. Returns the stored
// item id.
func (o *Orchestrator) AddMemory(ctx context.Context, item *memory.Item, opts *Opts) (string, error) {
	if opts == nil {
		opts = &Opts{}
	}
	if item == nil || item.Text == "" {
		return "", &memory.ValidationError{Field: "text", Reason: "memory text must not be empty"}
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}

	store, err := o.reg.Vector(opts.VectorProvider)
	if err != nil {
		return "", err
	}
	if len(item.Embedding) == 0 {
		vec, err := o.embed.Embed(ctx, item.Text)
		if err != nil {
			return "", err
		}
		item.Embedding = vec
	}

	if err := store.AddEmbedding(ctx, item, opts.Collection); err != nil {
		return "", err
	}

	if item.SessionID != "" {
		o.mirrorToSession(ctx, item, opts)
	}
	return item.ID, nil
}

// mirrorToSession appends the item as a session message. Partial-success
// policy: the vector write already succeeded, so any failure here only
// warns.
func (o *Orchestrator) mirrorToSession(ctx context.Context, item *memory.Item, opts *Opts) {
	logger := logging.Component(ctx, "orchestrator")
	sess, err := o.reg.Session(opts.SessionProvider)
	if err != nil {
		logger.Warn("session mirror skipped: no session store", "session_id", item.SessionID, "error", err)
		return
	}
	msg := memory.SessionMessage{
		ID:        item.ID,
		Role:      "user",
		Content:   item.Text,
		Embedding: item.Embedding,
		Pinned:    pinnedFromMetadata(item.Metadata),
	}
	if err := sess.AppendMessage(ctx, item.SessionID, msg); err != nil {
		logger.Warn("session mirror failed after vector write",
			"session_id", item.SessionID,
			"memory_id", item.ID,
			"error", err)
	}
}

// pinnedFromMetadata lets writers pin a memory at ingestion time via a
// "pinned" metadata flag.
func pinnedFromMetadata(md map[string]any) bool {
	switch v := md["pinned"].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	default:
		return false
	}
}

// SemanticSearch embeds query and returns the selected vector store's raw
// hits, capped at opts.TopK (default 5).
func (o *Orchestrator) SemanticSearch(ctx context.Context, query string, opts *Opts) ([]vector.Result, error) {
	if opts == nil {
		opts = &Opts{}
	}
	store, err := o.reg.Vector(opts.VectorProvider)
	if err != nil {
		return nil, err
	}
	topK := opts.TopK
	if topK <= 0 {
		topK = defaultSearchTopK
	}
	vec, err := o.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return store.SearchEmbedding(ctx, vec, topK, opts.Collection)
}

// DeleteMemory removes the memory from the vector store; when sessionID is
// non-empty the whole session is deleted too. Deleting an unknown id or
// session is not an error.
func (o *Orchestrator) DeleteMemory(ctx context.Context, id, sessionID string, opts *Opts) error {
	if opts == nil {
		opts = &Opts{}
	}
	store, err := o.reg.Vector(opts.VectorProvider)
	if err != nil {
		return err
	}
	if err := store.DeleteEmbedding(ctx, id, opts.Collection); err != nil {
		return err
	}
	if sessionID == "" {
		return nil
	}
	sess, err := o.reg.Session(opts.SessionProvider)
	if err != nil {
		return err
	}
	return sess.DeleteSession(ctx, sessionID)
}

// AssembleContext fetches session memory and long-term semantic matches
// concurrently. A missing session yields a nil SessionMemory, not an
// error. Cancellation propagates to both fetches; on error the partial
// results are discarded.
func (o *Orchestrator) AssembleContext(ctx context.Context, sessionID, query string, opts *Opts) (*Context, error) {
	if opts == nil {
		opts = &Opts{}
	}

	var (
		wg      sync.WaitGroup
		rec     *memory.SessionRecord
		sessErr error
		hits    []vector.Result
		hitsErr error
	)

	if sessionID != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, err := o.reg.Session(opts.SessionProvider)
			if err != nil {
				sessErr = err
				return
			}
			rec, sessErr = sess.GetSession(ctx, sessionID)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		hits, hitsErr = o.SemanticSearch(ctx, query, opts)
	}()

	wg.Wait()
	if sessErr != nil {
		return nil, sessErr
	}
	if hitsErr != nil {
		return nil, hitsErr
	}
	return &Context{SessionMemory: rec, LongTermMemory: hits}, nil
}

// Query assembles context for input and asks the selected LLM provider for
// a response. This is the single entry point most external callers use.
func (o *Orchestrator) Query(ctx context.Context, input, sessionID string, opts *Opts) (string, error) {
	if opts == nil {
		opts = &Opts{}
	}
	llmProvider, err := o.reg.LLM(opts.LLMProvider)
	if err != nil {
		return "", err
	}
	assembled, err := o.AssembleContext(ctx, sessionID, input, opts)
	if err != nil {
		return "", err
	}

	contextData := map[string]any{}
	if assembled.SessionMemory != nil {
		contextData["session"] = assembled.SessionMemory
	}
	if len(assembled.LongTermMemory) > 0 {
		payloads := make([]map[string]any, 0, len(assembled.LongTermMemory))
		for _, hit := range assembled.LongTermMemory {
			payloads = append(payloads, hit.Payload)
		}
		contextData["long_term_memory"] = payloads
	}
	return llmProvider.GenerateResponse(ctx, input, contextData)
}
