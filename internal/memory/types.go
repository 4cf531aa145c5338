// Package memory defines the core data model shared by the orchestrator,
// the ranking pipeline, and the provider adapters: memory items, ranked
// context items, ranking methods, and the typed error taxonomy.
package memory

import "time"

// Item is a single memory fragment: arbitrary text plus its embedding and
// free-form metadata. ID uniqueness is scoped per (backend, collection).
type Item struct {
	// ID is the caller-supplied or generated identifier.
	ID string `json:"id"`

	// Text is the raw content of the memory.
	Text string `json:"text"`

	// Embedding is the dense vector for Text. May be empty on write, in
	// which case the orchestrator computes it via the embedding provider.
	Embedding []float32 `json:"embedding,omitempty"`

	// Metadata holds arbitrary key-value pairs stored alongside the vector.
	Metadata map[string]any `json:"metadata,omitempty"`

	// SessionID, when set, mirrors the item into the session store.
	SessionID string `json:"sessionId,omitempty"`
}

// ContextItem is one ranked, normalized search result produced by the
// pipeline. It is a per-call view over backend data and is never persisted.
type ContextItem struct {
	// ID is the backend identifier of the underlying result.
	ID string `json:"id"`

	// SourceID identifies which configured source produced this item.
	SourceID string `json:"sourceId"`

	// Collection is the backend collection the item was retrieved from.
	Collection string `json:"collection"`

	// RawScore is the backend-native relevance score, sign-adjusted so that
	// higher is always better (distance backends are inverted by the adapter).
	RawScore float64 `json:"rawScore"`

	// NormalizedScore is RawScore rescaled into [0,1] across the merged
	// result set of one pipeline call.
	NormalizedScore float64 `json:"normalizedScore"`

	// Recency is an optional freshness signal in [0,1]; zero when absent.
	Recency float64 `json:"recency,omitempty"`

	// FeedbackScore is an optional user-feedback signal in [-1,1].
	FeedbackScore float64 `json:"feedbackScore,omitempty"`

	// CombinedScore is the weighted blend computed by MethodSmart; for the
	// single-factor methods it mirrors the factor that was sorted on.
	CombinedScore float64 `json:"combinedScore"`

	// SizeEstimate is the approximate token cost of injecting this item
	// into a prompt.
	SizeEstimate int `json:"sizeEstimate"`

	// Payload is the backend payload map with backend-specific fields
	// already consumed (score, distance).
	Payload map[string]any `json:"payload,omitempty"`
}

// Method selects how the pipeline orders merged results.
type Method string

const (
	// MethodSmart blends similarity, recency, and feedback using RankingFactors.
	MethodSmart Method = "smart"
	// MethodSimilarity sorts by normalized similarity, descending.
	MethodSimilarity Method = "similarity"
	// MethodRecency sorts by the recency signal, descending.
	MethodRecency Method = "recency"
	// MethodFeedback sorts by the feedback signal, descending.
	MethodFeedback Method = "feedback"
	// MethodManual preserves caller-supplied order verbatim.
	MethodManual Method = "manual"
)

// Valid reports whether m names a known ranking method.
func (m Method) Valid() bool {
	switch m {
	case MethodSmart, MethodSimilarity, MethodRecency, MethodFeedback, MethodManual:
		return true
	}
	return false
}

// RankingFactors is the weight triple used by MethodSmart. Callers are
// expected to supply weights summing to ~1.0; the pipeline applies them
// as given and does not renormalize.
type RankingFactors struct {
	// Similarity weights the normalized vector-similarity score.
	Similarity float64 `json:"similarity"`
	// Recency weights the freshness signal.
	Recency float64 `json:"recency"`
	// Feedback weights the user-feedback signal.
	Feedback float64 `json:"feedback"`
}

// DefaultRankingFactors is the weighting applied when MethodSmart is
// requested without explicit factors.
var DefaultRankingFactors = RankingFactors{Similarity: 0.7, Recency: 0.2, Feedback: 0.1}

// SessionMessage is a single conversation turn stored in a session.
type SessionMessage struct {
	// ID is the message identifier, unique within the session.
	ID string `json:"id"`
	// Role is the author: "user", "assistant", or "system".
	Role string `json:"role"`
	// Content is the message text.
	Content string `json:"content"`
	// Embedding is the stored vector for Content; may be empty.
	Embedding []float32 `json:"embedding,omitempty"`
	// Pinned messages always survive relevance filtering.
	Pinned bool `json:"pinned"`
	// Deleted messages are excluded from retrieval but retained for audit.
	Deleted bool `json:"deleted"`
	// CreatedAt is when the message was recorded.
	CreatedAt time.Time `json:"createdAt"`
}

// SessionRecord is the stored state of one conversation session.
type SessionRecord struct {
	// SessionID is the opaque session key.
	SessionID string `json:"sessionId"`
	// Summary is the running summary of the conversation.
	Summary string `json:"summary,omitempty"`
	// Messages is the ordered (oldest-first) list of turns.
	Messages []SessionMessage `json:"messages"`
	// Data holds arbitrary session state beyond the message log.
	Data map[string]any `json:"data,omitempty"`
}
