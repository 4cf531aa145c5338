// Package stitch assembles session memory for prompt injection. For each
// requested session it always includes pinned messages and the running
// summary, then adds the most query-relevant recent turns by cosine
// similarity over stored message embeddings.
package stitch

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/olserra/xmem-go/internal/audit"
	"github.com/olserra/xmem-go/internal/embedding"
	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/session"
)

// defaultTopRelevant is how many non-pinned messages per session are
// admitted by similarity.
const defaultTopRelevant = 5

// Block is the stitched memory of one session: the summary plus the
// selected messages, pinned group first, each group in chronological
// order.
type Block struct {
	SessionID string
	// Summary is the session's running summary; always included, may be
	// empty.
	Summary string
	// Pinned holds every pinned, non-deleted message in chronological
	// order. Unbounded: pinning overrides relevance budgets.
	Pinned []memory.SessionMessage
	// Relevant holds the top non-pinned messages by query similarity, in
	// chronological order.
	Relevant []memory.SessionMessage
}

// Stitcher selects session messages for context assembly. Safe for
// concurrent use.
type Stitcher struct {
	embed       *embedding.Service
	store       session.Store
	trail       *audit.Trail
	topRelevant int
}

// Option adjusts a Stitcher.
type Option func(*Stitcher)

// WithTrail attaches an audit trail; every stitched session records which
// message ids and summary were injected. Recording is fire-and-forget.
func WithTrail(t *audit.Trail) Option {
	return func(s *Stitcher) { s.trail = t }
}

// WithTopRelevant overrides how many non-pinned messages are admitted per
// session.
func WithTopRelevant(n int) Option {
	return func(s *Stitcher) {
		if n > 0 {
			s.topRelevant = n
		}
	}
}

// New returns a Stitcher reading sessions from store and embedding queries
// with svc.
func New(svc *embedding.Service, store session.Store, opts ...Option) *Stitcher {
	s := &Stitcher{embed: svc, store: store, topRelevant: defaultTopRelevant}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stitch builds one Block per known session id, in the caller's order.
// Unknown session ids are skipped. A session store failure skips that
// session with a warning rather than failing the call; an embedding
// failure is fatal since no relevance ranking is possible without the
// query vector.
func (s *Stitcher) Stitch(ctx context.Context, query string, sessionIDs []string) ([]Block, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	queryVec, err := s.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	logger := logging.Component(ctx, "stitch")
	results := make([]*Block, len(sessionIDs))

	var wg sync.WaitGroup
	for i, id := range sessionIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			rec, err := s.store.GetSession(ctx, id)
			if err != nil {
				logger.Warn("session skipped during stitch", "session_id", id, "error", err)
				return
			}
			if rec == nil {
				return
			}
			block := s.stitchSession(query, queryVec, rec)
			results[i] = &block
		}(i, id)
	}
	wg.Wait()

	blocks := make([]Block, 0, len(sessionIDs))
	for _, b := range results {
		if b != nil {
			blocks = append(blocks, *b)
		}
	}
	return blocks, nil
}

// stitchSession selects pinned ∪ top-relevant from one session record and
// records the selection on the audit trail.
func (s *Stitcher) stitchSession(query string, queryVec []float32, rec *memory.SessionRecord) Block {
	block := Block{SessionID: rec.SessionID, Summary: rec.Summary}

	type scored struct {
		msg   memory.SessionMessage
		score float64
	}
	var candidates []scored

	for _, msg := range rec.Messages {
		if msg.Deleted {
			continue
		}
		if msg.Pinned {
			block.Pinned = append(block.Pinned, msg)
			continue
		}
		score := cosine(queryVec, msg.Embedding)
		if math.IsInf(score, -1) {
			// Messages without a usable embedding cannot be ranked;
			// they enter a block only by pinning.
			continue
		}
		candidates = append(candidates, scored{msg: msg, score: score})
	}

	// Stable sort keeps chronological order among equal scores.
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].score > candidates[b].score
	})
	if len(candidates) > s.topRelevant {
		candidates = candidates[:s.topRelevant]
	}
	for _, c := range candidates {
		block.Relevant = append(block.Relevant, c.msg)
	}

	// Each group reads chronologically regardless of relevance rank.
	sortChronological(block.Pinned)
	sortChronological(block.Relevant)

	if s.trail != nil {
		ids := make([]string, 0, len(block.Pinned)+len(block.Relevant))
		for _, m := range block.Pinned {
			ids = append(ids, m.ID)
		}
		for _, m := range block.Relevant {
			ids = append(ids, m.ID)
		}
		s.trail.Record(audit.StitchEvent{
			SessionID:       rec.SessionID,
			Query:           query,
			MessageIDs:      ids,
			SummaryIncluded: rec.Summary != "",
		})
	}
	return block
}

func sortChronological(msgs []memory.SessionMessage) {
	sort.SliceStable(msgs, func(a, b int) bool {
		return msgs[a].CreatedAt.Before(msgs[b].CreatedAt)
	})
}

// cosine returns dot(a,b)/(|a||b|). Mismatched or missing embeddings
// score negative infinity, which excludes the message from relevance
// ranking; it stays eligible for pinned inclusion upstream.
func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return math.Inf(-1)
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return math.Inf(-1)
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RenderBlocks flattens stitched blocks into one prompt-ready text
// segment. Summaries lead each session, then the selected turns as
// "role: content" lines.
func RenderBlocks(blocks []Block) string {
	if len(blocks) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, b := range blocks {
		sb.WriteString("Session " + b.SessionID + ":\n")
		if b.Summary != "" {
			sb.WriteString("Summary: " + b.Summary + "\n")
		}
		for _, m := range b.Pinned {
			sb.WriteString(m.Role + " (pinned): " + m.Content + "\n")
		}
		for _, m := range b.Relevant {
			sb.WriteString(m.Role + ": " + m.Content + "\n")
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
