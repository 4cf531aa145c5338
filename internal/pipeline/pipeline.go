// Package pipeline implements multi-source context retrieval and ranking.
// A query is embedded once, fanned out to every selected vector source
// concurrently, and the merged results are normalized, scored, ordered,
// and truncated into a deterministic context list.
package pipeline

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/olserra/xmem-go/internal/embedding"
	"github.com/olserra/xmem-go/internal/logging"
	"github.com/olserra/xmem-go/internal/memory"
	"github.com/olserra/xmem-go/internal/vector"
)

const (
	// defaultTopKPerSource is how many raw hits each source contributes
	// before merging.
	defaultTopKPerSource = 10

	// defaultLimit bounds the merged, ranked result list.
	defaultLimit = 20

	// defaultSourceTimeout caps a single backend search so one slow
	// source cannot stall the whole fan-out.
	defaultSourceTimeout = 10 * time.Second
)

// SourceRef selects one vector store plus the collection to search in it.
type SourceRef struct {
	// SourceID labels the source in results and failure reports.
	SourceID string
	// Store is the vector backend to query.
	Store vector.Store
	// Collection is the collection (or namespace) within the store.
	Collection string
}

// Options tunes one ranking invocation. The zero value selects smart
// ranking with default weights and limits.
type Options struct {
	// Method selects the ranking strategy; empty means MethodSmart.
	Method memory.Method
	// Factors weights the smart combination; nil means
	// memory.DefaultRankingFactors. Weights are used as given, without
	// renormalization.
	Factors *memory.RankingFactors
	// TopKPerSource overrides the per-source hit count; 0 means 10.
	TopKPerSource int
	// Limit overrides the merged result cap; 0 means 20.
	Limit int
	// SourceTimeout overrides the per-source search deadline; 0 means 10s.
	SourceTimeout time.Duration
}

// SourceFailure records one source that was dropped from the merge.
type SourceFailure struct {
	SourceID string
	Err      error
}

// Result is the outcome of one ranking invocation. Failed lists sources
// that errored and were excluded; Items is still valid when Failed is
// non-empty.
type Result struct {
	Items  []memory.ContextItem
	Failed []SourceFailure
}

// Pipeline ranks context items across vector sources. Safe for concurrent
// use.
type Pipeline struct {
	embed *embedding.Service
}

// New returns a Pipeline that embeds queries with svc.
func New(svc *embedding.Service) *Pipeline {
	return &Pipeline{embed: svc}
}

// Rank embeds query, searches every source concurrently, and returns the
// merged, normalized, ordered, truncated context list.
//
// Failure semantics: an embedding failure is fatal (nothing can be
// searched without a query vector) and surfaces as *memory.EmbeddingError.
// A failing source is excluded from the merge and reported in
// Result.Failed; it never aborts the other sources.
func (p *Pipeline) Rank(ctx context.Context, query string, sources []SourceRef, opts *Options) (*Result, error) {
	if opts == nil {
		opts = &Options{}
	}
	method := opts.Method
	if method == "" {
		method = memory.MethodSmart
	}
	if !method.Valid() {
		return nil, &memory.ValidationError{Field: "method", Reason: fmt.Sprintf("unknown ranking method %q", method)}
	}
	if len(sources) == 0 {
		return &Result{}, nil
	}

	queryVec, err := p.embed.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	items, failed := p.fanOut(ctx, queryVec, sources, opts)

	normalizeScores(items)
	factors := memory.DefaultRankingFactors
	if opts.Factors != nil {
		factors = *opts.Factors
	}
	orderItems(items, method, factors)

	limit := opts.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	return &Result{Items: items, Failed: failed}, nil
}

// fanOut runs one search per source concurrently and merges the hits in
// source order, then hit order, so downstream tie-breaking is
// deterministic.
func (p *Pipeline) fanOut(ctx context.Context, queryVec []float32, sources []SourceRef, opts *Options) ([]memory.ContextItem, []SourceFailure) {
	logger := logging.Component(ctx, "pipeline")

	topK := opts.TopKPerSource
	if topK <= 0 {
		topK = defaultTopKPerSource
	}
	timeout := opts.SourceTimeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}

	type sourceOutcome struct {
		hits []vector.Result
		err  error
	}
	outcomes := make([]sourceOutcome, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src SourceRef) {
			defer wg.Done()
			searchCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			hits, err := src.Store.SearchEmbedding(searchCtx, queryVec, topK, src.Collection)
			outcomes[i] = sourceOutcome{hits: hits, err: err}
		}(i, src)
	}
	wg.Wait()

	var (
		items  []memory.ContextItem
		failed []SourceFailure
	)
	for i, out := range outcomes {
		src := sources[i]
		if out.err != nil {
			logger.Warn("source excluded from context merge",
				"source_id", src.SourceID,
				"collection", src.Collection,
				"error", out.err)
			failed = append(failed, SourceFailure{SourceID: src.SourceID, Err: out.err})
			continue
		}
		for j, hit := range out.hits {
			items = append(items, toContextItem(src, hit, j))
		}
	}
	return items, failed
}

// toContextItem converts one backend hit into the generic ranking unit.
// Recency and feedback are optional payload fields; absent values default
// to zero so every method has a defined sort key.
func toContextItem(src SourceRef, hit vector.Result, index int) memory.ContextItem {
	id := hit.ID
	if id == "" {
		id = fmt.Sprintf("%s-%d", src.SourceID, index)
	}
	return memory.ContextItem{
		ID:            id,
		SourceID:      src.SourceID,
		Collection:    src.Collection,
		RawScore:      hit.Score,
		Recency:       payloadFloat(hit.Payload, "recency"),
		FeedbackScore: payloadFloat(hit.Payload, "feedback_score", "feedbackScore"),
		SizeEstimate:  estimateSize(hit.Payload),
		Payload:       hit.Payload,
	}
}

// estimateSize approximates the token cost of an item as text length over
// four, with a floor of one for non-empty payloads.
func estimateSize(payload map[string]any) int {
	text, _ := payload["text"].(string)
	if text == "" {
		if len(payload) == 0 {
			return 0
		}
		return 1
	}
	n := len(text) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// orderItems sorts items in place for the selected method. Manual keeps
// the caller-observed merge order verbatim. Sorting is stable, so equal
// keys preserve source order and then hit order.
func orderItems(items []memory.ContextItem, method memory.Method, factors memory.RankingFactors) {
	switch method {
	case memory.MethodManual:
		return
	case memory.MethodSmart:
		for i := range items {
			items[i].CombinedScore = items[i].NormalizedScore*factors.Similarity +
				items[i].Recency*factors.Recency +
				items[i].FeedbackScore*factors.Feedback
		}
		sort.SliceStable(items, func(a, b int) bool {
			return items[a].CombinedScore > items[b].CombinedScore
		})
	case memory.MethodSimilarity:
		sort.SliceStable(items, func(a, b int) bool {
			return items[a].NormalizedScore > items[b].NormalizedScore
		})
	case memory.MethodRecency:
		sort.SliceStable(items, func(a, b int) bool {
			return items[a].Recency > items[b].Recency
		})
	case memory.MethodFeedback:
		sort.SliceStable(items, func(a, b int) bool {
			return items[a].FeedbackScore > items[b].FeedbackScore
		})
	}
}
