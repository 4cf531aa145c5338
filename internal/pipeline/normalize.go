package pipeline

import (
	"strconv"

	"github.com/olserra/xmem-go/internal/memory"
)

// normalizeScores rewrites each item's NormalizedScore from the raw
// backend scores. Backends report on different scales (cosine similarity
// in [0,1], dot products, inverted distances), so the scale is guessed
// from the merged set as a whole:
//
//   - all raw scores equal: every item gets 0.5 (no ranking signal);
//   - raw scores already inside [0,1]: passed through unchanged;
//   - anything else: min-max scaled over the merged set.
//
// Normalization is computed across the entire merged set, not per source,
// so items from different sources compete on one scale.
func normalizeScores(items []memory.ContextItem) {
	if len(items) == 0 {
		return
	}
	min, max := items[0].RawScore, items[0].RawScore
	for _, it := range items[1:] {
		if it.RawScore < min {
			min = it.RawScore
		}
		if it.RawScore > max {
			max = it.RawScore
		}
	}

	switch {
	case max == min:
		for i := range items {
			items[i].NormalizedScore = 0.5
		}
	case min >= 0 && max <= 1:
		for i := range items {
			items[i].NormalizedScore = items[i].RawScore
		}
	default:
		span := max - min
		for i := range items {
			items[i].NormalizedScore = (items[i].RawScore - min) / span
		}
	}
}

// payloadFloat extracts the first named numeric field from a payload.
// Backends disagree on value types (Qdrant yields float64, the embedded
// store stringifies all metadata), so strings holding numbers are parsed
// too. Missing or unparseable fields yield 0.
func payloadFloat(payload map[string]any, keys ...string) float64 {
	for _, key := range keys {
		v, ok := payload[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case string:
			if f, err := strconv.ParseFloat(n, 64); err == nil {
				return f
			}
		}
	}
	return 0
}
