package ranking

import "math"

// ScoreMap maps a dimension key (a continent, a tag) to its normalized score.
type ScoreMap map[string]float64

// Normalize converts raw interaction counts for one dimension into
// preference-weighted scores.
//
// Parameters:
//   - counts: raw interaction count per key
//   - preferences: user-declared multiplier per key (absent keys count as 0)
//
// The returned map has exactly the key set of counts. Each value is
// preferences[key] * (counts[key] / total). When total is zero every value
// is 0. Negative, NaN and infinite inputs are treated as 0. Counts whose sum
// overflows float64 are scaled down by the largest count first.
func Normalize(counts, preferences map[string]float64) ScoreMap {
	out := make(ScoreMap, len(counts))

	scale := 1.0
	total := sumCounts(counts, scale)
	if math.IsInf(total, 1) {
		for _, c := range counts {
			scale = math.Max(scale, sanitize(c))
		}
		total = sumCounts(counts, scale)
	}

	for key, c := range counts {
		if total <= 0 {
			out[key] = 0
			continue
		}
		out[key] = sanitize(preferences[key]) * ((sanitize(c) / scale) / total)
	}

	return out
}

func sumCounts(counts map[string]float64, scale float64) float64 {
	var total float64
	for _, c := range counts {
		total += sanitize(c) / scale
	}
	return total
}

// Factor returns the normalized score for key, or 0 when key is absent.
func (m ScoreMap) Factor(key string) float64 {
	if key == "" {
		return 0
	}
	return m[key]
}

// Sum returns the sum of all values in the map.
func (m ScoreMap) Sum() float64 {
	var s float64
	for _, v := range m {
		s += v
	}
	return s
}

// sanitize clamps values that cannot participate in a weighted ratio to 0.
func sanitize(v float64) float64 {
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
