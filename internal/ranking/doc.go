// Package ranking provides the personalized newsfeed scoring primitives:
// dimension normalization and candidate rank scoring.
//
// Basic Usage:
//
//	// Normalize each preference dimension of the user profile
//	location := ranking.Normalize(p.LocationCounts, p.LocationPreferences)
//	category := ranking.Normalize(p.CategoryCounts, p.CategoryPreferences)
//
//	// Score the global candidate pool against the user's maps
//	result := ranking.ScoreCandidates(candidates, location, category)
//	for _, e := range result.Entries {
//		fmt.Println(e.PostID, ranking.RoundScore(e.Score))
//	}
//
// Normalization:
//
// Each normalized value is multiplier[key] * (count[key] / total), where total
// is the sum of all counts in the dimension. A zero total yields a map of
// zeros rather than a division error.
//
// Scoring:
//
// rank = global_score * location[continent] * category[tags[0]]. Candidates
// whose payload cannot be parsed, or whose continent or first tag is absent
// from the user's maps, score 0 but are never dropped.
//
// Rounding:
//
// Cached scores are rounded to 3 decimal places with RoundScore. This is a
// fixed rule applied at write time, so two runs over identical inputs always
// produce byte-identical feeds.
package ranking
