package ranking

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrMalformedPayload is returned by ParseAttributes when a candidate's post
// identifier does not carry a usable continent and primary tag. Scoring
// recovers from it locally; it never leaves this package's callers as a
// generation failure.
var ErrMalformedPayload = errors.New("malformed candidate payload")

// ScorePrecision is the number of decimal places kept by RoundScore.
const ScorePrecision = 3

// Candidate is one member of the global popularity pool.
type Candidate struct {
	PostID string  // Serialized post document, used verbatim as the cache member
	Score  float64 // Global popularity score
}

// ScoredEntry pairs a candidate with its personalized rank score.
type ScoredEntry struct {
	PostID string
	Score  float64
}

// ScoreResult is the output of ScoreCandidates.
type ScoreResult struct {
	// Entries has the same length and order as the input candidates.
	Entries []ScoredEntry
	// Malformed counts candidates whose payload could not be parsed.
	Malformed int
	// Zero counts entries that scored exactly 0 for any reason.
	Zero int
}

type postPayload struct {
	Location *struct {
		Continent string `json:"continent"`
	} `json:"location"`
	Tags []json.RawMessage `json:"tags"`
}

// ParseAttributes extracts location.continent and tags[0] from a serialized
// post document.
func ParseAttributes(postID string) (continent, primaryTag string, err error) {
	var p postPayload
	if err := json.Unmarshal([]byte(postID), &p); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if p.Location == nil || p.Location.Continent == "" {
		return "", "", fmt.Errorf("%w: missing location.continent", ErrMalformedPayload)
	}
	if len(p.Tags) == 0 {
		return p.Location.Continent, "", fmt.Errorf("%w: missing tags", ErrMalformedPayload)
	}
	if err := json.Unmarshal(p.Tags[0], &primaryTag); err != nil || primaryTag == "" {
		return p.Location.Continent, "", fmt.Errorf("%w: tags[0] is not a string", ErrMalformedPayload)
	}
	return p.Location.Continent, primaryTag, nil
}

// RankScore combines a global popularity score with the two dimension factors.
// Formula: global * location * category
func RankScore(global, location, category float64) float64 {
	score := sanitize(global) * sanitize(location) * sanitize(category)
	if math.IsNaN(score) || math.IsInf(score, 0) {
		return 0
	}
	return score
}

// ScoreCandidates computes a rank score for every candidate against the
// user's normalized location and category maps. It never fails: a malformed
// payload or an unknown continent/tag produces a score of 0 and the entry is
// kept in place.
func ScoreCandidates(candidates []Candidate, location, category ScoreMap) ScoreResult {
	result := ScoreResult{
		Entries: make([]ScoredEntry, len(candidates)),
	}

	for i, c := range candidates {
		continent, tag, err := ParseAttributes(c.PostID)
		if err != nil {
			result.Malformed++
		}

		score := RankScore(c.Score, location.Factor(continent), category.Factor(tag))
		if score == 0 {
			result.Zero++
		}

		result.Entries[i] = ScoredEntry{PostID: c.PostID, Score: score}
	}

	return result
}

// RoundScore rounds a rank score to ScorePrecision decimal places. This is the
// score stored in the per-user feed.
func RoundScore(score float64) float64 {
	const scale = 1000 // 10^ScorePrecision
	return math.Round(score*scale) / scale
}
