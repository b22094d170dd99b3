// Package feed generates and caches personalized newsfeeds: it reads the
// global candidate pool, scores it against a user's preference profile and
// replaces the user's ranked feed in the ordered-set cache.
package feed

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrCacheUnavailable is returned when the ordered-set store cannot be reached.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrCacheWriteFailed is returned when replacing a user's feed fails.
	// The previously cached feed, if any, is left in place.
	ErrCacheWriteFailed = errors.New("cache write failed")

	// ErrStoreTimeout is returned alongside ErrCacheUnavailable or
	// ErrCacheWriteFailed when a store call exceeded its deadline.
	ErrStoreTimeout = errors.New("store operation timed out")

	// ErrFeedNotFound is returned when a user has no cached feed.
	ErrFeedNotFound = errors.New("feed not cached")

	// ErrEmptyUserID is returned when a generation is requested without a user.
	ErrEmptyUserID = errors.New("userID cannot be empty")
)

// Stage identifies a step of a generation run.
type Stage string

// Generation stages, in execution order.
const (
	StageStart              Stage = "start"
	StageNormalizingProfile Stage = "normalizing_profile"
	StageReadingCandidates  Stage = "reading_candidates"
	StageScoring            Stage = "scoring"
	StageWritingCache       Stage = "writing_cache"
	StageDone               Stage = "done"
	StageFailed             Stage = "failed"
)

// GenerationError reports the stage at which a generation run failed.
type GenerationError struct {
	UserID string
	Stage  Stage
	Err    error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("newsfeed generation for user %s failed at %s: %v", e.UserID, e.Stage, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}

// storeError wraps a store failure in base, adding ErrStoreTimeout when the
// failure was a deadline.
func storeError(base error, err error) error {
	if isTimeout(err) {
		return fmt.Errorf("%w: %w: %v", base, ErrStoreTimeout, err)
	}
	return fmt.Errorf("%w: %v", base, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrStoreTimeout) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
