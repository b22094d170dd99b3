package feed

import (
	"context"
	"time"

	"github.com/onnwee/newsfeed/internal/ranking"
)

// Defaults for the ordered-set store.
const (
	DefaultPoolKey        = "top-posts"
	DefaultKeyPrefix      = "newsfeed:"
	DefaultCandidateLimit = 1000
	DefaultStoreTimeout   = 2 * time.Second
	DefaultFeedTTL        = 24 * time.Hour
)

// CandidateReader reads the globally-ranked candidate pool.
type CandidateReader interface {
	// ReadCandidates returns up to the configured limit of candidates,
	// highest global score first.
	ReadCandidates(ctx context.Context) ([]ranking.Candidate, error)
}

// CacheWriter replaces a user's cached feed.
type CacheWriter interface {
	// ReplaceFeed atomically swaps the user's feed for entries and sets its TTL.
	// Scores are stored rounded with ranking.RoundScore.
	ReplaceFeed(ctx context.Context, userID string, entries []ranking.ScoredEntry, ttl time.Duration) error
	// FeedKey returns the cache key that holds userID's feed.
	FeedKey(userID string) string
}

// FeedReader reads back a cached feed.
type FeedReader interface {
	// ReadFeed returns a page of the user's feed, highest score first.
	// A missing or expired feed yields an empty page and no error.
	ReadFeed(ctx context.Context, userID string, offset, limit int) ([]ranking.ScoredEntry, error)
	// FeedTTL returns the remaining lifetime of the user's feed,
	// or ErrFeedNotFound.
	FeedTTL(ctx context.Context, userID string) (time.Duration, error)
}

// StoreConfig configures ordered-set store bindings.
type StoreConfig struct {
	// PoolKey holds the global candidate pool, maintained elsewhere.
	PoolKey string
	// KeyPrefix is prepended to the user ID to form the feed key.
	KeyPrefix string
	// CandidateLimit caps how many candidates are read from the pool.
	CandidateLimit int
	// Timeout bounds every store round trip.
	Timeout time.Duration
}

func (c StoreConfig) withDefaults() StoreConfig {
	if c.PoolKey == "" {
		c.PoolKey = DefaultPoolKey
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = DefaultCandidateLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultStoreTimeout
	}
	return c
}
