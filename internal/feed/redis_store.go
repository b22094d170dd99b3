package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/newsfeed/internal/ranking"
	"github.com/onnwee/newsfeed/internal/tracing"
)

// RedisStore binds the candidate pool and per-user feeds to Redis sorted sets.
// It implements CandidateReader, CacheWriter and FeedReader.
type RedisStore struct {
	client *redis.Client
	config StoreConfig
	logger *slog.Logger
}

// NewRedisStore creates a new Redis-backed store.
func NewRedisStore(client *redis.Client, config StoreConfig, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{
		client: client,
		config: config.withDefaults(),
		logger: logger,
	}
}

// FeedKey returns the sorted-set key for userID's feed.
func (s *RedisStore) FeedKey(userID string) string {
	return s.config.KeyPrefix + userID
}

// ReadCandidates reads the top CandidateLimit members of the pool key with
// their scores, highest first.
func (s *RedisStore) ReadCandidates(ctx context.Context) (_ []ranking.Candidate, err error) {
	ctx, endSpan := tracing.StartCacheSpan(ctx, "ZREVRANGE", s.config.PoolKey)
	defer func() { endSpan(err) }()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	zs, err := s.client.ZRevRangeWithScores(ctx, s.config.PoolKey, 0, int64(s.config.CandidateLimit-1)).Result()
	if err != nil {
		return nil, storeError(ErrCacheUnavailable, err)
	}

	return toEntries[ranking.Candidate](zs, func(member string, score float64) ranking.Candidate {
		return ranking.Candidate{PostID: member, Score: score}
	}), nil
}

// ReplaceFeed writes entries to a staging key and renames it over the
// user's feed key inside a single MULTI/EXEC, so readers see either the old
// feed or the complete new one. An empty entry list removes the feed.
func (s *RedisStore) ReplaceFeed(ctx context.Context, userID string, entries []ranking.ScoredEntry, ttl time.Duration) (err error) {
	key := s.FeedKey(userID)

	ctx, endSpan := tracing.StartCacheSpan(ctx, "MULTI", key)
	defer func() { endSpan(err) }()

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	if len(entries) == 0 {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			return storeError(ErrCacheWriteFailed, err)
		}
		return nil
	}

	members := make([]redis.Z, len(entries))
	for i, e := range entries {
		members[i] = redis.Z{Score: ranking.RoundScore(e.Score), Member: e.PostID}
	}

	staging := key + ":staging:" + uuid.NewString()
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, staging)
		pipe.ZAdd(ctx, staging, members...)
		pipe.Expire(ctx, staging, ttl)
		pipe.Rename(ctx, staging, key)
		return nil
	})
	if err != nil {
		s.discardStaging(staging)
		return storeError(ErrCacheWriteFailed, err)
	}

	return nil
}

// discardStaging removes a staging key left behind by a failed transaction.
// The key already carries a TTL if EXPIRE ran, so failure here is only logged.
func (s *RedisStore) discardStaging(staging string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()
	if err := s.client.Del(ctx, staging).Err(); err != nil {
		s.logger.Warn("failed to discard staging feed key",
			slog.String("key", staging),
			slog.String("error", err.Error()))
	}
}

// ReadFeed returns entries [offset, offset+limit) of the user's feed.
func (s *RedisStore) ReadFeed(ctx context.Context, userID string, offset, limit int) ([]ranking.ScoredEntry, error) {
	if limit <= 0 {
		return []ranking.ScoredEntry{}, nil
	}
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	start := int64(offset)
	stop := start + int64(limit) - 1
	zs, err := s.client.ZRevRangeWithScores(ctx, s.FeedKey(userID), start, stop).Result()
	if err != nil {
		return nil, storeError(ErrCacheUnavailable, err)
	}

	return toEntries[ranking.ScoredEntry](zs, func(member string, score float64) ranking.ScoredEntry {
		return ranking.ScoredEntry{PostID: member, Score: score}
	}), nil
}

// FeedTTL returns the remaining TTL of the user's feed. A feed without an
// expiry reports 0.
func (s *RedisStore) FeedTTL(ctx context.Context, userID string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	ttl, err := s.client.TTL(ctx, s.FeedKey(userID)).Result()
	if err != nil {
		return 0, storeError(ErrCacheUnavailable, err)
	}

	// Redis reports -2 for a missing key and -1 for a key without expiry.
	switch {
	case ttl == -2 || ttl == -2*time.Second:
		return 0, ErrFeedNotFound
	case ttl < 0:
		return 0, nil
	}
	return ttl, nil
}

// toEntries converts sorted-set members into structured pairs.
func toEntries[T any](zs []redis.Z, build func(member string, score float64) T) []T {
	out := make([]T, 0, len(zs))
	for _, z := range zs {
		member, ok := z.Member.(string)
		if !ok {
			member = fmt.Sprint(z.Member)
		}
		out = append(out, build(member, z.Score))
	}
	return out
}
