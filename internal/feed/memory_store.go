package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/onnwee/newsfeed/internal/ranking"
)

type sortedSet struct {
	members   map[string]float64
	expiresAt time.Time // zero means no expiry
}

// InMemoryStore is an in-memory implementation of CandidateReader,
// CacheWriter and FeedReader for testing and local development. It honors
// TTLs against an injectable clock and supports failure injection.
type InMemoryStore struct {
	mu     sync.Mutex
	config StoreConfig
	sets   map[string]*sortedSet
	now    func() time.Time

	readErr    error
	writeErr   error
	readDelay  time.Duration
	writeDelay time.Duration
	writes     int
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore(config StoreConfig) *InMemoryStore {
	return &InMemoryStore{
		config: config.withDefaults(),
		sets:   make(map[string]*sortedSet),
		now:    time.Now,
	}
}

// SetClock replaces the clock used for TTL bookkeeping.
func (s *InMemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetPool replaces the global candidate pool.
func (s *InMemoryStore) SetPool(candidates []ranking.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := &sortedSet{members: make(map[string]float64, len(candidates))}
	for _, c := range candidates {
		set.members[c.PostID] = c.Score
	}
	s.sets[s.config.PoolKey] = set
}

// FailReads makes subsequent pool and feed reads return err. Pass nil to clear.
func (s *InMemoryStore) FailReads(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readErr = err
}

// FailWrites makes subsequent feed writes return err. Pass nil to clear.
func (s *InMemoryStore) FailWrites(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeErr = err
}

// SlowReads delays pool reads by d, to exercise store timeouts.
func (s *InMemoryStore) SlowReads(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readDelay = d
}

// SlowWrites delays feed writes by d, to exercise store timeouts.
func (s *InMemoryStore) SlowWrites(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeDelay = d
}

// Writes returns the number of successful feed replacements.
func (s *InMemoryStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// FeedKey returns the key for userID's feed.
func (s *InMemoryStore) FeedKey(userID string) string {
	return s.config.KeyPrefix + userID
}

// ReadCandidates returns the pool ordered by score descending, ties by member.
func (s *InMemoryStore) ReadCandidates(ctx context.Context) ([]ranking.Candidate, error) {
	if err := s.wait(ctx, s.delay(&s.readDelay), ErrCacheUnavailable); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, storeError(ErrCacheUnavailable, s.readErr)
	}

	ranked := s.rangeLocked(s.config.PoolKey, 0, s.config.CandidateLimit)
	out := make([]ranking.Candidate, len(ranked))
	for i, e := range ranked {
		out[i] = ranking.Candidate{PostID: e.PostID, Score: e.Score}
	}
	return out, nil
}

// ReplaceFeed swaps the user's feed for entries in one step.
func (s *InMemoryStore) ReplaceFeed(ctx context.Context, userID string, entries []ranking.ScoredEntry, ttl time.Duration) error {
	if err := s.wait(ctx, s.delay(&s.writeDelay), ErrCacheWriteFailed); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return storeError(ErrCacheWriteFailed, s.writeErr)
	}

	key := s.FeedKey(userID)
	s.writes++
	if len(entries) == 0 {
		delete(s.sets, key)
		return nil
	}

	set := &sortedSet{members: make(map[string]float64, len(entries))}
	for _, e := range entries {
		set.members[e.PostID] = ranking.RoundScore(e.Score)
	}
	if ttl > 0 {
		set.expiresAt = s.now().Add(ttl)
	}
	s.sets[key] = set
	return nil
}

// ReadFeed returns a page of the user's feed.
func (s *InMemoryStore) ReadFeed(ctx context.Context, userID string, offset, limit int) ([]ranking.ScoredEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return nil, storeError(ErrCacheUnavailable, s.readErr)
	}
	if limit <= 0 {
		return []ranking.ScoredEntry{}, nil
	}
	if offset < 0 {
		offset = 0
	}
	return s.rangeLocked(s.FeedKey(userID), offset, limit), nil
}

// FeedTTL returns the remaining TTL of the user's feed.
func (s *InMemoryStore) FeedTTL(ctx context.Context, userID string) (time.Duration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set := s.liveLocked(s.FeedKey(userID))
	if set == nil {
		return 0, ErrFeedNotFound
	}
	if set.expiresAt.IsZero() {
		return 0, nil
	}
	return set.expiresAt.Sub(s.now()), nil
}

// liveLocked returns the set at key, evicting it if expired.
func (s *InMemoryStore) liveLocked(key string) *sortedSet {
	set, ok := s.sets[key]
	if !ok {
		return nil
	}
	if !set.expiresAt.IsZero() && !s.now().Before(set.expiresAt) {
		delete(s.sets, key)
		return nil
	}
	return set
}

func (s *InMemoryStore) rangeLocked(key string, offset, limit int) []ranking.ScoredEntry {
	set := s.liveLocked(key)
	if set == nil {
		return []ranking.ScoredEntry{}
	}

	all := make([]ranking.ScoredEntry, 0, len(set.members))
	for member, score := range set.members {
		all = append(all, ranking.ScoredEntry{PostID: member, Score: score})
	}
	// Same order as ZREVRANGE: score desc, then member desc
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].PostID > all[j].PostID
	})

	if offset >= len(all) {
		return []ranking.ScoredEntry{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}

func (s *InMemoryStore) delay(d *time.Duration) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *d
}

// wait simulates a slow round trip bounded by the store timeout.
func (s *InMemoryStore) wait(ctx context.Context, d time.Duration, base error) error {
	if d <= 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.config.Timeout)
	defer cancel()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return storeError(base, ctx.Err())
	}
}
