package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/onnwee/newsfeed/internal/feed"
	"github.com/onnwee/newsfeed/internal/profile"
	"github.com/onnwee/newsfeed/internal/ranking"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeGenerator fails for users listed in fail and tracks peak concurrency.
type fakeGenerator struct {
	fail   map[string]error
	delay  time.Duration
	active atomic.Int32
	peak   atomic.Int32

	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeGenerator) Generate(ctx context.Context, userID string) (*feed.Result, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[userID]++
	f.mu.Unlock()

	if err := f.fail[userID]; err != nil {
		return nil, err
	}
	return &feed.Result{UserID: userID, Entries: 2}, nil
}

func TestRunBatch(t *testing.T) {
	gen := &fakeGenerator{
		fail: map[string]error{
			"u3": &feed.GenerationError{UserID: "u3", Stage: feed.StageWritingCache, Err: feed.ErrCacheWriteFailed},
		},
		delay: 5 * time.Millisecond,
	}
	m := NewMetrics()

	report := RunBatch(context.Background(), gen, []string{"u1", "u2", "u3", "u4", "u5", "u1"}, BatchConfig{
		Concurrency: 2,
		Logger:      discardLogger(),
		Metrics:     m,
	})

	if report.Succeeded != 4 {
		t.Errorf("Succeeded = %d, want 4", report.Succeeded)
	}
	if report.Entries != 8 {
		t.Errorf("Entries = %d, want 8", report.Entries)
	}
	if len(report.Failed) != 1 || !errors.Is(report.Failed["u3"], feed.ErrCacheWriteFailed) {
		t.Errorf("Failed = %v", report.Failed)
	}
	if gen.calls["u1"] != 1 {
		t.Errorf("u1 generated %d times, want 1", gen.calls["u1"])
	}
	if peak := gen.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}

	if got := getCounterVecValue(t, m.jobsTotal, JobTypeNewsfeedBatch, StatusFailure); got != 1 {
		t.Errorf("failure runs = %v, want 1", got)
	}
	if got := getCounterVecValue(t, m.jobErrors, JobTypeNewsfeedBatch, "writing_cache"); got != 1 {
		t.Errorf("writing_cache errors = %v, want 1", got)
	}
	if got := getHistogramCount(t, m.jobsDuration, JobTypeNewsfeedBatch); got != 1 {
		t.Errorf("duration samples = %d, want 1", got)
	}
}

func TestRunBatch_CancelledContext(t *testing.T) {
	gen := &fakeGenerator{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := RunBatch(ctx, gen, []string{"u1", "u2"}, BatchConfig{Logger: discardLogger()})

	if report.Succeeded != 0 || len(report.Failed) != 2 {
		t.Fatalf("report = %+v", report)
	}
	for userID, err := range report.Failed {
		if !errors.Is(err, context.Canceled) {
			t.Errorf("%s: err = %v, want context.Canceled", userID, err)
		}
	}
	if len(gen.calls) != 0 {
		t.Error("no generation should start after cancellation")
	}
}

func TestRunBatch_WithGenerator(t *testing.T) {
	profiles := profile.NewInMemoryStore()
	profiles.Put(&profile.Profile{
		UserID:              "u1",
		LocationCounts:      map[string]float64{"Asia": 1},
		LocationPreferences: map[string]float64{"Asia": 1},
		CategoryCounts:      map[string]float64{"food": 1},
		CategoryPreferences: map[string]float64{"food": 1},
	})
	store := feed.NewInMemoryStore(feed.StoreConfig{})
	store.SetPool([]ranking.Candidate{
		{PostID: `{"location":{"continent":"Asia"},"tags":["food"]}`, Score: 4},
	})
	gen := feed.NewGenerator(feed.GeneratorConfig{Logger: discardLogger()}, profiles, store, store)

	report := RunBatch(context.Background(), gen, []string{"u1", "nobody"}, BatchConfig{Logger: discardLogger()})

	if report.Succeeded != 1 || report.Entries != 1 {
		t.Errorf("report = %+v", report)
	}
	if !errors.Is(report.Failed["nobody"], profile.ErrUserNotFound) {
		t.Errorf("nobody: err = %v", report.Failed["nobody"])
	}
	if got := errorType(report.Failed["nobody"]); got != string(feed.StageNormalizingProfile) {
		t.Errorf("errorType = %q", got)
	}

	entries, err := store.ReadFeed(context.Background(), "u1", 0, 10)
	if err != nil || len(entries) != 1 || entries[0].Score != 4 {
		t.Errorf("cached feed = %v, %v", entries, err)
	}
}

func TestErrorType(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&feed.GenerationError{Stage: feed.StageReadingCandidates}, "reading_candidates"},
		{context.DeadlineExceeded, "cancelled"},
		{errors.New("boom"), "unknown"},
	}
	for _, tt := range tests {
		if got := errorType(tt.err); got != tt.want {
			t.Errorf("errorType(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
