package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/onnwee/newsfeed/internal/feed"
)

// DefaultConcurrency is the number of users regenerated at once.
const DefaultConcurrency = 4

// Generator recomputes and caches one user's newsfeed.
type Generator interface {
	Generate(ctx context.Context, userID string) (*feed.Result, error)
}

// BatchConfig configures a batch regeneration.
type BatchConfig struct {
	// Concurrency bounds parallel generations. Defaults to DefaultConcurrency.
	Concurrency int
	Logger      *slog.Logger
	// Metrics is optional.
	Metrics *Metrics
}

// BatchReport summarizes a batch run.
type BatchReport struct {
	Succeeded int
	Entries   int
	// Failed maps user ID to the error its generation returned.
	Failed   map[string]error
	Duration time.Duration
}

// RunBatch regenerates the newsfeed of every user in userIDs. One user's
// failure does not stop the others; users not yet started when ctx is done
// are reported with ctx's error. Duplicate IDs are generated once.
func RunBatch(ctx context.Context, gen Generator, userIDs []string, config BatchConfig) *BatchReport {
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	start := time.Now()
	report := &BatchReport{Failed: make(map[string]error)}
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(config.Concurrency)

	seen := make(map[string]struct{}, len(userIDs))
	for _, userID := range userIDs {
		if _, dup := seen[userID]; dup {
			continue
		}
		seen[userID] = struct{}{}

		if err := ctx.Err(); err != nil {
			mu.Lock()
			report.Failed[userID] = err
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			res, err := gen.Generate(ctx, userID)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed[userID] = err
				return nil
			}
			report.Succeeded++
			report.Entries += res.Entries
			return nil
		})
	}
	_ = g.Wait()
	report.Duration = time.Since(start)

	record(config, report)
	return report
}

func record(config BatchConfig, report *BatchReport) {
	status := StatusSuccess
	if len(report.Failed) > 0 {
		status = StatusFailure
	}

	for userID, err := range report.Failed {
		config.Logger.Warn("batch newsfeed generation failed",
			"user_id", userID,
			"error_type", errorType(err),
			"error", err)
		if config.Metrics != nil {
			config.Metrics.IncJobErrors(JobTypeNewsfeedBatch, errorType(err))
		}
	}

	config.Logger.Info("batch newsfeed generation finished",
		"succeeded", report.Succeeded,
		"failed", len(report.Failed),
		"entries", report.Entries,
		"duration_ms", report.Duration.Milliseconds())

	if config.Metrics != nil {
		config.Metrics.IncJobsTotal(JobTypeNewsfeedBatch, status)
		config.Metrics.ObserveJobDuration(JobTypeNewsfeedBatch, report.Duration.Seconds())
	}
}

// errorType labels err by the generation stage it failed in.
func errorType(err error) string {
	var genErr *feed.GenerationError
	switch {
	case errors.As(err, &genErr):
		return string(genErr.Stage)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "unknown"
	}
}
