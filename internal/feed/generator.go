package feed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/onnwee/newsfeed/internal/profile"
	"github.com/onnwee/newsfeed/internal/ranking"
	"github.com/onnwee/newsfeed/internal/tracing"
)

// GeneratorConfig configures the newsfeed generator.
type GeneratorConfig struct {
	// TTL is the lifetime of a cached feed. Defaults to 24h.
	TTL time.Duration
	// Logger for generation activity.
	Logger *slog.Logger
	// Metrics for generation tracking (optional).
	Metrics *Metrics
}

// Result describes a successful generation run.
type Result struct {
	UserID    string
	Key       string
	Entries   int
	Malformed int
	Zero      int
	TTL       time.Duration
	Duration  time.Duration
}

// Generator computes and caches personalized newsfeeds. Runs for different
// users proceed in parallel; runs for the same user are serialized.
type Generator struct {
	config     GeneratorConfig
	profiles   profile.Store
	candidates CandidateReader
	writer     CacheWriter
	locks      *userLocks
}

// NewGenerator creates a new Generator.
func NewGenerator(config GeneratorConfig, profiles profile.Store, candidates CandidateReader, writer CacheWriter) *Generator {
	if config.TTL <= 0 {
		config.TTL = DefaultFeedTTL
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Generator{
		config:     config,
		profiles:   profiles,
		candidates: candidates,
		writer:     writer,
		locks:      newUserLocks(),
	}
}

// Generate recomputes userID's newsfeed and replaces the cached copy.
//
// The run moves through normalizing_profile, reading_candidates, scoring and
// writing_cache. A failure at any stage returns a *GenerationError and leaves
// the user's previous feed untouched. Nothing is retried; calling Generate
// again recomputes from scratch.
func (g *Generator) Generate(ctx context.Context, userID string) (res *Result, err error) {
	start := time.Now()
	stage := StageStart

	ctx, endSpan := tracing.StartSpan(ctx, "newsfeed.generate")
	defer func() { endSpan(err) }()
	tracing.SetAttributes(ctx, attribute.String("newsfeed.user_id", userID))

	fail := func(cause error) (*Result, error) {
		g.recordFailure(ctx, userID, stage, cause, time.Since(start))
		return nil, &GenerationError{UserID: userID, Stage: stage, Err: cause}
	}
	enter := func(next Stage) {
		stage = next
		tracing.AddEvent(ctx, string(next))
	}

	if userID == "" {
		return fail(ErrEmptyUserID)
	}

	unlock, err := g.locks.lock(ctx, userID)
	if err != nil {
		return fail(fmt.Errorf("waiting for running generation: %w", err))
	}
	defer unlock()

	enter(StageNormalizingProfile)
	p, err := g.profiles.GetProfile(ctx, userID)
	if err != nil {
		if isTimeout(err) {
			err = fmt.Errorf("%w: %w", ErrStoreTimeout, err)
		}
		return fail(err)
	}
	location := ranking.Normalize(p.LocationCounts, p.LocationPreferences)
	category := ranking.Normalize(p.CategoryCounts, p.CategoryPreferences)

	enter(StageReadingCandidates)
	candidates, err := g.candidates.ReadCandidates(ctx)
	if err != nil {
		return fail(err)
	}

	enter(StageScoring)
	scored := ranking.ScoreCandidates(candidates, location, category)
	if scored.Malformed > 0 {
		g.config.Logger.DebugContext(ctx, "recovered malformed candidates",
			"user_id", userID,
			"malformed", scored.Malformed)
	}

	enter(StageWritingCache)
	if err := g.writer.ReplaceFeed(ctx, userID, scored.Entries, g.config.TTL); err != nil {
		return fail(fmt.Errorf("replace feed: %w", err))
	}

	res = &Result{
		UserID:    userID,
		Key:       g.writer.FeedKey(userID),
		Entries:   len(scored.Entries),
		Malformed: scored.Malformed,
		Zero:      scored.Zero,
		TTL:       g.config.TTL,
		Duration:  time.Since(start),
	}
	g.recordSuccess(ctx, res)

	return res, nil
}

func (g *Generator) recordSuccess(ctx context.Context, res *Result) {
	if m := g.config.Metrics; m != nil {
		m.IncGenerations(StatusSuccess)
		m.ObserveGenerationDuration(res.Duration.Seconds())
		m.AddMalformedCandidates(res.Malformed)
		m.SetLastCachedEntries(res.Entries)
	}

	g.config.Logger.InfoContext(ctx, "newsfeed cached",
		"user_id", res.UserID,
		"key", res.Key,
		"entries", res.Entries,
		"zero_scored", res.Zero,
		"malformed", res.Malformed,
		"duration_ms", res.Duration.Milliseconds())
}

func (g *Generator) recordFailure(ctx context.Context, userID string, stage Stage, cause error, elapsed time.Duration) {
	if m := g.config.Metrics; m != nil {
		m.IncGenerations(StatusFailure)
		m.IncStageErrors(stage)
		m.ObserveGenerationDuration(elapsed.Seconds())
	}

	g.config.Logger.ErrorContext(ctx, "newsfeed generation failed",
		"user_id", userID,
		"stage", string(stage),
		"error", cause,
		"duration_ms", elapsed.Milliseconds())
}
