package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/newsfeed/internal/config"
	"github.com/onnwee/newsfeed/internal/db"
	"github.com/onnwee/newsfeed/internal/feed"
	"github.com/onnwee/newsfeed/internal/profile"
)

// NewsfeedComponents holds the stores and generator built from configuration.
type NewsfeedComponents struct {
	Redis     *redis.Client
	DB        *sql.DB // nil when profiles are held in memory
	Store     *feed.RedisStore
	Profiles  profile.Store
	Generator *feed.Generator
	Metrics   *feed.Metrics
}

// InitNewsfeed connects to Redis and, when DATABASE_URL is set, PostgreSQL,
// and wires the generator. Feed metrics are registered with reg.
func InitNewsfeed(ctx context.Context, cfg *config.Config, logger *slog.Logger, reg prometheus.Registerer) (*NewsfeedComponents, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	c := &NewsfeedComponents{Redis: redis.NewClient(opts)}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.StoreTimeout())
	defer cancel()
	if err := c.Redis.Ping(pingCtx).Err(); err != nil {
		// Redis may come up after us; readiness reports it until then.
		logger.Warn("redis not reachable at startup", "error", err)
	}

	if cfg.DatabaseURL != "" {
		c.DB, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.Profiles = profile.NewPostgresStore(c.DB, cfg.StoreTimeout(), logger)
		logger.Info("using postgres profile store")
	} else {
		c.Profiles = profile.NewInMemoryStore()
		logger.Warn("DATABASE_URL not set, using in-memory profile store")
	}

	c.Metrics = feed.NewMetrics()
	if err := c.Metrics.Register(reg); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to register feed metrics: %w", err)
	}

	c.Store = feed.NewRedisStore(c.Redis, feed.StoreConfig{
		PoolKey:        cfg.TopPostsKey,
		KeyPrefix:      cfg.FeedKeyPrefix,
		CandidateLimit: cfg.CandidateLimit,
		Timeout:        cfg.StoreTimeout(),
	}, logger)

	c.Generator = feed.NewGenerator(feed.GeneratorConfig{
		TTL:     cfg.FeedTTL(),
		Logger:  logger,
		Metrics: c.Metrics,
	}, c.Profiles, c.Store, c.Store)

	return c, nil
}

// Close releases the Redis and database connections.
func (c *NewsfeedComponents) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.DB != nil {
		_ = c.DB.Close()
	}
}
