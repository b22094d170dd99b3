// Package health provides health check implementations for external dependencies.
package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisChecker implements health checking for Redis.
type RedisChecker struct {
	client  *redis.Client
	poolKey string
}

// NewRedisChecker creates a new Redis health checker. When poolKey is set the
// check also fails if that key holds something other than a sorted set; a
// missing pool is healthy since it is populated by another service.
func NewRedisChecker(client *redis.Client, poolKey string) *RedisChecker {
	return &RedisChecker{
		client:  client,
		poolKey: poolKey,
	}
}

// HealthCheck sends PING and inspects the candidate pool key type.
func (r *RedisChecker) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return err
	}
	if r.poolKey == "" {
		return nil
	}

	kind, err := r.client.Type(ctx, r.poolKey).Result()
	if err != nil {
		return err
	}
	if kind != "zset" && kind != "none" {
		return fmt.Errorf("candidate pool %q is a %s, want zset", r.poolKey, kind)
	}
	return nil
}
