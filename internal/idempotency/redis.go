package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
	"github.com/redis/go-redis/v9"
)

// RedisChecker is a Checker backed directly by Redis. Unlike the
// state-store backend, MarkProcessed uses SET NX, so of two concurrent
// deliveries racing on the same event id exactly one claims the marker.
type RedisChecker struct {
	rdb   *redis.Client
	scope string
	ttl   time.Duration
}

// NewRedisChecker creates a Redis-backed checker for one consumer scope.
func NewRedisChecker(settings models.RedisSettings, scope string, ttlSeconds int) *RedisChecker {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     settings.Addr,
		Password: settings.Password,
		DB:       settings.DB,
	})
	return &RedisChecker{
		rdb:   rdb,
		scope: scope,
		ttl:   time.Duration(ttlSeconds) * time.Second,
	}
}

// IsProcessed reports whether eventID already carries a marker. A Redis
// error is logged and answered with false, same as the state-store
// backend.
func (c *RedisChecker) IsProcessed(ctx context.Context, eventID string) bool {
	key := markerKey(c.scope, eventID)
	_, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.L().Warn("Idempotency check failed, assuming not processed",
				"key", key, "error", err)
		}
		return false
	}
	return true
}

// MarkProcessed writes the marker with NX semantics: the first writer
// wins and an existing marker is left untouched. Both outcomes count as
// marked.
func (c *RedisChecker) MarkProcessed(ctx context.Context, eventID string, marker Marker) bool {
	key := markerKey(c.scope, eventID)
	value, err := json.Marshal(marker)
	if err != nil {
		logger.L().Error("Failed to marshal processed marker", "key", key, "error", err)
		return false
	}
	if err := c.rdb.SetNX(ctx, key, value, c.ttl).Err(); err != nil {
		logger.L().Error("Failed to mark event as processed", "key", key, "error", err)
		return false
	}
	return true
}

// Claim atomically checks and sets the marker in one step: it returns
// true only for the caller that created the marker. This closes the
// narrow get-then-put race for backends that can afford it.
func (c *RedisChecker) Claim(ctx context.Context, eventID string, marker Marker) bool {
	key := markerKey(c.scope, eventID)
	value, err := json.Marshal(marker)
	if err != nil {
		logger.L().Error("Failed to marshal processed marker", "key", key, "error", err)
		return false
	}
	claimed, err := c.rdb.SetNX(ctx, key, value, c.ttl).Result()
	if err != nil {
		logger.L().Warn("Idempotency claim failed, assuming not processed", "key", key, "error", err)
		return true // bias toward processing over dropping
	}
	return claimed
}

// Delete removes the marker. Only used by administrative replay.
func (c *RedisChecker) Delete(ctx context.Context, eventID string) bool {
	key := markerKey(c.scope, eventID)
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		logger.L().Error("Failed to delete processed marker", "key", key, "error", err)
		return false
	}
	return true
}

// Close releases the underlying Redis connection.
func (c *RedisChecker) Close() error {
	return c.rdb.Close()
}
