package idempotency

import (
	"context"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/internal/sidecar"
)

// StoreChecker is a Checker backed by the sidecar's key-value state store.
// It uses plain get-then-put, so two concurrent deliveries of the same
// duplicate can both observe "not processed" in a narrow window; every
// effect in scope tolerates that rare double-processing.
type StoreChecker struct {
	client     *sidecar.Client
	storeName  string
	scope      string
	ttlSeconds int
}

// NewStoreChecker creates a state-store-backed checker for one consumer
// scope (e.g. "audit", "notification", "recurring").
func NewStoreChecker(client *sidecar.Client, storeName, scope string, ttlSeconds int) *StoreChecker {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultTTLSeconds
	}
	return &StoreChecker{
		client:     client,
		storeName:  storeName,
		scope:      scope,
		ttlSeconds: ttlSeconds,
	}
}

// IsProcessed reports whether eventID already carries a marker. Transport
// errors are logged and answered with false so the event is reprocessed
// instead of silently dropped.
func (c *StoreChecker) IsProcessed(ctx context.Context, eventID string) bool {
	key := markerKey(c.scope, eventID)
	value, err := c.client.GetState(ctx, c.storeName, key)
	if err != nil {
		logger.L().Warn("Idempotency check failed, assuming not processed",
			"key", key, "error", err)
		return false
	}
	return len(value) > 0
}

// MarkProcessed writes the marker with the configured TTL.
func (c *StoreChecker) MarkProcessed(ctx context.Context, eventID string, marker Marker) bool {
	key := markerKey(c.scope, eventID)
	if err := c.client.SaveState(ctx, c.storeName, key, marker, c.ttlSeconds); err != nil {
		logger.L().Error("Failed to mark event as processed", "key", key, "error", err)
		return false
	}
	logger.L().Debug("Marked event as processed", "key", key)
	return true
}

// Delete removes the marker so the event can be reprocessed. Only used by
// administrative replay.
func (c *StoreChecker) Delete(ctx context.Context, eventID string) bool {
	key := markerKey(c.scope, eventID)
	if err := c.client.DeleteState(ctx, c.storeName, key); err != nil {
		logger.L().Error("Failed to delete processed marker", "key", key, "error", err)
		return false
	}
	return true
}
