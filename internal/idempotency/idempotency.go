// Package idempotency records which event ids a consumer scope has already
// handled, backed by an external key-value store with per-key expiry.
//
// The error posture is deliberate: a store that cannot be reached answers
// "not yet processed", so transient outages bias toward duplicate
// processing rather than dropped events. Marker writes that fail are
// logged and never roll back the effect already performed.
package idempotency

import (
	"context"
	"time"
)

// DefaultTTLSeconds is how long a processed marker lives before the store
// expires it. A duplicate redelivered after expiry is reprocessed; that
// bounded staleness is accepted, not a bug.
const DefaultTTLSeconds = 86400

// Marker is the small metadata stored against a processed event id.
type Marker struct {
	EventID     string    `json:"event_id"`
	ProcessedAt time.Time `json:"processed_at"`
	// ArtifactID optionally records an id produced while handling the
	// event (e.g. the next occurrence created for a recurring task),
	// for later correlation.
	ArtifactID string `json:"artifact_id,omitempty"`
}

// NewMarker builds a marker stamped with the current instant.
func NewMarker(eventID, artifactID string) Marker {
	return Marker{
		EventID:     eventID,
		ProcessedAt: time.Now().UTC(),
		ArtifactID:  artifactID,
	}
}

// Checker tracks processed event ids for one consumer scope.
//
// IsProcessed returns false both when the marker is genuinely absent and
// when the store is unreachable. MarkProcessed reports whether the write
// succeeded; callers log the failure and move on. Delete exists only for
// administrative replay and testing.
type Checker interface {
	IsProcessed(ctx context.Context, eventID string) bool
	MarkProcessed(ctx context.Context, eventID string, marker Marker) bool
	Delete(ctx context.Context, eventID string) bool
}

func markerKey(scope, eventID string) string {
	return scope + "-processed:" + eventID
}
