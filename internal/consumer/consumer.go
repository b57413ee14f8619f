// Package consumer implements the idempotent-consumer shape shared by
// every downstream service: receive an envelope, consult the processed
// marker store, invoke the scope's effect exactly once, mark processed.
// The transport may redeliver, delay, or reorder envelopes; the
// orchestrator compensates.
package consumer

import (
	"context"
	"errors"

	"github.com/pbaity/herald/internal/idempotency"
	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
)

// ErrMalformed marks deliveries that can never process successfully, no
// matter how often the broker redelivers them: undecodable payloads,
// event types a route should never receive. Effects wrap such failures
// in it so the delivery is rejected instead of retried forever.
var ErrMalformed = errors.New("malformed event")

// Status is the outcome of handling one delivered envelope.
type Status string

const (
	StatusSuccess   Status = "success"
	StatusDuplicate Status = "duplicate"
	StatusError     Status = "error"
)

// Result reports how a delivery was handled.
type Result struct {
	Status  Status `json:"status"`
	EventID string `json:"event_id,omitempty"`
	Message string `json:"message,omitempty"`
	// ArtifactID is an id produced by the effect (e.g. the next
	// occurrence created for a recurring task), echoed for correlation.
	ArtifactID string `json:"artifact_id,omitempty"`
	// Retryable distinguishes transient effect failures (the broker
	// should redeliver) from malformed envelopes (it must not).
	Retryable bool `json:"-"`
}

// Effect is the domain-specific action a consumer scope performs exactly
// once per event id. The returned artifact id, if any, is stored in the
// processed marker. All side effects of handling a delivery are confined
// to Apply.
type Effect interface {
	Apply(ctx context.Context, env models.EventEnvelope) (artifactID string, err error)
}

// EffectFunc adapts a function to the Effect interface.
type EffectFunc func(ctx context.Context, env models.EventEnvelope) (string, error)

// Apply implements Effect.
func (f EffectFunc) Apply(ctx context.Context, env models.EventEnvelope) (string, error) {
	return f(ctx, env)
}

// Orchestrator runs the shared state machine for one consumer scope:
// RECEIVED -> duplicate? -> effect -> marked -> acked. It is safe for
// concurrent use across deliveries; the marker store is the only
// serialization point.
type Orchestrator struct {
	scope   string
	checker idempotency.Checker
	effect  Effect
}

// NewOrchestrator creates an orchestrator for scope, deduplicating
// through checker and delegating the domain action to effect.
func NewOrchestrator(scope string, checker idempotency.Checker, effect Effect) *Orchestrator {
	return &Orchestrator{scope: scope, checker: checker, effect: effect}
}

// Handle processes one delivered envelope.
//
// The marker is written only after the effect succeeds: a failed effect
// leaves no marker, so redelivery retries it. A crash after the effect
// but before the marker write causes one duplicate effect on redelivery,
// which every effect in scope tolerates.
func (o *Orchestrator) Handle(ctx context.Context, env models.EventEnvelope) Result {
	l := logger.L().With("scope", o.scope, "event_id", env.EventID, "event_type", env.EventType)

	if err := env.Validate(); err != nil {
		l.Error("Rejecting malformed envelope", "error", err)
		return Result{
			Status:  StatusError,
			EventID: env.EventID,
			Message: err.Error(),
		}
	}

	if o.checker.IsProcessed(ctx, env.EventID) {
		l.Info("Duplicate delivery, skipping effect")
		return Result{
			Status:  StatusDuplicate,
			EventID: env.EventID,
			Message: "event already processed",
		}
	}

	artifactID, err := o.effect.Apply(ctx, env)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			l.Error("Rejecting malformed delivery", "error", err)
			return Result{
				Status:  StatusError,
				EventID: env.EventID,
				Message: err.Error(),
			}
		}
		l.Error("Effect failed, leaving event unmarked for redelivery", "error", err)
		return Result{
			Status:    StatusError,
			EventID:   env.EventID,
			Message:   err.Error(),
			Retryable: true,
		}
	}

	if !o.checker.MarkProcessed(ctx, env.EventID, idempotency.NewMarker(env.EventID, artifactID)) {
		// The effect is already done; a missed marker write only risks
		// one duplicate effect if the broker redelivers.
		l.Warn("Effect succeeded but marker write failed")
	}

	l.Info("Event processed", "artifact_id", artifactID)
	return Result{
		Status:     StatusSuccess,
		EventID:    env.EventID,
		ArtifactID: artifactID,
	}
}

// Scope returns the orchestrator's consumer scope name.
func (o *Orchestrator) Scope() string {
	return o.scope
}
