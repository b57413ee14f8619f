// Package publish builds event envelopes and delivers them to the broker
// with bounded retry. The envelope's event_id is generated exactly once:
// retries of the same logical event always carry the id minted on the
// first attempt.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/internal/retry"
	"github.com/pbaity/herald/internal/sidecar"
	"github.com/pbaity/herald/pkg/models"
)

// SpecVersion is stamped on every envelope this service produces.
const SpecVersion = "1.0"

// PublishError reports that delivery failed after exhausting every attempt.
// Callers decide whether to swallow it (best-effort side channels) or
// propagate it (primary record of the action).
type PublishError struct {
	Topic    string
	EventID  string
	Attempts int
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("failed to publish event %s to topic %s after %d attempts: %v",
		e.EventID, e.Topic, e.Attempts, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// NewEnvelope builds a self-describing envelope. If eventID is empty a
// fresh one is generated; callers retrying the same logical event must fix
// the id before the first attempt and pass it on every retry.
func NewEnvelope(eventType models.EventType, userID string, payload any, eventID, source string) (models.EventEnvelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return models.EventEnvelope{}, fmt.Errorf("failed to marshal payload for %s: %w", eventType, err)
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}
	return models.EventEnvelope{
		EventID:     eventID,
		EventType:   eventType,
		Timestamp:   time.Now().UTC(),
		UserID:      userID,
		Payload:     raw,
		Source:      source,
		SpecVersion: SpecVersion,
	}, nil
}

// Publisher serializes envelopes and hands them to the broker through the
// sidecar, retrying with exponential backoff. It holds only configuration
// and is safe for concurrent use.
type Publisher struct {
	client     *sidecar.Client
	pubsubName string
	source     string
	disabled   bool
	retry      models.RetryPolicy
}

// NewPublisher creates a publisher. In disabled (local) mode Publish still
// returns a well-formed envelope but performs no broker I/O.
func NewPublisher(client *sidecar.Client, pubsubName string, settings models.PublishSettings) *Publisher {
	return &Publisher{
		client:     client,
		pubsubName: pubsubName,
		source:     settings.Source,
		disabled:   settings.Disabled,
		retry:      settings.Retry,
	}
}

// Publish builds an envelope and delivers it to topic. Pass eventID "" to
// mint a new id. On exhausted retries the envelope is returned along with
// a *PublishError so the caller still holds the id that failed.
func (p *Publisher) Publish(ctx context.Context, topic string, eventType models.EventType, userID string, payload any, eventID string) (models.EventEnvelope, error) {
	event, err := NewEnvelope(eventType, userID, payload, eventID, p.source)
	if err != nil {
		return models.EventEnvelope{}, err
	}

	l := logger.L().With("topic", topic, "event_type", eventType, "event_id", event.EventID, "user_id", userID)
	l.Info("Publishing event")

	if p.disabled {
		l.Debug("Publisher disabled, skipping broker delivery")
		return event, nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return event, fmt.Errorf("failed to marshal envelope %s: %w", event.EventID, err)
	}

	policy := retry.MergePolicies(&p.retry, nil)
	err = retry.Do(ctx, "publish "+topic, policy, func(ctx context.Context) error {
		return p.client.PublishEvent(ctx, p.pubsubName, topic, body)
	})
	if err != nil {
		return event, &PublishError{
			Topic:    topic,
			EventID:  event.EventID,
			Attempts: *policy.MaxRetries + 1,
			Err:      err,
		}
	}

	l.Info("Event published")
	return event, nil
}

// PublishTaskEvent publishes a task lifecycle event to the task-events
// topic with the full task snapshot as payload.
func (p *Publisher) PublishTaskEvent(ctx context.Context, eventType models.EventType, userID string, task models.TaskPayload) (models.EventEnvelope, error) {
	return p.Publish(ctx, models.TopicTaskEvents, eventType, userID, task, "")
}

// PublishTaskDeleted publishes a task.deleted event carrying only the
// task id.
func (p *Publisher) PublishTaskDeleted(ctx context.Context, userID, taskID string) (models.EventEnvelope, error) {
	return p.Publish(ctx, models.TopicTaskEvents, models.EventTaskDeleted, userID,
		map[string]string{"task_id": taskID}, "")
}

// PublishReminderEvent publishes reminder.scheduled or reminder.triggered
// to the reminders topic.
func (p *Publisher) PublishReminderEvent(ctx context.Context, eventType models.EventType, userID string, reminder models.ReminderPayload) (models.EventEnvelope, error) {
	return p.Publish(ctx, models.TopicReminders, eventType, userID, reminder, "")
}

// PublishTaskSync publishes a lightweight task.sync notice to the
// task-updates topic for connected clients.
func (p *Publisher) PublishTaskSync(ctx context.Context, userID, taskID, action string) (models.EventEnvelope, error) {
	return p.Publish(ctx, models.TopicTaskUpdates, models.EventTaskSync, userID,
		models.TaskSyncPayload{TaskID: taskID, Action: action}, "")
}
