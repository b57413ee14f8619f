// Package notify consumes the reminders topic. Scheduling confirmations
// are silent bookkeeping; a triggered reminder is the moment the user
// should actually be told, which this service currently fulfills by
// logging the delivery.
package notify

import (
	"context"
	"fmt"

	"github.com/pbaity/herald/internal/consumer"
	"github.com/pbaity/herald/internal/idempotency"
	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
)

// Scope prefixes this consumer's processed markers.
const Scope = "notification"

// Route receives reminders-topic deliveries.
const Route = "/events/reminders"

// Consumer handles reminder.scheduled and reminder.triggered events.
type Consumer struct {
	orch *consumer.Orchestrator
}

// New creates a notification consumer deduplicating through checker.
func New(checker idempotency.Checker) *Consumer {
	c := &Consumer{}
	c.orch = consumer.NewOrchestrator(Scope, checker, consumer.EffectFunc(c.notify))
	return c
}

func (c *Consumer) notify(_ context.Context, env models.EventEnvelope) (string, error) {
	var p models.ReminderPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", fmt.Errorf("%w: %v", consumer.ErrMalformed, err)
	}

	l := logger.L().With("event_id", env.EventID, "user_id", env.UserID, "task_id", p.TaskID)
	switch env.EventType {
	case models.EventReminderScheduled:
		l.Debug("Reminder scheduled, no user-facing action", "remind_at", p.RemindAt)
	case models.EventReminderTriggered:
		// TODO: replace the log line with a real channel (push, email)
		// once a delivery provider is chosen.
		l.Info("Delivering reminder notification", "task_title", p.TaskTitle, "due_at", p.DueAt)
	default:
		return "", fmt.Errorf("%w: unexpected event type on reminders topic: %s", consumer.ErrMalformed, env.EventType)
	}
	return "", nil
}

// Endpoints subscribes the consumer to the reminders topic.
func (c *Consumer) Endpoints(pubsubName string) []consumer.Endpoint {
	return []consumer.Endpoint{{
		Subscription: consumer.Subscription{
			PubSubName: pubsubName,
			Topic:      models.TopicReminders,
			Route:      Route,
		},
		Route:   Route,
		Handler: consumer.Handler(c.orch),
	}}
}
