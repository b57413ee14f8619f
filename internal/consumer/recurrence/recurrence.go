// Package recurrence consumes task.completed events and creates the next
// occurrence of recurring tasks through service invocation on the task
// producer.
package recurrence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pbaity/herald/internal/consumer"
	"github.com/pbaity/herald/internal/idempotency"
	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/internal/recurrence"
	"github.com/pbaity/herald/internal/sidecar"
	"github.com/pbaity/herald/pkg/models"
)

// Scope prefixes this consumer's processed markers.
const Scope = "recurring"

// Route receives task.completed deliveries.
const Route = "/events/recurrence/task-completed"

// createTaskMethod is the producer endpoint that creates a task.
const createTaskMethod = "api/tasks"

// Invoker is the subset of the sidecar client used to reach the task
// producer.
type Invoker interface {
	InvokeService(ctx context.Context, appID, method string, body any, headers map[string]string) ([]byte, error)
}

var _ Invoker = (*sidecar.Client)(nil)

// Consumer generates the next occurrence of a recurring task when its
// current occurrence completes.
type Consumer struct {
	invoker       Invoker
	producerAppID string
	orch          *consumer.Orchestrator
}

// New creates a recurrence consumer that invokes producerAppID through
// invoker and deduplicates through checker.
func New(invoker Invoker, producerAppID string, checker idempotency.Checker) *Consumer {
	c := &Consumer{invoker: invoker, producerAppID: producerAppID}
	c.orch = consumer.NewOrchestrator(Scope, checker, consumer.EffectFunc(c.generate))
	return c
}

// createTaskRequest is the producer's task-creation body. The parent
// link ties the new occurrence back to the completed one.
type createTaskRequest struct {
	Title                 string   `json:"title"`
	Description           string   `json:"description,omitempty"`
	Priority              string   `json:"priority,omitempty"`
	DueDate               *string  `json:"due_date,omitempty"`
	Tags                  []string `json:"tags,omitempty"`
	ReminderOffsetMinutes *int     `json:"reminder_offset_minutes,omitempty"`
	IsRecurring           bool     `json:"is_recurring"`
	RecurrenceRule        string   `json:"recurrence_rule,omitempty"`
	ParentTaskID          string   `json:"parent_task_id,omitempty"`
}

func (c *Consumer) generate(ctx context.Context, env models.EventEnvelope) (string, error) {
	var task models.TaskPayload
	if err := env.DecodePayload(&task); err != nil {
		return "", fmt.Errorf("%w: %v", consumer.ErrMalformed, err)
	}

	l := logger.L().With("event_id", env.EventID, "task_id", task.ID, "user_id", env.UserID)

	if env.EventType != models.EventTaskCompleted || !task.IsRecurring {
		l.Debug("Not a completed recurring task, nothing to generate")
		return "", nil
	}

	nextDue, err := recurrence.NextDue(task.DueDate, task.RecurrenceRule)
	if err != nil {
		// A bad rule never becomes valid on redelivery; ack and move on.
		l.Warn("Unparseable recurrence rule, skipping next occurrence", "rule", task.RecurrenceRule, "error", err)
		return "", nil
	}

	req := createTaskRequest{
		Title:                 task.Title,
		Description:           task.Description,
		Priority:              task.Priority,
		Tags:                  task.Tags,
		ReminderOffsetMinutes: task.ReminderOffsetMinutes,
		IsRecurring:           true,
		RecurrenceRule:        task.RecurrenceRule,
		ParentTaskID:          task.ID,
	}
	if nextDue != nil {
		due := nextDue.UTC().Format(time.RFC3339)
		req.DueDate = &due
	}

	headers := map[string]string{"X-User-Id": env.UserID}
	resp, err := c.invoker.InvokeService(ctx, c.producerAppID, createTaskMethod, req, headers)
	if err != nil {
		return "", fmt.Errorf("failed to create next occurrence of task %s: %w", task.ID, err)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp, &created); err != nil || created.ID == "" {
		// The task exists even if the response shape is unexpected.
		l.Warn("Next occurrence created but response had no id")
		return "", nil
	}

	l.Info("Created next occurrence", "next_task_id", created.ID, "next_due", nextDue)
	return created.ID, nil
}

// Endpoints subscribes to task-events with a routing rule so the sidecar
// delivers only task.completed here; everything else on the topic is for
// other consumers.
func (c *Consumer) Endpoints(pubsubName string) []consumer.Endpoint {
	return []consumer.Endpoint{{
		Subscription: consumer.Subscription{
			PubSubName: pubsubName,
			Topic:      models.TopicTaskEvents,
			Routes: &consumer.Routes{
				Rules: []consumer.RoutingRule{{
					Match: `event.data.event_type == "task.completed"`,
					Path:  Route,
				}},
			},
		},
		Route:   Route,
		Handler: consumer.Handler(c.orch),
	}}
}
