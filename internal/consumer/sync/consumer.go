package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/pbaity/herald/internal/consumer"
	"github.com/pbaity/herald/internal/idempotency"
	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
)

// Scope prefixes this consumer's processed markers.
const Scope = "sync"

// Route receives task-updates deliveries.
const Route = "/events/task-updates"

// Consumer fans task.sync events out to the user's connected clients.
type Consumer struct {
	hub  *Hub
	orch *consumer.Orchestrator
}

// syncMessage is the frame pushed to WebSocket clients.
type syncMessage struct {
	Type      string    `json:"type"`
	TaskID    string    `json:"task_id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

// New creates a sync consumer broadcasting through hub and deduplicating
// through checker.
func New(hub *Hub, checker idempotency.Checker) *Consumer {
	c := &Consumer{hub: hub}
	c.orch = consumer.NewOrchestrator(Scope, checker, consumer.EffectFunc(c.fanout))
	return c
}

// Hub exposes the underlying hub so the server can mount its WebSocket
// handler.
func (c *Consumer) Hub() *Hub {
	return c.hub
}

func (c *Consumer) fanout(_ context.Context, env models.EventEnvelope) (string, error) {
	var p models.TaskSyncPayload
	if err := env.DecodePayload(&p); err != nil {
		return "", fmt.Errorf("%w: %v", consumer.ErrMalformed, err)
	}

	delivered := c.hub.Broadcast(env.UserID, syncMessage{
		Type:      string(env.EventType),
		TaskID:    p.TaskID,
		Action:    p.Action,
		Timestamp: env.Timestamp,
	})
	logger.L().Debug("Broadcast sync event", "event_id", env.EventID, "user_id", env.UserID, "clients", delivered)
	return "", nil
}

// Endpoints subscribes the consumer to the task-updates topic.
func (c *Consumer) Endpoints(pubsubName string) []consumer.Endpoint {
	return []consumer.Endpoint{{
		Subscription: consumer.Subscription{
			PubSubName: pubsubName,
			Topic:      models.TopicTaskUpdates,
			Route:      Route,
		},
		Route:   Route,
		Handler: consumer.Handler(c.orch),
	}}
}
