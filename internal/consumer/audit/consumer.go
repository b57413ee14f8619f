package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pbaity/herald/internal/consumer"
	"github.com/pbaity/herald/internal/idempotency"
	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
)

// Scope prefixes this consumer's processed markers.
const Scope = "audit"

// Consumer records every event on every topic into the audit store.
type Consumer struct {
	store *Store
	orch  *consumer.Orchestrator
}

// New creates an audit consumer writing to store and deduplicating
// through checker.
func New(store *Store, checker idempotency.Checker) *Consumer {
	c := &Consumer{store: store}
	c.orch = consumer.NewOrchestrator(Scope, checker, consumer.EffectFunc(c.record))
	return c
}

func (c *Consumer) record(ctx context.Context, env models.EventEnvelope) (string, error) {
	rowID, err := c.store.Record(ctx, env, taskIDOf(env))
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(rowID, 10), nil
}

// taskIDOf extracts the task id for the indexed column. The raw payload
// is stored regardless, so extraction is best effort.
func taskIDOf(env models.EventEnvelope) string {
	switch env.EventType {
	case models.EventTaskCreated, models.EventTaskUpdated, models.EventTaskCompleted, models.EventTaskDeleted:
		var p models.TaskPayload
		if err := env.DecodePayload(&p); err == nil {
			return p.ID
		}
	case models.EventReminderScheduled, models.EventReminderTriggered:
		var p models.ReminderPayload
		if err := env.DecodePayload(&p); err == nil {
			return p.TaskID
		}
	case models.EventTaskSync:
		var p models.TaskSyncPayload
		if err := env.DecodePayload(&p); err == nil {
			return p.TaskID
		}
	}
	return ""
}

// Endpoints subscribes the audit consumer to every topic.
func (c *Consumer) Endpoints(pubsubName string) []consumer.Endpoint {
	handler := consumer.Handler(c.orch)
	topics := []string{models.TopicTaskEvents, models.TopicReminders, models.TopicTaskUpdates}

	endpoints := make([]consumer.Endpoint, 0, len(topics))
	for _, topic := range topics {
		route := "/events/audit/" + topic
		endpoints = append(endpoints, consumer.Endpoint{
			Subscription: consumer.Subscription{
				PubSubName: pubsubName,
				Topic:      topic,
				Route:      route,
			},
			Route:   route,
			Handler: handler,
		})
	}
	return endpoints
}

// QueryHandler serves GET requests against the audit log. Filters come
// from the user_id, task_id and event_type query parameters; paging from
// limit and offset.
func (c *Consumer) QueryHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		q := Query{
			UserID:    r.URL.Query().Get("user_id"),
			TaskID:    r.URL.Query().Get("task_id"),
			EventType: r.URL.Query().Get("event_type"),
		}
		if v := r.URL.Query().Get("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			q.Limit = n
		}
		if v := r.URL.Query().Get("offset"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				http.Error(w, "offset must be a non-negative integer", http.StatusBadRequest)
				return
			}
			q.Offset = n
		}

		entries, err := c.store.List(r.Context(), q)
		if err != nil {
			logger.L().Error("Audit query failed", "error", err)
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		if entries == nil {
			entries = []Entry{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(map[string]any{"entries": entries, "count": len(entries)}); err != nil {
			logger.L().Error("Failed to encode audit entries", "error", err)
		}
	})
}
