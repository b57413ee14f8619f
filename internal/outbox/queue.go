// Package outbox moves side effects of API requests (event publishes,
// reminder scheduling) off the request path. Handlers enqueue intents
// and answer immediately; a worker pool dispatches them in the
// background. Dispatch failures are logged, never surfaced to the
// caller that enqueued.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/pkg/models"
)

const defaultCapacity = 1000

// Kind discriminates what a dispatched intent should do.
type Kind string

const (
	// KindPublish delivers an event envelope to a topic.
	KindPublish Kind = "publish"
	// KindScheduleReminder creates or replaces a reminder callback job.
	KindScheduleReminder Kind = "schedule_reminder"
	// KindCancelReminder removes a reminder callback job.
	KindCancelReminder Kind = "cancel_reminder"
)

// Intent is one deferred side effect. Fields are populated per Kind:
// publish intents carry Topic/EventType/Payload, reminder intents carry
// TaskID and (for scheduling) Callback and FireTime.
type Intent struct {
	ID        string                  `json:"id"`
	Kind      Kind                    `json:"kind"`
	Topic     string                  `json:"topic,omitempty"`
	EventType models.EventType        `json:"event_type,omitempty"`
	UserID    string                  `json:"user_id,omitempty"`
	Payload   json.RawMessage         `json:"payload,omitempty"`
	TaskID    string                  `json:"task_id,omitempty"`
	Callback  models.ReminderCallback `json:"callback,omitempty"`
	FireTime  *time.Time              `json:"fire_time,omitempty"`
}

// Queue is the FIFO buffer of intents waiting for dispatch. Undispatched
// intents can be persisted on shutdown and reloaded on the next start.
type Queue struct {
	queue       chan Intent
	capacity    int
	persistPath string
	mu          sync.Mutex
	stopChan    chan struct{}
}

// NewQueue creates an intent queue. A zero or negative capacity falls
// back to the default; an empty persistPath disables persistence.
func NewQueue(capacity int, persistPath string) *Queue {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Queue{
		queue:       make(chan Intent, capacity),
		capacity:    capacity,
		persistPath: persistPath,
		stopChan:    make(chan struct{}),
	}
}

// Enqueue adds an intent without blocking. A full or stopped queue is an
// error; callers log it and move on, they never fail the originating
// request over it.
func (q *Queue) Enqueue(intent Intent) error {
	if intent.ID == "" {
		intent.ID = uuid.NewString()
	}
	select {
	case <-q.stopChan:
		return fmt.Errorf("outbox is stopped, cannot enqueue intent %s", intent.ID)
	default:
	}
	select {
	case q.queue <- intent:
		logger.L().Debug("Intent enqueued", "intent_id", intent.ID, "kind", intent.Kind)
		return nil
	default:
		return fmt.Errorf("outbox full (capacity %d), dropping intent %s", q.capacity, intent.ID)
	}
}

// Dequeue blocks until an intent is available, the context ends, or the
// queue stops with its buffer drained.
func (q *Queue) Dequeue(ctx context.Context) (Intent, error) {
	select {
	case intent := <-q.queue:
		return intent, nil
	case <-ctx.Done():
		return Intent{}, ctx.Err()
	case <-q.stopChan:
		// Drain anything buffered before the stop signal.
		select {
		case intent := <-q.queue:
			return intent, nil
		default:
			return Intent{}, fmt.Errorf("outbox stopped")
		}
	}
}

// Start loads persisted intents, if any.
func (q *Queue) Start() error {
	if err := q.loadState(); err != nil {
		logger.L().Error("Failed to load outbox state, starting empty", "error", err)
	}
	logger.L().Info("Outbox started", "capacity", q.capacity, "persistence_path", q.persistPath)
	return nil
}

// Stop refuses further intents and persists whatever was not dispatched.
func (q *Queue) Stop() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	select {
	case <-q.stopChan:
		return nil
	default:
	}

	logger.L().Info("Stopping outbox...")
	close(q.stopChan)

	// The channel is never closed: a concurrent Enqueue that passed the
	// stopChan check could otherwise panic sending on it. Receivers exit
	// through stopChan once the buffer is drained.
	if err := q.saveState(); err != nil {
		return fmt.Errorf("failed to save outbox state: %w", err)
	}
	return nil
}

func (q *Queue) loadState() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.persistPath == "" {
		return nil
	}

	data, err := os.ReadFile(q.persistPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read outbox state file %q: %w", q.persistPath, err)
	}
	if len(data) == 0 {
		return nil
	}

	var intents []Intent
	if err := json.Unmarshal(data, &intents); err != nil {
		return fmt.Errorf("failed to unmarshal outbox state from %q: %w", q.persistPath, err)
	}

	for _, intent := range intents {
		select {
		case q.queue <- intent:
		default:
			return fmt.Errorf("failed to reload intent %s, outbox full", intent.ID)
		}
	}
	logger.L().Info("Reloaded persisted intents", "count", len(intents), "path", q.persistPath)
	return nil
}

// saveState drains the buffer to disk. Called under the mutex with
// stopChan already closed.
func (q *Queue) saveState() error {
	if q.persistPath == "" {
		return nil
	}

	intents := make([]Intent, 0, len(q.queue))
	for {
		select {
		case intent := <-q.queue:
			intents = append(intents, intent)
			continue
		default:
		}
		break
	}

	data, err := json.MarshalIndent(intents, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal outbox state: %w", err)
	}

	tempFile := q.persistPath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write temporary outbox state file %q: %w", tempFile, err)
	}
	if err := os.Rename(tempFile, q.persistPath); err != nil {
		_ = os.Remove(tempFile)
		return fmt.Errorf("failed to rename outbox state file to %q: %w", q.persistPath, err)
	}

	logger.L().Info("Persisted undispatched intents", "count", len(intents), "path", q.persistPath)
	return nil
}
