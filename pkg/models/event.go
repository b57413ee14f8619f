package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType identifies the kind of lifecycle event carried by an envelope.
// The set is closed: consumers reject envelopes carrying anything else.
type EventType string

const (
	EventTaskCreated   EventType = "task.created"
	EventTaskUpdated   EventType = "task.updated"
	EventTaskCompleted EventType = "task.completed"
	EventTaskDeleted   EventType = "task.deleted"

	EventReminderScheduled EventType = "reminder.scheduled"
	EventReminderTriggered EventType = "reminder.triggered"

	// EventTaskSync is a lightweight notification for connected clients
	// (WebSocket fanout), carrying only the task id and the action.
	EventTaskSync EventType = "task.sync"
)

// Topic names used on the pub/sub side.
const (
	TopicTaskEvents  = "task-events"
	TopicReminders   = "reminders"
	TopicTaskUpdates = "task-updates"
)

// Valid reports whether t is one of the recognized event types.
func (t EventType) Valid() bool {
	switch t {
	case EventTaskCreated, EventTaskUpdated, EventTaskCompleted, EventTaskDeleted,
		EventReminderScheduled, EventReminderTriggered, EventTaskSync:
		return true
	}
	return false
}

// EventEnvelope is the self-describing record of one logical event. The
// EventID is generated once at publish time and is the sole deduplication
// key; consumers must never derive identity from the payload, since two
// distinct events may carry identical payload snapshots.
type EventEnvelope struct {
	EventID     string          `json:"event_id"`
	EventType   EventType       `json:"event_type"`
	Timestamp   time.Time       `json:"timestamp"`
	UserID      string          `json:"user_id"`
	Payload     json.RawMessage `json:"payload"`
	Source      string          `json:"source"`
	SpecVersion string          `json:"specversion"`
}

// Validate checks that the envelope carries every required field.
// A failing envelope is rejected as malformed and never retried.
func (e *EventEnvelope) Validate() error {
	if e == nil {
		return errors.New("envelope is nil")
	}
	if e.EventID == "" {
		return errors.New("envelope missing event_id")
	}
	if e.EventType == "" {
		return errors.New("envelope missing event_type")
	}
	if !e.EventType.Valid() {
		return fmt.Errorf("unknown event_type: %s", e.EventType)
	}
	if e.UserID == "" {
		return errors.New("envelope missing user_id")
	}
	if e.Timestamp.IsZero() {
		return errors.New("envelope missing timestamp")
	}
	return nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e *EventEnvelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return errors.New("envelope has no payload")
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("failed to decode payload of event %s: %w", e.EventID, err)
	}
	return nil
}

// TaskPayload is the full task snapshot embedded in task-events envelopes.
type TaskPayload struct {
	ID                    string     `json:"id"`
	Title                 string     `json:"title"`
	Description           string     `json:"description,omitempty"`
	Status                string     `json:"status"`
	Priority              string     `json:"priority"`
	DueDate               *time.Time `json:"due_date,omitempty"`
	Tags                  []string   `json:"tags,omitempty"`
	ReminderOffsetMinutes *int       `json:"reminder_offset_minutes,omitempty"`
	RemindAt              *time.Time `json:"remind_at,omitempty"`
	IsRecurring           bool       `json:"is_recurring"`
	RecurrenceRule        string     `json:"recurrence_rule,omitempty"`
	ParentTaskID          string     `json:"parent_task_id,omitempty"`
}

// ReminderPayload is the payload of reminder.scheduled and
// reminder.triggered envelopes on the reminders topic.
type ReminderPayload struct {
	TaskID    string     `json:"task_id"`
	TaskTitle string     `json:"task_title"`
	DueAt     *time.Time `json:"due_at"`
	RemindAt  time.Time  `json:"remind_at"`
}

// TaskSyncPayload is the payload of task.sync envelopes on the
// task-updates topic.
type TaskSyncPayload struct {
	TaskID string `json:"task_id"`
	Action string `json:"action"`
}
