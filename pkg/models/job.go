package models

import "time"

// ReminderCallback is the opaque data stored with a scheduled reminder job
// and handed back when the job fires.
type ReminderCallback struct {
	TaskID    string     `json:"task_id"`
	TaskTitle string     `json:"task_title"`
	UserID    string     `json:"user_id"`
	DueAt     *time.Time `json:"due_at,omitempty"`
	RemindAt  time.Time  `json:"remind_at"`
}

// JobCallback is the body the scheduler posts to the callback route when a
// one-shot job fires.
type JobCallback struct {
	Name string           `json:"name"` // Job name, e.g. "reminder-<task id>"
	Data ReminderCallback `json:"data"`
}
