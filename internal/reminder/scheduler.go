package reminder

import (
	"context"
	"errors"
	"time"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/internal/sidecar"
	"github.com/pbaity/herald/pkg/models"
)

// ErrFireTimeInPast is returned by Schedule when the requested fire time
// has already elapsed. The external scheduler has no defined behavior for
// past instants, so an elapsed reminder is refused rather than registered.
var ErrFireTimeInPast = errors.New("reminder fire time is in the past")

// JobName derives the deterministic job name for a task's reminder, so at
// most one job name exists per task.
func JobName(taskID string) string {
	return "reminder-" + taskID
}

// Scheduler manages the one-shot reminder job per task: schedule, cancel
// and reschedule. The jobs live in the external scheduler; this type only
// holds configuration and job-name handles.
type Scheduler struct {
	client        *sidecar.Client
	callbackRoute string
	now           func() time.Time
}

// NewScheduler creates a reminder scheduler posting fired jobs to
// callbackRoute.
func NewScheduler(client *sidecar.Client, callbackRoute string) *Scheduler {
	return &Scheduler{
		client:        client,
		callbackRoute: callbackRoute,
		now:           time.Now,
	}
}

// Schedule registers a one-shot job for taskID firing at fireTime. A fire
// time already in the past is refused with ErrFireTimeInPast and no job is
// created.
func (s *Scheduler) Schedule(ctx context.Context, taskID string, fireTime time.Time, data models.ReminderCallback) error {
	jobName := JobName(taskID)

	if fireTime.Before(s.now()) {
		logger.L().Warn("Refusing to schedule reminder in the past",
			"job_name", jobName, "task_id", taskID, "fire_time", fireTime.UTC())
		return ErrFireTimeInPast
	}

	logger.L().Info("Scheduling reminder job",
		"job_name", jobName, "task_id", taskID, "fire_time", fireTime.UTC())

	return s.client.ScheduleJob(ctx, jobName, fireTime, data, s.callbackRoute)
}

// Cancel deletes the reminder job for taskID. Cancelling a job that does
// not exist is success: cancellation is idempotent.
func (s *Scheduler) Cancel(ctx context.Context, taskID string) error {
	jobName := JobName(taskID)
	logger.L().Info("Cancelling reminder job", "job_name", jobName, "task_id", taskID)
	return s.client.CancelJob(ctx, jobName)
}

// Reschedule cancels any existing reminder job for taskID and, when
// fireTime is non-nil, schedules a new one. A nil fireTime nets out to
// pure cancellation.
//
// The cancel-then-create sequence is not atomic: a crash between the two
// steps can leave zero jobs, or one stray job if the old one already
// fired. That window is accepted and documented rather than papered over.
func (s *Scheduler) Reschedule(ctx context.Context, taskID string, fireTime *time.Time, data models.ReminderCallback) error {
	if err := s.Cancel(ctx, taskID); err != nil {
		logger.L().Warn("Failed to cancel reminder job during reschedule",
			"job_name", JobName(taskID), "error", err)
	}
	if fireTime == nil {
		return nil
	}
	return s.Schedule(ctx, taskID, *fireTime, data)
}
