package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pbaity/herald/internal/logger"
	"github.com/pbaity/herald/internal/publish"
	"github.com/pbaity/herald/internal/reminder"
	"github.com/pbaity/herald/pkg/models"
)

// Processor executes one dequeued intent.
type Processor interface {
	Process(ctx context.Context, intent Intent) error
}

// Dispatcher runs a pool of workers draining the intent queue.
type Dispatcher struct {
	settings  models.ApplicationSettings
	queue     *Queue
	processor Processor
	wg        sync.WaitGroup
	cancelCtx context.CancelFunc
}

// NewDispatcher creates a dispatcher over queue with proc doing the
// actual work.
func NewDispatcher(settings models.ApplicationSettings, queue *Queue, proc Processor) *Dispatcher {
	return &Dispatcher{settings: settings, queue: queue, processor: proc}
}

// Start launches the worker goroutines.
func (d *Dispatcher) Start() {
	concurrency := d.settings.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 1
		logger.L().Warn("MaxConcurrency not set or invalid, defaulting to 1", "configured_value", d.settings.MaxConcurrency)
	}

	ctx, cancel := context.WithCancel(context.Background())
	d.cancelCtx = cancel

	logger.L().Info("Starting outbox dispatcher", "concurrency", concurrency)
	d.wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go d.worker(ctx, i)
	}
}

// Stop signals workers to stop and waits for them to finish.
func (d *Dispatcher) Stop() {
	logger.L().Info("Stopping outbox dispatcher...")
	if d.cancelCtx != nil {
		d.cancelCtx()
	}
	d.wg.Wait()
	logger.L().Info("Outbox dispatcher stopped")
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()

	for {
		intent, err := d.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				logger.L().Debug("Outbox worker stopping, context done", "worker_id", id)
			} else {
				logger.L().Info("Outbox worker stopping", "worker_id", id, "reason", err)
			}
			return
		}

		l := logger.L().With("worker_id", id, "intent_id", intent.ID, "kind", intent.Kind)
		if err := d.processor.Process(ctx, intent); err != nil {
			// The originating request already succeeded; all we can do
			// here is record the loss.
			l.Error("Failed to dispatch intent", "error", err)
		} else {
			l.Debug("Intent dispatched")
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// SidecarProcessor dispatches intents through the publisher and the
// reminder scheduler.
type SidecarProcessor struct {
	publisher *publish.Publisher
	scheduler *reminder.Scheduler
}

// NewSidecarProcessor wires a processor over the given publisher and
// scheduler.
func NewSidecarProcessor(publisher *publish.Publisher, scheduler *reminder.Scheduler) *SidecarProcessor {
	return &SidecarProcessor{publisher: publisher, scheduler: scheduler}
}

// Process implements Processor.
func (p *SidecarProcessor) Process(ctx context.Context, intent Intent) error {
	switch intent.Kind {
	case KindPublish:
		_, err := p.publisher.Publish(ctx, intent.Topic, intent.EventType, intent.UserID, intent.Payload, "")
		return err
	case KindScheduleReminder:
		if intent.FireTime == nil {
			return fmt.Errorf("schedule intent %s has no fire time", intent.ID)
		}
		return p.scheduler.Schedule(ctx, intent.TaskID, *intent.FireTime, intent.Callback)
	case KindCancelReminder:
		return p.scheduler.Cancel(ctx, intent.TaskID)
	default:
		return fmt.Errorf("unknown intent kind %q", intent.Kind)
	}
}
