package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ethpandaops/medallion/pkg/tasks"
)

// tickerService manages periodic checking of scheduled tasks
type tickerService interface {
	// Start begins the ticker loop (should only run on leader)
	// Blocks until context is canceled or Stop is called
	Start(ctx context.Context) error

	// Stop gracefully shuts down the ticker
	Stop() error
}

type tickerServiceImpl struct {
	log     logrus.FieldLogger
	tracker scheduleTracker
	tasks   []scheduledTask
	tick    time.Duration
	now     func() time.Time
	done    chan struct{}
}

// scheduledTask is something enqueued whenever its schedule fires
type scheduledTask struct {
	ID       string
	Schedule cron.Schedule
	Enqueue  func(ctx context.Context) error
}

// parseSchedule parses a five-field cron expression or a descriptor such as
// "@daily" or "@every 1h"
func parseSchedule(schedule string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

	sched, err := parser.Parse(schedule)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidSchedule, schedule, err)
	}

	return sched, nil
}

func newTickerService(log logrus.FieldLogger, tracker scheduleTracker, scheduled []scheduledTask) *tickerServiceImpl {
	return &tickerServiceImpl{
		log:     log.WithField("component", "ticker"),
		tracker: tracker,
		tasks:   scheduled,
		tick:    time.Second,
		now:     func() time.Time { return time.Now().UTC() },
		done:    make(chan struct{}),
	}
}

func (t *tickerServiceImpl) Start(ctx context.Context) error {
	t.log.WithField("tasks", len(t.tasks)).Info("Starting ticker service")

	t.pruneTracked(ctx)

	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Info("Ticker context canceled, stopping")
			return ctx.Err()
		case <-t.done:
			t.log.Info("Ticker stopped via Stop()")
			return nil
		case <-ticker.C:
			t.checkSchedules(ctx)
		}
	}
}

// checkSchedules enqueues every task whose next fire time after its last run
// has passed. A task never run before is seeded with the current time, so it
// first fires on its next scheduled time rather than at startup.
func (t *tickerServiceImpl) checkSchedules(ctx context.Context) {
	now := t.now()

	for _, task := range t.tasks {
		log := t.log.WithField("task_id", task.ID)

		lastRun, err := t.tracker.GetLastRun(ctx, task.ID)
		if err != nil {
			log.WithError(err).Warn("Failed to get last run, will retry next tick")

			continue
		}

		if lastRun.IsZero() {
			if err := t.tracker.SetLastRun(ctx, task.ID, now); err != nil {
				log.WithError(err).Warn("Failed to seed last run")
			}

			continue
		}

		if now.Before(task.Schedule.Next(lastRun)) {
			continue
		}

		if err := task.Enqueue(ctx); err != nil {
			if !errors.Is(err, tasks.ErrAlreadyQueued) {
				log.WithError(err).Error("Failed to enqueue task")

				continue
			}

			log.Debug("Task already queued, skipping")
		} else {
			log.Info("Enqueued scheduled task")
		}

		if err := t.tracker.SetLastRun(ctx, task.ID, now); err != nil {
			log.WithError(err).Error("Failed to update last run timestamp")
		}
	}
}

// pruneTracked drops last runs of tasks that are no longer scheduled, so a
// task scheduled again later starts from a fresh seed
func (t *tickerServiceImpl) pruneTracked(ctx context.Context) {
	ids := make([]string, 0, len(t.tasks))
	for _, task := range t.tasks {
		ids = append(ids, task.ID)
	}

	stale, err := t.tracker.Prune(ctx, ids)
	if err != nil {
		t.log.WithError(err).Warn("Failed to prune tracked tasks")
		return
	}

	if len(stale) > 0 {
		t.log.WithField("tasks", stale).Info("Pruned tasks no longer scheduled")
	}
}

func (t *tickerServiceImpl) Stop() error {
	t.log.Info("Stopping ticker service")

	close(t.done)

	return nil
}

// Verify interface compliance at compile time
var _ tickerService = (*tickerServiceImpl)(nil)
