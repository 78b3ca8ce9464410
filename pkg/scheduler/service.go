package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethpandaops/medallion/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// PipelineTaskID is the tracker ID of the scheduled pipeline run
const PipelineTaskID = "pipeline"

// Service defines the public interface for the scheduler
type Service interface {
	// Start joins leader election; the leader runs the ticker
	Start(ctx context.Context) error

	// Stop gracefully shuts down the scheduler service
	Stop() error
}

// PipelineEnqueuer is the part of the task queue the scheduler needs
type PipelineEnqueuer interface {
	EnqueuePipeline(payload tasks.PipelinePayload, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type service struct {
	log logrus.FieldLogger
	cfg *Config

	done chan struct{}
	wg   sync.WaitGroup

	queue    PipelineEnqueuer
	elector  LeaderElector
	tracker  scheduleTracker
	schedule []scheduledTask

	mu     sync.Mutex
	ticker tickerService
}

// NewService creates a new scheduler service. Keys live under prefix.
func NewService(log logrus.FieldLogger, cfg *Config, redisOpt *redis.Options, prefix string, queue PipelineEnqueuer) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sched, err := parseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}

	s := &service{
		log:     log.WithField("service", "scheduler"),
		cfg:     cfg,
		done:    make(chan struct{}),
		queue:   queue,
		elector: NewLeaderElector(log, redisOpt, prefix),
		tracker: newScheduleTracker(log, redis.NewClient(redisOpt), prefix),
	}

	s.schedule = []scheduledTask{{
		ID:       PipelineTaskID,
		Schedule: sched,
		Enqueue:  s.enqueuePipeline,
	}}

	return s, nil
}

func (s *service) enqueuePipeline(_ context.Context) error {
	info, err := s.queue.EnqueuePipeline(tasks.PipelinePayload{
		Targets:    s.cfg.Targets,
		Trigger:    tasks.TriggerSchedule,
		EnqueuedAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	s.log.WithField("task_id", info.ID).Debug("Scheduled pipeline run enqueued")

	return nil
}

// Start joins leader election and waits for promotion in the background
func (s *service) Start(ctx context.Context) error {
	if err := s.elector.Start(ctx); err != nil {
		return fmt.Errorf("failed to start leader election: %w", err)
	}

	s.wg.Add(1)
	go s.handleLeaderElection(ctx)

	s.log.WithField("schedule", s.cfg.Schedule).Info("Scheduler service started (participating in leader election)")

	return nil
}

// Stop gracefully shuts down the scheduler service
func (s *service) Stop() error {
	close(s.done)

	if err := s.elector.Stop(); err != nil {
		s.log.WithError(err).Warn("Failed to stop leader elector")
	}

	s.stopTicker()

	s.wg.Wait()

	if err := s.tracker.Close(); err != nil {
		s.log.WithError(err).Warn("Failed to close schedule tracker")
	}

	s.log.Info("Scheduler service stopped successfully")

	return nil
}

// handleLeaderElection runs the ticker while this instance leads
func (s *service) handleLeaderElection(ctx context.Context) {
	defer s.wg.Done()

	promoted := s.elector.Promoted()
	demoted := s.elector.Demoted()

	for {
		select {
		case <-s.done:
			return

		case <-ctx.Done():
			return

		case <-promoted:
			s.log.Info("Promoted to scheduler leader - starting ticker")
			s.startTicker(ctx)

		case <-demoted:
			s.log.Info("Demoted from scheduler leader - stopping ticker")
			s.stopTicker()
		}
	}
}

func (s *service) startTicker(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	select {
	case <-s.done:
		return
	default:
	}

	if s.ticker != nil {
		s.log.Warn("Received promotion but ticker already running")
		return
	}

	ticker := newTickerService(s.log, s.tracker, s.schedule)
	s.ticker = ticker

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := ticker.Start(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Error("Ticker stopped with error")
		}
	}()
}

func (s *service) stopTicker() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}

	if err := s.ticker.Stop(); err != nil {
		s.log.WithError(err).Warn("Failed to stop ticker")
	}

	s.ticker = nil
}

// Ensure service implements the interface
var _ Service = (*service)(nil)
