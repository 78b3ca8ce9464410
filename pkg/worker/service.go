package worker

import (
	"context"
	"fmt"

	r "github.com/ethpandaops/medallion/pkg/redis"
	"github.com/ethpandaops/medallion/pkg/tasks"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Service defines the public interface for the worker service
type Service interface {
	// Start initializes and starts the worker service
	Start(ctx context.Context) error

	// Stop gracefully shuts down the worker service
	Stop() error
}

// service encapsulates the worker application logic
type service struct {
	config *Config
	log    logrus.FieldLogger

	runner   tasks.StageRunner
	redisOpt *redis.Options

	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewService creates a new worker service
func NewService(log logrus.FieldLogger, cfg *Config, runner tasks.StageRunner, redisOpt *redis.Options) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &service{
		log:      log.WithField("service", "worker"),
		config:   cfg,
		runner:   runner,
		redisOpt: redisOpt,
	}, nil
}

func (s *service) serveMux() *asynq.ServeMux {
	handler := tasks.NewTaskHandler(s.log, s.runner)

	mux := asynq.NewServeMux()
	for taskType, handlerFunc := range handler.Routes() {
		mux.HandleFunc(taskType, handlerFunc)
	}

	return mux
}

// Start initializes and starts the worker service
func (s *service) Start(_ context.Context) error {
	s.mux = s.serveMux()

	s.log.WithFields(logrus.Fields{
		"queue":       s.config.Queue,
		"concurrency": s.config.Concurrency,
	}).Info("Starting worker service")

	srv := asynq.NewServer(r.NewAsynqRedisOptions(s.redisOpt), asynq.Config{
		Concurrency:     s.config.Concurrency,
		Queues:          map[string]int{s.config.Queue: 1},
		ShutdownTimeout: s.config.ShutdownTimeout,
		Logger:          &asynqLogger{log: s.log},
	})

	// Unlike Run, Start does not wait for OS signals; Stop shuts it down
	if err := srv.Start(s.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}

	s.server = srv

	s.log.Info("Worker service started successfully")

	return nil
}

// Stop gracefully shuts down the worker service
func (s *service) Stop() error {
	if s.server != nil {
		s.server.Shutdown()
	}

	s.log.Info("Worker service stopped successfully")

	return nil
}

// asynqLogger routes asynq's internal logging through logrus
type asynqLogger struct {
	log logrus.FieldLogger
}

func (l *asynqLogger) Debug(args ...any) { l.log.Debug(args...) }
func (l *asynqLogger) Info(args ...any)  { l.log.Info(args...) }
func (l *asynqLogger) Warn(args ...any)  { l.log.Warn(args...) }
func (l *asynqLogger) Error(args ...any) { l.log.Error(args...) }
func (l *asynqLogger) Fatal(args ...any) { l.log.Fatal(args...) }

// Ensure service implements the interface
var _ Service = (*service)(nil)
