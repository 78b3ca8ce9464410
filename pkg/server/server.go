package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	"github.com/ethpandaops/medallion/pkg/api"
	"github.com/ethpandaops/medallion/pkg/api/handlers"
	"github.com/ethpandaops/medallion/pkg/engine"
	"github.com/ethpandaops/medallion/pkg/observability"
	"github.com/ethpandaops/medallion/pkg/pipeline"
	r "github.com/ethpandaops/medallion/pkg/redis"
	"github.com/ethpandaops/medallion/pkg/scheduler"
	"github.com/ethpandaops/medallion/pkg/tasks"
	"github.com/ethpandaops/medallion/pkg/worker"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Server represents the main application server
type Server struct {
	log    logrus.FieldLogger
	config *Config

	queue     *tasks.QueueManager
	worker    worker.Service
	scheduler scheduler.Service
	api       api.Service

	pprofServer  *http.Server
	healthServer *http.Server
}

// NewServer wires serve mode around an opened engine. The engine must use
// Redis: the queue, the scheduler lease and shared state all live there.
func NewServer(log logrus.FieldLogger, config *Config, eng *engine.Engine, runner *pipeline.Runner, prefix string) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	redisOpt := eng.RedisOptions()
	if redisOpt == nil {
		return nil, ErrRedisConfigRequired
	}

	queue := tasks.NewQueueManager(r.NewAsynqRedisOptions(redisOpt), config.Worker.Queue, config.Worker.TaskTimeout)

	s := &Server{
		log:    log,
		config: config,
		queue:  queue,
		api:    api.NewService(&config.API, handlers.NewServer(runner, eng.Ledger, eng.Catalog, queue, log), log),
	}

	if config.Worker.Enabled {
		svc, err := worker.NewService(log, &config.Worker, runner, redisOpt)
		if err != nil {
			return nil, fmt.Errorf("failed to create worker: %w", err)
		}

		s.worker = svc
	}

	if config.Scheduler.Enabled {
		svc, err := scheduler.NewService(log, &config.Scheduler, redisOpt, prefix, queue)
		if err != nil {
			return nil, fmt.Errorf("failed to create scheduler: %w", err)
		}

		s.scheduler = svc
	}

	return s, nil
}

// Start starts the server and all its components, and blocks until ctx is
// canceled or the process receives SIGINT/SIGTERM
func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	s.log.WithFields(logrus.Fields{
		"worker":    s.worker != nil,
		"scheduler": s.scheduler != nil,
		"api":       s.config.API.Enabled,
		"queue":     s.queue.Queue(),
	}).Info("Starting server")

	observability.StartMetricsServer(s.log, s.config.MetricsAddr)

	if s.config.PProfAddr != nil {
		g.Go(func() error {
			if err := s.startPProf(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})
	}

	if s.config.HealthCheckAddr != nil {
		g.Go(func() error {
			if err := s.startHealthCheck(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}

			return nil
		})
	}

	if s.worker != nil {
		if err := s.worker.Start(ctx); err != nil {
			return fmt.Errorf("failed to start worker: %w", err)
		}
	}

	if s.scheduler != nil {
		if err := s.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	if err := s.api.Start(ctx); err != nil {
		return fmt.Errorf("failed to start api: %w", err)
	}

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()

		// Use a fresh context for cleanup since the current one is canceled
		return s.stop(context.Background())
	})

	return g.Wait()
}

// stop shuts components down in reverse start order: nothing new is
// accepted or scheduled before the worker drains
func (s *Server) stop(ctx context.Context) error {
	cleanupCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	if err := s.api.Stop(); err != nil {
		s.log.WithError(err).Error("failed to stop api")
	}

	if s.scheduler != nil {
		if err := s.scheduler.Stop(); err != nil {
			s.log.WithError(err).Error("failed to stop scheduler")
		}
	}

	if s.worker != nil {
		if err := s.worker.Stop(); err != nil {
			s.log.WithError(err).Error("failed to stop worker")
		}
	}

	if err := s.queue.Close(); err != nil {
		s.log.WithError(err).Error("failed to close task queue")
	}

	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown pprof server")
		}
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown health server")
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	s.log.Info("Server stopped gracefully")

	return nil
}

func (s *Server) startPProf() error {
	s.log.WithField("addr", *s.config.PProfAddr).Info("Starting pprof server")

	s.pprofServer = &http.Server{
		Addr:              *s.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	return s.pprofServer.ListenAndServe()
}

func (s *Server) startHealthCheck() error {
	s.log.WithField("addr", *s.config.HealthCheckAddr).Info("Starting healthcheck server")

	s.healthServer = &http.Server{
		Addr:              *s.config.HealthCheckAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	s.healthServer.Handler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return s.healthServer.ListenAndServe()
}
