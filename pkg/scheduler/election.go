package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethpandaops/medallion/pkg/lock"
	r "github.com/ethpandaops/medallion/pkg/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// leaderKey is locked under "<prefix>:scheduler:lock:leader"
	leaderKey     = "leader"
	leaseTTL      = 10 * time.Second
	retryInterval = 3 * time.Second
)

// LeaderElector runs leader election over a Redis lease. Promoted and
// Demoted signal leadership changes; each holds at most one pending signal.
type LeaderElector interface {
	Start(ctx context.Context) error
	Stop() error
	IsLeader() bool
	Promoted() <-chan struct{}
	Demoted() <-chan struct{}
}

// elector holds leadership as a lock.Lease. The lease renews itself; the
// elector only retries acquisition while following and watches for loss
// while leading.
type elector struct {
	log        logrus.FieldLogger
	client     *redis.Client
	locker     lock.Locker
	instanceID string
	retry      time.Duration

	mu    sync.RWMutex
	lease lock.Lease

	done chan struct{}
	wg   sync.WaitGroup

	promoted chan struct{}
	demoted  chan struct{}
}

// NewLeaderElector creates a leader elector. Deployments with different
// prefixes elect independently on a shared Redis.
func NewLeaderElector(log logrus.FieldLogger, redisOpt *redis.Options, prefix string) LeaderElector {
	instanceID := uuid.New().String()
	client := redis.NewClient(redisOpt)
	log = log.WithFields(logrus.Fields{
		"component":   "election",
		"instance_id": instanceID,
	})

	return &elector{
		log:        log,
		client:     client,
		locker:     lock.NewRedis(log, client, r.Key(prefix, "scheduler"), leaseTTL),
		instanceID: instanceID,
		retry:      retryInterval,
		done:       make(chan struct{}),
		promoted:   make(chan struct{}, 1),
		demoted:    make(chan struct{}, 1),
	}
}

func (e *elector) Start(ctx context.Context) error {
	e.log.Info("Starting leader election")

	e.wg.Add(1)
	go e.run(ctx)

	return nil
}

func (e *elector) Stop() error {
	e.log.Info("Stopping leader election")
	close(e.done)

	e.wg.Wait()

	if lease := e.takeLease(); lease != nil {
		if err := lease.Release(context.Background()); err != nil {
			e.log.WithError(err).Warn("Failed to release leader lease")
		} else {
			e.log.Info("Relinquished leadership")
		}
	}

	if err := e.client.Close(); err != nil {
		e.log.WithError(err).Warn("Failed to close Redis client")
	}

	e.log.Info("Leader election stopped")

	return nil
}

func (e *elector) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.retry)
	defer ticker.Stop()

	for {
		var lost <-chan struct{}
		if lease := e.currentLease(); lease != nil {
			lost = lease.Lost()
		}

		select {
		case <-e.done:
			return

		case <-ctx.Done():
			return

		case <-lost:
			if lease := e.takeLease(); lease != nil {
				if err := lease.Release(ctx); err != nil {
					e.log.WithError(err).Debug("Failed to release lost leader lease")
				}
			}

			e.log.Info("Demoted from leader")
			signal(e.demoted)

		case <-ticker.C:
			if e.IsLeader() {
				continue
			}

			if e.tryAcquire(ctx) {
				e.log.Info("Promoted to leader")
				signal(e.promoted)
			}
		}
	}
}

func (e *elector) tryAcquire(ctx context.Context) bool {
	lease, err := e.locker.Acquire(ctx, leaderKey)
	if err != nil {
		if !errors.Is(err, lock.ErrLocked) {
			e.log.WithError(err).Debug("Failed to acquire leader lease")
		}

		return false
	}

	e.mu.Lock()
	e.lease = lease
	e.mu.Unlock()

	return true
}

func (e *elector) currentLease() lock.Lease {
	e.mu.RLock()
	defer e.mu.RUnlock()

	return e.lease
}

// takeLease clears and returns the held lease, if any
func (e *elector) takeLease() lock.Lease {
	e.mu.Lock()
	defer e.mu.Unlock()

	lease := e.lease
	e.lease = nil

	return lease
}

func (e *elector) IsLeader() bool {
	return e.currentLease() != nil
}

func (e *elector) Promoted() <-chan struct{} {
	return e.promoted
}

func (e *elector) Demoted() <-chan struct{} {
	return e.demoted
}

// signal delivers a non-blocking notification
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

var _ LeaderElector = (*elector)(nil)
