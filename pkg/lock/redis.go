package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultTTL bounds how long a crashed writer keeps a table locked
	DefaultTTL = 30 * time.Second
)

//nolint:gochecknoglobals // Scripts are loaded once and cached by SHA
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Redis hands out leases with SET NX and a random token. Held leases are
// renewed every TTL/3 and released with a compare-and-delete.
type Redis struct {
	log    logrus.FieldLogger
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedis creates a Redis locker. Keys are stored under <prefix>:lock:<key>.
func NewRedis(log logrus.FieldLogger, client *redis.Client, prefix string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Redis{
		log:    log.WithField("component", "lock"),
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Acquire implements Locker
func (r *Redis) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.New().String()
	redisKey := r.prefix + ":lock:" + key

	ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLocked, key)
	}

	lease := &redisLease{
		log:      r.log.WithField("key", key),
		client:   r.client,
		key:      key,
		redisKey: redisKey,
		token:    token,
		ttl:      r.ttl,
		done:     make(chan struct{}),
		lost:     make(chan struct{}),
	}

	lease.wg.Add(1)

	go lease.renew()

	r.log.WithField("key", key).Debug("Acquired lock")

	return lease, nil
}

type redisLease struct {
	log      logrus.FieldLogger
	client   *redis.Client
	key      string
	redisKey string
	token    string
	ttl      time.Duration

	done chan struct{}
	lost chan struct{}
	wg   sync.WaitGroup
	once sync.Once
}

func (l *redisLease) Key() string {
	return l.key
}

func (l *redisLease) Lost() <-chan struct{} {
	return l.lost
}

// renew extends the lease every TTL/3. The lease counts as lost once the key
// holds another token, or when renewals kept failing for a whole TTL.
func (l *redisLease) renew() {
	defer l.wg.Done()

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()

	renewed := time.Now()

	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			n, err := renewScript.Run(context.Background(), l.client, []string{l.redisKey}, l.token, l.ttl.Milliseconds()).Int()
			if err != nil {
				if time.Since(renewed) < l.ttl {
					l.log.WithError(err).Warn("Failed to renew lock")
					continue
				}

				l.log.WithError(err).Warn("Lock expired while renewals failed")
				close(l.lost)

				return
			}

			if n == 0 {
				l.log.Warn("Lock lost before release")
				close(l.lost)

				return
			}

			renewed = time.Now()
		}
	}
}

func (l *redisLease) Release(ctx context.Context) error {
	var err error

	l.once.Do(func() {
		close(l.done)
		l.wg.Wait()

		err = releaseScript.Run(ctx, l.client, []string{l.redisKey}, l.token).Err()
		if err != nil {
			err = fmt.Errorf("failed to release lock %s: %w", l.key, err)
			return
		}

		l.log.Debug("Released lock")
	})

	return err
}
