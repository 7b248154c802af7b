package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when the lock could not be taken within the
// configured bounded wait.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes work per key. All mutating reconciliation commands for
// one invoice run under the same key, which is what makes client-side
// double-submit guards cosmetic rather than load-bearing.
type Locker interface {
	// WithLock runs fn while holding an exclusive lock on key. Acquisition
	// is bounded; ErrNotAcquired is returned instead of blocking forever.
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Options bounds lock acquisition and holding time.
type Options struct {
	// Expiry is how long the lock is held before auto-expiring.
	Expiry time.Duration
	// Tries is the number of acquisition attempts before giving up.
	Tries int
	// RetryDelay is the delay between attempts.
	RetryDelay time.Duration
}

// DefaultOptions waits roughly three seconds before failing fast.
func DefaultOptions() Options {
	return Options{
		Expiry:     10 * time.Second,
		Tries:      6,
		RetryDelay: 500 * time.Millisecond,
	}
}

type redisLocker struct {
	rs   *redsync.Redsync
	opts Options
}

// NewRedisLocker builds a distributed locker over redsync, so the
// single-writer-per-invoice guarantee holds across service instances.
func NewRedisLocker(client *redis.Client, opts Options) Locker {
	pool := goredis.NewPool(client)
	return &redisLocker{
		rs:   redsync.New(pool),
		opts: opts,
	}
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		return ErrNotAcquired
	}
	defer mutex.UnlockContext(ctx)

	return fn(ctx)
}

// memoryLocker serializes per key within one process. Used in tests and
// single-instance deployments.
type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewMemoryLocker() Locker {
	return &memoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memoryLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()

	return fn(ctx)
}
