// Package lock provides per-stage run locks so that the same stage never runs
// twice at once, either inside one process or across processes sharing Redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"trend-stack/shared/config"
	"trend-stack/shared/logging"
)

// ErrLocked is returned when another holder owns the lock.
var ErrLocked = errors.New("lock already held")

// Release gives a lock back. Releasing twice is a no-op.
type Release func(ctx context.Context) error

// Locker hands out named, non-blocking locks.
type Locker interface {
	Acquire(ctx context.Context, name string) (Release, error)
	Close() error
}

// New returns a Redis-backed locker when an address is configured and an
// in-process locker otherwise.
func New(ctx context.Context, cfg config.RedisConfig) (Locker, error) {
	if cfg.Address == "" {
		return NewLocal(), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Address, err)
	}
	return NewRedis(rdb, cfg.LockTTL), nil
}

// Only delete the key if it still holds our token; an expired lock may have
// been taken over by someone else.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Extend the TTL only while the key still holds our token.
var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// RedisLocker implements Locker with SET NX PX and a token check on release.
// A held lock is refreshed every ttl/3 until it is released, so long stages
// keep it past the initial TTL.
type RedisLocker struct {
	rdb     *redis.Client
	ttl     time.Duration
	refresh time.Duration
	prefix  string
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisLocker{rdb: rdb, ttl: ttl, refresh: max(ttl/3, time.Millisecond), prefix: "trend-stack:lock:"}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (Release, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.rdb.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrLocked)
	}

	refreshCtx, stopRefresh := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		l.keepAlive(refreshCtx, key, token)
	}()

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			stopRefresh()
			<-done
			err = unlockScript.Run(ctx, l.rdb, []string{key}, token).Err()
		})
		if err != nil {
			return fmt.Errorf("failed to release lock %s: %w", name, err)
		}
		return nil
	}, nil
}

// keepAlive extends the lock until ctx is cancelled or the lock is lost.
func (l *RedisLocker) keepAlive(ctx context.Context, key, token string) {
	ticker := time.NewTicker(l.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := refreshScript.Run(ctx, l.rdb, []string{key}, token, l.ttl.Milliseconds()).Int()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logging.Warn().Err(err).Str("lock", key).Msg("Failed to refresh lock")
				continue
			}
			if n == 0 {
				logging.Warn().Str("lock", key).Msg("Lock lost before release")
				return
			}
		}
	}
}

func (l *RedisLocker) Close() error {
	return l.rdb.Close()
}

// LocalLocker implements Locker for a single process.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocal() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, name string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.held[name]; ok {
		return nil, fmt.Errorf("%s: %w", name, ErrLocked)
	}
	l.held[name] = struct{}{}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
		return nil
	}, nil
}

func (l *LocalLocker) Close() error { return nil }
