package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"trend-stack/shared/config"
)

func newRedisLocker(t *testing.T, ttl time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewRedis(rdb, ttl), mr
}

func TestRedisLockerExclusive(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t, time.Minute)

	release, err := locker.Acquire(ctx, "collect")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !mr.Exists("trend-stack:lock:collect") {
		t.Error("lock key was not written")
	}

	if _, err := locker.Acquire(ctx, "collect"); !errors.Is(err, ErrLocked) {
		t.Errorf("second Acquire() error = %v, want ErrLocked", err)
	}

	// Other stages are independent.
	other, err := locker.Acquire(ctx, "score")
	if err != nil {
		t.Fatalf("Acquire(score) error = %v", err)
	}
	defer other(ctx)

	if err := release(ctx); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if err := release(ctx); err != nil {
		t.Errorf("second release() error = %v", err)
	}

	again, err := locker.Acquire(ctx, "collect")
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	again(ctx)
}

func TestRedisLockerExpiredLockNotStolen(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t, time.Second)

	release, err := locker.Acquire(ctx, "aggregate")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	mr.FastForward(2 * time.Second)

	newOwner, err := locker.Acquire(ctx, "aggregate")
	if err != nil {
		t.Fatalf("Acquire() after expiry error = %v", err)
	}
	defer newOwner(ctx)

	// The stale holder must not delete the new owner's lock.
	if err := release(ctx); err != nil {
		t.Fatalf("stale release() error = %v", err)
	}
	if !mr.Exists("trend-stack:lock:aggregate") {
		t.Error("stale release removed the new owner's lock")
	}
}

func TestRedisLockerRefreshesWhileHeld(t *testing.T) {
	ctx := context.Background()
	locker, mr := newRedisLocker(t, time.Minute)
	locker.refresh = 20 * time.Millisecond

	release, err := locker.Acquire(ctx, "collect")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	const key = "trend-stack:lock:collect"

	// Pretend the stage has run for most of the TTL.
	mr.SetTTL(key, time.Second)

	deadline := time.Now().Add(2 * time.Second)
	for mr.TTL(key) != time.Minute {
		if time.Now().After(deadline) {
			t.Fatalf("lock TTL = %v, want it refreshed to %v", mr.TTL(key), time.Minute)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := release(ctx); err != nil {
		t.Fatalf("release() error = %v", err)
	}
	if mr.Exists(key) {
		t.Error("lock key still present after release")
	}

	// A later holder's key is not touched by the released lock.
	if err := mr.Set(key, "someone-else"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	mr.SetTTL(key, time.Second)
	time.Sleep(100 * time.Millisecond)
	if got := mr.TTL(key); got != time.Second {
		t.Errorf("other holder's TTL = %v, want %v", got, time.Second)
	}
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	locker := NewLocal()

	release, err := locker.Acquire(ctx, "collect")
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if _, err := locker.Acquire(ctx, "collect"); !errors.Is(err, ErrLocked) {
		t.Errorf("second Acquire() error = %v, want ErrLocked", err)
	}
	release(ctx)
	if _, err := locker.Acquire(ctx, "collect"); err != nil {
		t.Errorf("Acquire() after release error = %v", err)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	ctx := context.Background()

	local, err := New(ctx, config.RedisConfig{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := local.(*LocalLocker); !ok {
		t.Errorf("New() without address = %T, want *LocalLocker", local)
	}

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	remote, err := New(ctx, config.RedisConfig{Address: mr.Addr(), LockTTL: time.Minute})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer remote.Close()
	if _, ok := remote.(*RedisLocker); !ok {
		t.Errorf("New() with address = %T, want *RedisLocker", remote)
	}
}
