package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bsm/redislock"
)

type fakeObtainer struct {
	err  error
	keys []string
	ttls []time.Duration
}

func (f *fakeObtainer) Obtain(_ context.Context, key string, ttl time.Duration, _ *redislock.Options) (*redislock.Lock, error) {
	f.keys = append(f.keys, key)
	f.ttls = append(f.ttls, ttl)
	return nil, f.err
}

func TestRedisLockNotObtainedIsNotAnError(t *testing.T) {
	client := &fakeObtainer{err: redislock.ErrNotObtained}
	lock, err := NewRedisLock(client, "goodsin:lock:cron", 0)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	ok, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if ok {
		t.Fatal("expected lock to be held elsewhere")
	}
	if client.ttls[0] != defaultLockTTL {
		t.Fatalf("expected default ttl, got %s", client.ttls[0])
	}
	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release without ownership: %v", err)
	}
}

func TestRedisLockPropagatesRedisErrors(t *testing.T) {
	lock, err := NewRedisLock(&fakeObtainer{err: errors.New("connection refused")}, "k", time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLock: %v", err)
	}
	if _, err := lock.Acquire(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewRedisLockValidates(t *testing.T) {
	if _, err := NewRedisLock(nil, "k", time.Minute); err == nil {
		t.Fatal("expected error for nil client")
	}
	if _, err := NewRedisLock(&fakeObtainer{}, "", time.Minute); err == nil {
		t.Fatal("expected error for empty key")
	}
}
