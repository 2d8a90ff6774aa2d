package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type memoryLockoutStore struct {
	counters map[string]int64
	flags    map[string]time.Duration
}

func newMemoryLockoutStore() *memoryLockoutStore {
	return &memoryLockoutStore{counters: map[string]int64{}, flags: map[string]time.Duration{}}
}

func (m *memoryLockoutStore) Increment(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.counters[key]++
	return m.counters[key], nil
}

func (m *memoryLockoutStore) SetFlag(_ context.Context, key string, ttl time.Duration) error {
	m.flags[key] = ttl
	return nil
}

func (m *memoryLockoutStore) TTL(_ context.Context, key string) (time.Duration, error) {
	return m.flags[key], nil
}

func (m *memoryLockoutStore) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(m.counters, k)
		delete(m.flags, k)
	}
	return nil
}

func TestLockoutAfterLimit(t *testing.T) {
	store := newMemoryLockoutStore()
	svc := NewLockoutService(store, 3, time.Minute, nil)
	ctx := context.Background()

	assert.False(t, svc.RegisterFailure(ctx, "Ada", "1.1.1.1"))
	assert.False(t, svc.RegisterFailure(ctx, "ada", "1.1.1.1"))
	assert.True(t, svc.RegisterFailure(ctx, "ADA", "1.1.1.1"))

	locked, ttl := svc.Locked(ctx, "ada", "1.1.1.1")
	assert.True(t, locked)
	assert.Equal(t, time.Minute, ttl)

	locked, _ = svc.Locked(ctx, "ada", "2.2.2.2")
	assert.False(t, locked, "other IPs are not affected")

	svc.Reset(ctx, "ada", "1.1.1.1")
	locked, _ = svc.Locked(ctx, "ada", "1.1.1.1")
	assert.False(t, locked)
}

func TestLockoutDisabledWithoutStore(t *testing.T) {
	svc := NewLockoutService(nil, 0, 0, nil)
	assert.False(t, svc.RegisterFailure(context.Background(), "ada", "ip"))
	locked, _ := svc.Locked(context.Background(), "ada", "ip")
	assert.False(t, locked)
	limit, coolOff := svc.Settings()
	assert.Equal(t, 5, limit)
	assert.Equal(t, 30*time.Minute, coolOff)
}
