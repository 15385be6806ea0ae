package redisclient

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (Locker, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisSlotLocker(client, 5*time.Second), client
}

func TestWithSlotLock_MutualExclusion(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	key := SlotKey(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), "10:00")

	err := locker.WithSlotLock(ctx, key, func(ctx context.Context) error {
		// A second acquisition of the same slot must fail while held.
		inner := locker.WithSlotLock(ctx, key, func(ctx context.Context) error {
			t.Fatal("critical section entered twice")
			return nil
		})
		assert.ErrorIs(t, inner, ErrLockNotAcquired)
		return nil
	})
	require.NoError(t, err)
}

func TestWithSlotLock_ReleasedAfterRun(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	key := SlotKey(time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), "10:30")

	require.NoError(t, locker.WithSlotLock(ctx, key, func(ctx context.Context) error { return nil }))

	// The lock must be reusable once the first holder returns.
	entered := false
	require.NoError(t, locker.WithSlotLock(ctx, key, func(ctx context.Context) error {
		entered = true
		return nil
	}))
	assert.True(t, entered)
}

func TestWithSlotLock_DifferentSlotsDoNotContend(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	date := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)

	err := locker.WithSlotLock(ctx, SlotKey(date, "09:00"), func(ctx context.Context) error {
		return locker.WithSlotLock(ctx, SlotKey(date, "09:30"), func(ctx context.Context) error {
			return nil
		})
	})
	require.NoError(t, err)
}

func TestSlotKey(t *testing.T) {
	date := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-12-01 10:00", SlotKey(date, "10:00"))
}
