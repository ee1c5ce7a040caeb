package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMutex(t *testing.T) (*Mutex, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewMutex(client), mr
}

func TestMutexAcquireRelease(t *testing.T) {
	m, _ := newTestMutex(t)
	ctx := context.Background()
	key := LorryLockKey(42)

	release, err := m.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)

	// Second acquire on the same key must fail while held.
	_, err = m.Acquire(ctx, key, time.Minute)
	require.ErrorIs(t, err, ErrLockHeld)

	release()

	// After release the lock is free again.
	release2, err := m.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	release2()
}

func TestMutexIndependentKeys(t *testing.T) {
	m, _ := newTestMutex(t)
	ctx := context.Background()

	r1, err := m.Acquire(ctx, LorryLockKey(1), time.Minute)
	require.NoError(t, err)
	defer r1()

	// Locking lorry 1 must not block lorry 2.
	r2, err := m.Acquire(ctx, LorryLockKey(2), time.Minute)
	require.NoError(t, err)
	defer r2()
}

func TestMutexExpiry(t *testing.T) {
	m, mr := newTestMutex(t)
	ctx := context.Background()
	key := LorryLockKey(7)

	_, err := m.Acquire(ctx, key, time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	release, err := m.Acquire(ctx, key, time.Minute)
	require.NoError(t, err)
	release()
}

func TestNilMutexIsNoop(t *testing.T) {
	var m *Mutex
	release, err := m.Acquire(context.Background(), LorryLockKey(1), time.Minute)
	assert.NoError(t, err)
	release()
}
