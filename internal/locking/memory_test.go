package locking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-desk/internal/domain"
)

func TestMemoryManager_AcquireConflict(t *testing.T) {
	mgr := NewMemoryManager(30 * time.Second)
	ctx := context.Background()

	lock, err := mgr.Acquire(ctx, 1, 10, domain.RoleDeveloper)
	require.NoError(t, err)
	require.Equal(t, int64(10), lock.HolderID)

	_, err = mgr.Acquire(ctx, 1, 20, domain.RoleDeveloper)
	require.ErrorIs(t, err, ErrConflict)

	var conflict *ConflictError
	require.True(t, errors.As(err, &conflict))
	assert.Equal(t, int64(10), conflict.HolderID)
	assert.Equal(t, domain.RoleDeveloper, conflict.HolderRole)

	// A different ticket is unaffected.
	_, err = mgr.Acquire(ctx, 2, 20, domain.RoleDeveloper)
	require.NoError(t, err)
}

func TestMemoryManager_Reentrant(t *testing.T) {
	mgr := NewMemoryManager(30 * time.Second)
	ctx := context.Background()

	_, err := mgr.Acquire(ctx, 1, 10, domain.RoleDeveloper)
	require.NoError(t, err)

	// The same actor can re-acquire its own lock.
	lock, err := mgr.Acquire(ctx, 1, 10, domain.RoleDeveloper)
	require.NoError(t, err)
	assert.Equal(t, int64(10), lock.HolderID)
}

func TestMemoryManager_TTLExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := now
	mgr := newMemoryManager(10*time.Second, func() time.Time { return clock })
	ctx := context.Background()

	_, err := mgr.Acquire(ctx, 1, 10, domain.RoleDeveloper)
	require.NoError(t, err)

	clock = now.Add(5 * time.Second)
	_, err = mgr.Acquire(ctx, 1, 20, domain.RoleAdmin)
	require.ErrorIs(t, err, ErrConflict)

	// Past the TTL the abandoned lock no longer blocks anyone.
	clock = now.Add(11 * time.Second)
	lock, err := mgr.Acquire(ctx, 1, 20, domain.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(20), lock.HolderID)
}

func TestMemoryManager_ReleaseIdempotent(t *testing.T) {
	mgr := NewMemoryManager(30 * time.Second)
	ctx := context.Background()

	require.NoError(t, mgr.Release(ctx, 1, 10))

	_, err := mgr.Acquire(ctx, 1, 10, domain.RoleDeveloper)
	require.NoError(t, err)

	// Releasing somebody else's lock is a no-op.
	require.NoError(t, mgr.Release(ctx, 1, 20))
	_, err = mgr.Acquire(ctx, 1, 30, domain.RoleDeveloper)
	require.ErrorIs(t, err, ErrConflict)

	require.NoError(t, mgr.Release(ctx, 1, 10))
	_, err = mgr.Acquire(ctx, 1, 30, domain.RoleDeveloper)
	require.NoError(t, err)
}

func TestMemoryManager_Override(t *testing.T) {
	mgr := NewMemoryManager(30 * time.Second)
	ctx := context.Background()

	_, err := mgr.Acquire(ctx, 1, 10, domain.RoleDeveloper)
	require.NoError(t, err)

	require.NoError(t, mgr.Override(ctx, 1))

	lock, err := mgr.Acquire(ctx, 1, 20, domain.RoleProjectManager)
	require.NoError(t, err)
	assert.Equal(t, int64(20), lock.HolderID)
}

func TestMemoryManager_ConcurrentAcquire(t *testing.T) {
	mgr := NewMemoryManager(30 * time.Second)
	ctx := context.Background()

	const attempts = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	conflicts := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(actorID int64) {
			defer wg.Done()
			_, err := mgr.Acquire(ctx, 1, actorID, domain.RoleDeveloper)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				winners++
			} else if errors.Is(err, ErrConflict) {
				conflicts++
			}
		}(int64(i + 1))
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one concurrent acquire may win")
	assert.Equal(t, attempts-1, conflicts)
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	lock := &domain.AssignmentLock{ExpiresAt: now.Add(time.Second)}
	assert.False(t, IsExpired(lock, now))
	assert.True(t, IsExpired(lock, now.Add(2*time.Second)))
	assert.True(t, IsExpired(nil, now))
}
