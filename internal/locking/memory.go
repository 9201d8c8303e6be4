package locking

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/support-desk/internal/domain"
)

// memoryManager implements Manager with a process-local map. It backs
// tests and single-instance deployments without Redis.
type memoryManager struct {
	mu    sync.Mutex
	ttl   time.Duration
	locks map[int64]*domain.AssignmentLock
	now   func() time.Time
}

// NewMemoryManager builds an in-process lock manager.
func NewMemoryManager(ttl time.Duration) Manager {
	return newMemoryManager(ttl, time.Now)
}

func newMemoryManager(ttl time.Duration, now func() time.Time) *memoryManager {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &memoryManager{
		ttl:   ttl,
		locks: make(map[int64]*domain.AssignmentLock),
		now:   now,
	}
}

func (m *memoryManager) Acquire(ctx context.Context, ticketID int64, actorID int64, role domain.Role) (*domain.AssignmentLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if existing, ok := m.locks[ticketID]; ok && !existing.Expired(now) && !existing.HeldBy(actorID) {
		return nil, &ConflictError{
			TicketID:   ticketID,
			HolderID:   existing.HolderID,
			HolderRole: existing.HolderRole,
		}
	}

	lock := &domain.AssignmentLock{
		TicketID:   ticketID,
		HolderID:   actorID,
		HolderRole: role,
		AcquiredAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	m.locks[ticketID] = lock
	return lock, nil
}

func (m *memoryManager) Release(ctx context.Context, ticketID int64, actorID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.locks[ticketID]; ok && existing.HeldBy(actorID) {
		delete(m.locks, ticketID)
	}
	return nil
}

func (m *memoryManager) Override(ctx context.Context, ticketID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locks, ticketID)
	return nil
}
