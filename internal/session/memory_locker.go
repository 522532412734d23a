package session

import (
	"context"
	"sync"
	"time"

	"github.com/jun/notabl/backend/internal/model"
)

// MemoryLocker implements Locker using an in-memory map (tests, local server).
type MemoryLocker struct {
	locks       map[string]*model.ProcessingLock
	mu          sync.Mutex
	ttlDuration time.Duration
	now         func() time.Time
}

// NewMemoryLocker creates a new MemoryLocker with the default TTL.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks:       make(map[string]*model.ProcessingLock),
		ttlDuration: DefaultTTL,
		now:         time.Now,
	}
}

func (m *MemoryLocker) expiry() int64 {
	return m.now().Unix() + int64(m.ttlDuration.Seconds())
}

func (m *MemoryLocker) AcquireLock(_ context.Context, userID, jobID string) (*model.ProcessingLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.locks[userID]; ok {
		// Allow if expired or same job
		if existing.ExpiresAt > m.now().Unix() && existing.JobID != jobID {
			return nil, ErrLocked
		}
	}

	lock := &model.ProcessingLock{
		UserID:    userID,
		JobID:     jobID,
		ExpiresAt: m.expiry(),
	}
	m.locks[userID] = lock
	copied := *lock
	return &copied, nil
}

func (m *MemoryLocker) Heartbeat(_ context.Context, userID, jobID string) (*model.ProcessingLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[userID]
	if !ok || existing.JobID != jobID {
		return nil, ErrNotOwner
	}
	existing.ExpiresAt = m.expiry()
	copied := *existing
	return &copied, nil
}

func (m *MemoryLocker) ReleaseLock(_ context.Context, userID, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[userID]
	if !ok || existing.JobID != jobID {
		return ErrNotOwner
	}
	delete(m.locks, userID)
	return nil
}

func (m *MemoryLocker) GetLockStatus(_ context.Context, userID string) (*model.ProcessingLock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.locks[userID]
	if !ok || existing.ExpiresAt < m.now().Unix() {
		return nil, nil
	}
	copied := *existing
	return &copied, nil
}
