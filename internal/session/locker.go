// Package session guards the single in-flight processing job of a user
// with an expiring lock.
package session

import (
	"context"
	"errors"

	"github.com/jun/notabl/backend/internal/model"
)

var (
	// ErrLocked is returned when another job holds the user's lock.
	ErrLocked = errors.New("processing lock is held by another job")
	// ErrNotOwner is returned when the lock is missing or owned by another job.
	ErrNotOwner = errors.New("lock not found or not owned by job")
)

// Locker defines the interface for processing lock management.
// A lock is keyed by user and owned by one job at a time.
type Locker interface {
	// AcquireLock takes the user's lock for jobID. It succeeds when no live
	// lock exists or jobID already owns it.
	AcquireLock(ctx context.Context, userID, jobID string) (*model.ProcessingLock, error)

	// Heartbeat extends the lock TTL if jobID owns the lock.
	Heartbeat(ctx context.Context, userID, jobID string) (*model.ProcessingLock, error)

	// ReleaseLock removes the lock if jobID owns it.
	ReleaseLock(ctx context.Context, userID, jobID string) error

	// GetLockStatus returns the live lock of the user, or nil.
	GetLockStatus(ctx context.Context, userID string) (*model.ProcessingLock, error)
}
