package adapter

import (
	"context"
)

// StorageProvider defines how to get a StorageAdapter for a specific user.
type StorageProvider interface {
	// GetAdapter returns a StorageAdapter for the given user ID.
	// The returned adapter is guaranteed to have the reserved folder.
	GetAdapter(ctx context.Context, userID string) (StorageAdapter, error)
}
