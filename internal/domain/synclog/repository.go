package synclog

import (
	"context"
)

// SyncLogRepository defines the append-only sync history store.
type SyncLogRepository interface {
	// Append writes one entry. Entries are never updated or deleted.
	Append(ctx context.Context, entry Entry) (Entry, error)

	// ListByDevice retrieves the most recent entries for a device,
	// newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Entry, error)

	// LastByDevice retrieves the newest entry for a device, nil when the
	// device has never been synced.
	LastByDevice(ctx context.Context, deviceID string) (*Entry, error)
}
