package device

import (
	"context"
	"time"
)

// DeviceRepository defines data access methods for the device registry.
type DeviceRepository interface {
	// Create persists a new device row
	Create(ctx context.Context, dev Device) (Device, error)

	// GetByID retrieves a device by its generated id
	GetByID(ctx context.Context, id string) (Device, error)

	// GetBySerialID retrieves a device by its externally assigned serial id,
	// nil when no such device exists
	GetBySerialID(ctx context.Context, serialID string) (*Device, error)

	// GetByIP retrieves a device by network address, nil when absent
	GetByIP(ctx context.Context, ip string) (*Device, error)

	// List retrieves every registered device
	List(ctx context.Context) ([]Device, error)

	// ListActive retrieves devices with the active flag set
	ListActive(ctx context.Context) ([]Device, error)

	// Update overwrites the mutable attributes of a device
	Update(ctx context.Context, dev Device) error

	// UpdateHealth atomically sets health state, last error and, when
	// lastSync is non-nil, the last successful sync cursor. Touches only
	// the row for deviceID.
	UpdateHealth(ctx context.Context, deviceID string, health Health, lastError *string, lastSync *time.Time) error

	// Delete removes a device row
	Delete(ctx context.Context, id string) error
}
