package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type deviceRepository struct {
	db *database.DB
}

func NewDeviceRepository(db *database.DB) device.DeviceRepository {
	return &deviceRepository{db: db}
}

const deviceColumns = `
	id, serial_id, device_name, device_ip, device_port, location, description,
	is_active, sync_interval, last_sync, device_status, last_error,
	created_at, updated_at
`

func scanDevice(row pgx.Row) (device.Device, error) {
	var dev device.Device
	err := row.Scan(
		&dev.ID, &dev.SerialID, &dev.Name, &dev.IP, &dev.Port, &dev.Location, &dev.Description,
		&dev.IsActive, &dev.SyncIntervalMinutes, &dev.LastSync, &dev.Health, &dev.LastError,
		&dev.CreatedAt, &dev.UpdatedAt,
	)
	return dev, err
}

// Create implements device.DeviceRepository.
func (r *deviceRepository) Create(ctx context.Context, dev device.Device) (device.Device, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO devices (
			serial_id, device_name, device_ip, device_port, location, description,
			is_active, sync_interval, device_status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		) RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		dev.SerialID,
		dev.Name,
		dev.IP,
		dev.Port,
		dev.Location,
		dev.Description,
		dev.IsActive,
		dev.SyncIntervalMinutes,
		dev.Health,
	).Scan(&dev.ID, &dev.CreatedAt, &dev.UpdatedAt)

	if err != nil {
		return device.Device{}, fmt.Errorf("failed to create device: %w", err)
	}

	return dev, nil
}

// GetByID implements device.DeviceRepository.
func (r *deviceRepository) GetByID(ctx context.Context, id string) (device.Device, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + deviceColumns + ` FROM devices WHERE id = $1`

	dev, err := scanDevice(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return device.Device{}, device.ErrDeviceNotFound
		}
		return device.Device{}, fmt.Errorf("failed to get device: %w", err)
	}

	return dev, nil
}

// GetBySerialID implements device.DeviceRepository.
func (r *deviceRepository) GetBySerialID(ctx context.Context, serialID string) (*device.Device, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + deviceColumns + ` FROM devices WHERE serial_id = $1`

	dev, err := scanDevice(q.QueryRow(ctx, query, serialID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device by serial id: %w", err)
	}

	return &dev, nil
}

// GetByIP implements device.DeviceRepository.
func (r *deviceRepository) GetByIP(ctx context.Context, ip string) (*device.Device, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + deviceColumns + ` FROM devices WHERE device_ip = $1`

	dev, err := scanDevice(q.QueryRow(ctx, query, ip))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get device by ip: %w", err)
	}

	return &dev, nil
}

// List implements device.DeviceRepository.
func (r *deviceRepository) List(ctx context.Context) ([]device.Device, error) {
	return r.list(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY device_name`)
}

// ListActive implements device.DeviceRepository.
func (r *deviceRepository) ListActive(ctx context.Context) ([]device.Device, error) {
	return r.list(ctx, `SELECT `+deviceColumns+` FROM devices WHERE is_active = TRUE ORDER BY device_name`)
}

func (r *deviceRepository) list(ctx context.Context, query string) ([]device.Device, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	defer rows.Close()

	var devices []device.Device
	for rows.Next() {
		dev, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		devices = append(devices, dev)
	}

	return devices, rows.Err()
}

// Update implements device.DeviceRepository.
func (r *deviceRepository) Update(ctx context.Context, dev device.Device) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE devices
		SET device_name = $2, device_ip = $3, device_port = $4, location = $5,
			description = $6, is_active = $7, sync_interval = $8, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query,
		dev.ID,
		dev.Name,
		dev.IP,
		dev.Port,
		dev.Location,
		dev.Description,
		dev.IsActive,
		dev.SyncIntervalMinutes,
	)
	if err != nil {
		return fmt.Errorf("failed to update device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return device.ErrDeviceNotFound
	}

	return nil
}

// UpdateHealth implements device.DeviceRepository.
func (r *deviceRepository) UpdateHealth(ctx context.Context, deviceID string, health device.Health, lastError *string, lastSync *time.Time) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE devices
		SET device_status = $2,
			last_error = $3,
			last_sync = COALESCE($4, last_sync),
			updated_at = NOW()
		WHERE id = $1
	`

	tag, err := q.Exec(ctx, query, deviceID, health, lastError, lastSync)
	if err != nil {
		return fmt.Errorf("failed to update device health: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return device.ErrDeviceNotFound
	}

	return nil
}

// Delete implements device.DeviceRepository.
func (r *deviceRepository) Delete(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete device: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return device.ErrDeviceNotFound
	}

	return nil
}
