package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/synclog"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type syncLogRepository struct {
	db *database.DB
}

func NewSyncLogRepository(db *database.DB) synclog.SyncLogRepository {
	return &syncLogRepository{db: db}
}

// Durations are stored as integer milliseconds.
func scanSyncLog(row pgx.Row) (synclog.Entry, error) {
	var entry synclog.Entry
	var durationMs int64
	err := row.Scan(
		&entry.ID, &entry.DeviceID, &entry.Kind, &entry.RecordsSynced,
		&entry.Status, &entry.ErrorMessage, &durationMs, &entry.CreatedAt,
	)
	entry.Duration = time.Duration(durationMs) * time.Millisecond
	return entry, err
}

// Append implements synclog.SyncLogRepository.
func (r *syncLogRepository) Append(ctx context.Context, entry synclog.Entry) (synclog.Entry, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO sync_logs (
			device_id, sync_type, records_synced, sync_status, error_message, sync_duration_ms
		) VALUES (
			$1, $2, $3, $4, $5, $6
		) RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query,
		entry.DeviceID,
		entry.Kind,
		entry.RecordsSynced,
		entry.Status,
		entry.ErrorMessage,
		entry.Duration.Milliseconds(),
	).Scan(&entry.ID, &entry.CreatedAt)

	if err != nil {
		return synclog.Entry{}, fmt.Errorf("failed to append sync log: %w", err)
	}

	return entry, nil
}

// ListByDevice implements synclog.SyncLogRepository.
func (r *syncLogRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]synclog.Entry, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, device_id, sync_type, records_synced, sync_status, error_message, sync_duration_ms, created_at
		FROM sync_logs
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := q.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sync logs: %w", err)
	}
	defer rows.Close()

	var entries []synclog.Entry
	for rows.Next() {
		entry, err := scanSyncLog(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan sync log: %w", err)
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}

// LastByDevice implements synclog.SyncLogRepository.
func (r *syncLogRepository) LastByDevice(ctx context.Context, deviceID string) (*synclog.Entry, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, device_id, sync_type, records_synced, sync_status, error_message, sync_duration_ms, created_at
		FROM sync_logs
		WHERE device_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`

	entry, err := scanSyncLog(q.QueryRow(ctx, query, deviceID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last sync log: %w", err)
	}

	return &entry, nil
}
