package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/attendance"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type attendanceRepository struct {
	db *database.DB
}

func NewAttendanceRepository(db *database.DB) attendance.AttendanceRepository {
	return &attendanceRepository{db: db}
}

const attendanceColumns = `
	id, employee_id, date, check_in, check_out, device_id, method, status,
	created_at, updated_at
`

func scanAttendance(row pgx.Row) (attendance.Attendance, error) {
	var att attendance.Attendance
	err := row.Scan(
		&att.ID, &att.EmployeeID, &att.Date, &att.CheckIn, &att.CheckOut,
		&att.DeviceID, &att.Method, &att.Status,
		&att.CreatedAt, &att.UpdatedAt,
	)
	return att, err
}

// Create implements attendance.AttendanceRepository.
func (r *attendanceRepository) Create(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO attendances (
			employee_id, date, check_in, check_out, device_id, method, status
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		) RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		att.EmployeeID,
		att.Date,
		att.CheckIn,
		att.CheckOut,
		att.DeviceID,
		att.Method,
		att.Status,
	).Scan(&att.ID, &att.CreatedAt, &att.UpdatedAt)

	if err != nil {
		return attendance.Attendance{}, fmt.Errorf("failed to create attendance: %w", err)
	}

	return att, nil
}

// Close implements attendance.AttendanceRepository.
func (r *attendanceRepository) Close(ctx context.Context, id string, checkout time.Time) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE attendances
		SET check_out = $2, updated_at = NOW()
		WHERE id = $1 AND check_in <= $2
	`

	tag, err := q.Exec(ctx, query, id, checkout)
	if err != nil {
		return fmt.Errorf("failed to close attendance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// The record exists but the guard rejected it, or it is gone.
		var exists bool
		existsQuery := `SELECT EXISTS (SELECT 1 FROM attendances WHERE id = $1)`
		if err := q.QueryRow(ctx, existsQuery, id).Scan(&exists); err != nil {
			return fmt.Errorf("failed to close attendance: %w", err)
		}
		if exists {
			return attendance.ErrCheckoutBeforeIn
		}
		return attendance.ErrRecordNotFound
	}

	return nil
}

// GetOpenRecord implements attendance.AttendanceRepository.
func (r *attendanceRepository) GetOpenRecord(ctx context.Context, employeeID string, day time.Time) (*attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE employee_id = $1
		  AND date = $2
		  AND check_out IS NULL
		ORDER BY check_in DESC
		LIMIT 1
	`

	att, err := scanAttendance(q.QueryRow(ctx, query, employeeID, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open record: %w", err)
	}

	return &att, nil
}

// GetLastRecord implements attendance.AttendanceRepository.
func (r *attendanceRepository) GetLastRecord(ctx context.Context, employeeID string, day time.Time) (*attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE employee_id = $1
		  AND date = $2
		ORDER BY check_in DESC
		LIMIT 1
	`

	att, err := scanAttendance(q.QueryRow(ctx, query, employeeID, day))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get last record: %w", err)
	}

	return &att, nil
}

// HasRecordNear implements attendance.AttendanceRepository.
func (r *attendanceRepository) HasRecordNear(ctx context.Context, employeeID, deviceID string, ts time.Time, window time.Duration) (bool, error) {
	q := GetQuerier(ctx, r.db)

	lo := ts.Add(-window)
	hi := ts.Add(window)

	query := `
		SELECT EXISTS (
			SELECT 1
			FROM attendances
			WHERE employee_id = $1
			  AND device_id = $2
			  AND (
				(check_in BETWEEN $3 AND $4)
				OR (check_out IS NOT NULL AND check_out BETWEEN $3 AND $4)
			  )
		)
	`

	var exists bool
	if err := q.QueryRow(ctx, query, employeeID, deviceID, lo, hi).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check nearby records: %w", err)
	}

	return exists, nil
}

// ListByDevice implements attendance.AttendanceRepository.
func (r *attendanceRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE device_id = $1
		ORDER BY check_in DESC
		LIMIT $2
	`

	rows, err := q.Query(ctx, query, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendances by device: %w", err)
	}
	defer rows.Close()

	var records []attendance.Attendance
	for rows.Next() {
		att, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		records = append(records, att)
	}

	return records, rows.Err()
}
