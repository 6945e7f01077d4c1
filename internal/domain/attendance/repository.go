package attendance

import (
	"context"
	"time"
)

// AttendanceRepository defines data access methods for attendance records.
// The sync path only creates and closes records; it never deletes.
type AttendanceRepository interface {
	// Create creates a new attendance record
	Create(ctx context.Context, att Attendance) (Attendance, error)

	// Close sets the checkout timestamp on a record. Closing an already
	// closed record overwrites the checkout (used to extend a session
	// under the first-last pairing policy).
	Close(ctx context.Context, id string, checkout time.Time) error

	// GetOpenRecord retrieves the open (checkout-null) record for an
	// employee on a calendar day, nil when none exists. At most one such
	// record may exist per employee and day.
	GetOpenRecord(ctx context.Context, employeeID string, day time.Time) (*Attendance, error)

	// GetLastRecord retrieves the most recent record for an employee on a
	// calendar day regardless of open state, nil when the day is empty.
	GetLastRecord(ctx context.Context, employeeID string, day time.Time) (*Attendance, error)

	// HasRecordNear reports whether any record for the employee and device
	// has a check-in or checkout within the window around ts. This is the
	// dedup check the reconciliation idempotence guarantee rests on.
	HasRecordNear(ctx context.Context, employeeID, deviceID string, ts time.Time, window time.Duration) (bool, error)

	// ListByDevice retrieves the most recent records originating from a
	// device, newest first.
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]Attendance, error)
}
