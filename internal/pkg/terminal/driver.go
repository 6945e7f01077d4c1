package terminal

import (
	"context"
	"time"
)

// PunchHint is the direction flag a terminal attaches to a punch. It is a
// hint only; pairing decisions are driven by persisted attendance state.
type PunchHint int8

const (
	HintCheckOut PunchHint = 0
	HintCheckIn  PunchHint = 1
	HintUnknown  PunchHint = -1
)

// VerifyMode is how the terminal verified the person.
type VerifyMode string

const (
	VerifyFingerprint VerifyMode = "fingerprint"
	VerifyCard        VerifyMode = "card"
	VerifyPassword    VerifyMode = "password"
)

// RawPunch is a single scan event as reported by a terminal. Ephemeral;
// it lives only inside one reconciliation pass.
type RawPunch struct {
	DeviceUserID string
	Timestamp    time.Time
	Hint         PunchHint
	Verify       VerifyMode
}

// User is an entry of a terminal's local user table.
type User struct {
	DeviceUserID string
	Name         string
	Card         string
}

// Info is a snapshot of a terminal's identity and counters.
type Info struct {
	SerialNumber    string
	FirmwareVersion string
	Platform        string
	UserCount       int
	RecordCount     int
}

// Driver is the vendor SDK surface for one terminal session. The wire
// protocol behind it is supplied by the vendor adapter; this package only
// manages sessions on top of it.
type Driver interface {
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error

	// Attendance returns punches recorded at or after since.
	Attendance(ctx context.Context, since time.Time) ([]RawPunch, error)

	Users(ctx context.Context) ([]User, error)
	SetUser(ctx context.Context, u User) error
	ClearAttendance(ctx context.Context) error
	Restart(ctx context.Context) error
	Info(ctx context.Context) (Info, error)
}

// DriverFactory builds a driver for a terminal address. timeout bounds
// each driver call.
type DriverFactory func(addr string, timeout time.Duration) Driver
