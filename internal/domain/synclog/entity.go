package synclog

import "time"

// Kind is what a sync run transferred.
type Kind string

const (
	KindAttendance Kind = "attendance"
	KindUsers      Kind = "users"
	KindLogs       Kind = "logs"
)

func (k Kind) Valid() bool {
	switch k {
	case KindAttendance, KindUsers, KindLogs:
		return true
	}
	return false
}

// Status is the terminal outcome of a sync run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSuccess, StatusPartial, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

// Entry is one row of the append-only sync history. Immutable once written.
type Entry struct {
	ID            string
	DeviceID      string
	Kind          Kind
	RecordsSynced int
	Status        Status
	ErrorMessage  *string
	Duration      time.Duration
	CreatedAt     time.Time
}
