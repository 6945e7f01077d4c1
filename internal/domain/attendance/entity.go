package attendance

import (
	"time"
)

// Method is how a punch was captured on the terminal.
type Method string

const (
	MethodFingerprint Method = "fingerprint"
	MethodCard        Method = "card"
	MethodPassword    Method = "password"
	MethodManual      Method = "manual"
)

func (m Method) Valid() bool {
	switch m {
	case MethodFingerprint, MethodCard, MethodPassword, MethodManual:
		return true
	}
	return false
}

// Status is the derived attendance status. The sync path only ever writes
// StatusPresent; late/absent marking belongs to the scheduling services.
type Status string

const (
	StatusPresent    Status = "present"
	StatusAbsent     Status = "absent"
	StatusLate       Status = "late"
	StatusEarlyLeave Status = "early_leave"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPresent, StatusAbsent, StatusLate, StatusEarlyLeave:
		return true
	}
	return false
}

type Attendance struct {
	ID         string
	EmployeeID string

	// Date is the calendar day the record belongs to, truncated to
	// midnight in the punch's local zone.
	Date     time.Time
	CheckIn  time.Time
	CheckOut *time.Time

	// DeviceID references the registry row of the originating terminal,
	// nil for manually entered records.
	DeviceID *string
	Method   Method
	Status   Status

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Open reports whether the record still awaits a checkout.
func (a Attendance) Open() bool {
	return a.CheckOut == nil
}
