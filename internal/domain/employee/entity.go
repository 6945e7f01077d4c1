package employee

import "time"

type Employee struct {
	ID        string
	FirstName string
	LastName  string

	// DeviceUserID is the identifier enrolled on the terminals for this
	// employee. Terminals report punches against this id, not ours.
	DeviceUserID string

	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e Employee) FullName() string {
	return e.FirstName + " " + e.LastName
}
