package employee

import "context"

// EmployeeRepository is the lookup surface the sync engine needs; full
// employee CRUD lives in the HR backend.
type EmployeeRepository interface {
	// GetByDeviceUserID maps a terminal-local user id to an employee,
	// nil when no employee is enrolled under that id.
	GetByDeviceUserID(ctx context.Context, deviceUserID string) (*Employee, error)

	// ListActive retrieves active employees, used when pushing the user
	// table to a terminal.
	ListActive(ctx context.Context) ([]Employee, error)
}
