package postgresql

import (
	"context"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/employee"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/database"
	"github.com/jackc/pgx/v5"
)

type employeeRepository struct {
	db *database.DB
}

func NewEmployeeRepository(db *database.DB) employee.EmployeeRepository {
	return &employeeRepository{db: db}
}

// GetByDeviceUserID implements employee.EmployeeRepository.
func (r *employeeRepository) GetByDeviceUserID(ctx context.Context, deviceUserID string) (*employee.Employee, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, first_name, last_name, device_user_id, is_active, created_at, updated_at
		FROM employees
		WHERE device_user_id = $1
	`

	var emp employee.Employee
	err := q.QueryRow(ctx, query, deviceUserID).Scan(
		&emp.ID, &emp.FirstName, &emp.LastName, &emp.DeviceUserID,
		&emp.IsActive, &emp.CreatedAt, &emp.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get employee by device user id: %w", err)
	}

	return &emp, nil
}

// ListActive implements employee.EmployeeRepository.
func (r *employeeRepository) ListActive(ctx context.Context) ([]employee.Employee, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, first_name, last_name, device_user_id, is_active, created_at, updated_at
		FROM employees
		WHERE is_active = TRUE
		ORDER BY first_name, last_name
	`

	rows, err := q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list active employees: %w", err)
	}
	defer rows.Close()

	var employees []employee.Employee
	for rows.Next() {
		var emp employee.Employee
		if err := rows.Scan(
			&emp.ID, &emp.FirstName, &emp.LastName, &emp.DeviceUserID,
			&emp.IsActive, &emp.CreatedAt, &emp.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan employee: %w", err)
		}
		employees = append(employees, emp)
	}

	return employees, rows.Err()
}
