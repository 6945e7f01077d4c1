package attendance

import "errors"

// Attendance domain errors
var (
	ErrRecordNotFound   = errors.New("attendance record not found")
	ErrCheckoutBeforeIn = errors.New("checkout must not precede check-in")
)
