package response

import (
	"errors"
	"net/http"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/attendance"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/terminal"
	syncService "github.com/cmlabs-hris/device-sync-go/internal/service/sync"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	switch {
	// Registry errors
	case errors.Is(err, device.ErrDeviceNotFound):
		NotFound(w, "Device not found")
	case errors.Is(err, device.ErrSerialIDExists):
		Conflict(w, "Device serial id already registered")
	case errors.Is(err, device.ErrIPExists):
		Conflict(w, "Device IP already registered")
	case errors.Is(err, device.ErrSessionStillOpen):
		Conflict(w, "Device has a sync in progress")
	case errors.Is(err, device.ErrDeviceInactive):
		BadRequest(w, "Device is inactive", nil)
	case errors.Is(err, device.ErrProbeFailed):
		ServiceUnavailable(w, err.Error())
	case errors.Is(err, device.ErrInvalidIP),
		errors.Is(err, device.ErrInvalidPort),
		errors.Is(err, device.ErrInvalidInterval),
		errors.Is(err, device.ErrNameRequired),
		errors.Is(err, device.ErrSerialIDRequired):
		BadRequest(w, err.Error(), nil)

	// Sync errors
	case errors.Is(err, syncService.ErrSyncInFlight):
		Conflict(w, "A sync for this device is already running")

	// Terminal errors
	case errors.Is(err, terminal.ErrBusy):
		Conflict(w, "Device session is busy")
	case errors.Is(err, terminal.ErrUnreachable):
		ServiceUnavailable(w, "Device is unreachable")
	case errors.Is(err, terminal.ErrTimeout):
		GatewayTimeout(w, "Device did not respond in time")
	case errors.Is(err, terminal.ErrProtocol):
		ServiceUnavailable(w, "Device answered with an unexpected protocol response")

	// Attendance errors
	case errors.Is(err, attendance.ErrRecordNotFound):
		NotFound(w, "Attendance record not found")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
