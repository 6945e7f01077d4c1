package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/device-sync-go/internal/handler/http/response"
	deviceService "github.com/cmlabs-hris/device-sync-go/internal/service/device"
	"github.com/go-chi/chi/v5"
)

type DeviceHandler interface {
	Register(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Update(w http.ResponseWriter, r *http.Request)
	Delete(w http.ResponseWriter, r *http.Request)
	Health(w http.ResponseWriter, r *http.Request)
	Dashboard(w http.ResponseWriter, r *http.Request)
	SyncHistory(w http.ResponseWriter, r *http.Request)
	RecentAttendance(w http.ResponseWriter, r *http.Request)
	PushUsers(w http.ResponseWriter, r *http.Request)
	PullUsers(w http.ResponseWriter, r *http.Request)
	ClearLog(w http.ResponseWriter, r *http.Request)
	Restart(w http.ResponseWriter, r *http.Request)
	Info(w http.ResponseWriter, r *http.Request)
}

type deviceHandlerImpl struct {
	deviceService *deviceService.DeviceService
}

func NewDeviceHandler(svc *deviceService.DeviceService) DeviceHandler {
	return &deviceHandlerImpl{deviceService: svc}
}

// Register implements DeviceHandler.
func (h *deviceHandlerImpl) Register(w http.ResponseWriter, r *http.Request) {
	var req device.RegisterDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode register device request", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	dev, err := h.deviceService.Register(r.Context(), req)
	if err != nil {
		slog.Error("Failed to register device", "error", err)
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Device registered successfully", device.ToResponse(dev))
}

// List implements DeviceHandler.
func (h *deviceHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.deviceService.List(r.Context())
	if err != nil {
		slog.Error("Failed to list devices", "error", err)
		response.HandleError(w, err)
		return
	}

	resp := make([]device.DeviceResponse, 0, len(devices))
	for _, dev := range devices {
		resp = append(resp, device.ToResponse(dev))
	}
	response.Success(w, resp)
}

// Get implements DeviceHandler.
func (h *deviceHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	dev, err := h.deviceService.Get(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, device.ToResponse(dev))
}

// Update implements DeviceHandler.
func (h *deviceHandlerImpl) Update(w http.ResponseWriter, r *http.Request) {
	var req device.UpdateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Error("Failed to decode update device request", "error", err)
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	dev, err := h.deviceService.Update(r.Context(), chi.URLParam(r, "deviceID"), req)
	if err != nil {
		slog.Error("Failed to update device", "error", err)
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Device updated successfully", device.ToResponse(dev))
}

// Delete implements DeviceHandler.
func (h *deviceHandlerImpl) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.deviceService.Remove(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		slog.Error("Failed to delete device", "error", err)
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Device deleted successfully", nil)
}

// Health implements DeviceHandler.
func (h *deviceHandlerImpl) Health(w http.ResponseWriter, r *http.Request) {
	health, err := h.deviceService.GetDeviceHealth(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, health)
}

// Dashboard implements DeviceHandler.
func (h *deviceHandlerImpl) Dashboard(w http.ResponseWriter, r *http.Request) {
	dashboard, err := h.deviceService.HealthDashboard(r.Context())
	if err != nil {
		slog.Error("Failed to build health dashboard", "error", err)
		response.HandleError(w, err)
		return
	}
	response.Success(w, dashboard)
}

// SyncHistory implements DeviceHandler.
func (h *deviceHandlerImpl) SyncHistory(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.BadRequest(w, "Invalid limit parameter", nil)
			return
		}
		limit = parsed
	}

	entries, err := h.deviceService.SyncHistory(r.Context(), chi.URLParam(r, "deviceID"), limit)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, entries)
}

// RecentAttendance implements DeviceHandler.
func (h *deviceHandlerImpl) RecentAttendance(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.BadRequest(w, "Invalid limit parameter", nil)
			return
		}
		limit = parsed
	}

	records, err := h.deviceService.RecentAttendance(r.Context(), chi.URLParam(r, "deviceID"), limit)
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, records)
}

// PushUsers implements DeviceHandler.
func (h *deviceHandlerImpl) PushUsers(w http.ResponseWriter, r *http.Request) {
	pushed, err := h.deviceService.PushUsers(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		slog.Error("Failed to push users to device", "error", err)
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Users pushed to device", map[string]int{"pushed": pushed})
}

// PullUsers implements DeviceHandler.
func (h *deviceHandlerImpl) PullUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.deviceService.PullUsers(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		slog.Error("Failed to pull users from device", "error", err)
		response.HandleError(w, err)
		return
	}
	response.Success(w, users)
}

// ClearLog implements DeviceHandler.
func (h *deviceHandlerImpl) ClearLog(w http.ResponseWriter, r *http.Request) {
	if err := h.deviceService.ClearRemoteLog(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		slog.Error("Failed to clear device attendance log", "error", err)
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Device attendance log cleared", nil)
}

// Restart implements DeviceHandler.
func (h *deviceHandlerImpl) Restart(w http.ResponseWriter, r *http.Request) {
	if err := h.deviceService.Restart(r.Context(), chi.URLParam(r, "deviceID")); err != nil {
		slog.Error("Failed to restart device", "error", err)
		response.HandleError(w, err)
		return
	}
	response.SuccessWithMessage(w, "Device restart requested", nil)
}

// Info implements DeviceHandler.
func (h *deviceHandlerImpl) Info(w http.ResponseWriter, r *http.Request) {
	info, err := h.deviceService.Info(r.Context(), chi.URLParam(r, "deviceID"))
	if err != nil {
		response.HandleError(w, err)
		return
	}
	response.Success(w, info)
}
