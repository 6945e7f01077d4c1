package device

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/attendance"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/employee"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/synclog"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/cron"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/terminal"
	syncService "github.com/cmlabs-hris/device-sync-go/internal/service/sync"
)

// DeviceHealthResponse is the per-device health view.
type DeviceHealthResponse struct {
	Device        device.DeviceResponse `json:"device"`
	Connectivity  string                `json:"connectivity"`
	LastSync      *time.Time            `json:"last_sync"`
	RecentSyncLog []SyncLogResponse     `json:"recent_sync_log"`
}

type SyncLogResponse struct {
	ID            string         `json:"id"`
	Kind          synclog.Kind   `json:"sync_type"`
	RecordsSynced int            `json:"records_synced"`
	Status        synclog.Status `json:"sync_status"`
	ErrorMessage  *string        `json:"error_message,omitempty"`
	Duration      string         `json:"sync_duration"`
	CreatedAt     time.Time      `json:"created_at"`
}

func toSyncLogResponse(e synclog.Entry) SyncLogResponse {
	return SyncLogResponse{
		ID:            e.ID,
		Kind:          e.Kind,
		RecordsSynced: e.RecordsSynced,
		Status:        e.Status,
		ErrorMessage:  e.ErrorMessage,
		Duration:      e.Duration.String(),
		CreatedAt:     e.CreatedAt,
	}
}

// AttendanceRecordResponse is one attendance record as captured through a
// terminal, for the per-device recent activity view.
type AttendanceRecordResponse struct {
	ID         string            `json:"id"`
	EmployeeID string            `json:"employee_id"`
	Date       time.Time         `json:"date"`
	CheckIn    time.Time         `json:"check_in"`
	CheckOut   *time.Time        `json:"check_out"`
	Method     attendance.Method `json:"method"`
	Status     attendance.Status `json:"status"`
}

// DashboardResponse is the fleet health overview.
type DashboardResponse struct {
	CountsByStatus map[device.Health]int   `json:"counts_by_status"`
	NeedAttention  []AttentionDevice       `json:"devices_needing_attention"`
	Devices        []device.DeviceResponse `json:"devices"`
}

type AttentionDevice struct {
	ID          string           `json:"id"`
	Name        string           `json:"device_name"`
	Health      device.Health    `json:"device_status"`
	LastError   *string          `json:"last_error,omitempty"`
	LastSync    *time.Time       `json:"last_sync"`
	LastOutcome *SyncLogResponse `json:"last_sync_outcome,omitempty"`
}

type DeviceInfoResponse struct {
	SerialNumber    string `json:"serial_number"`
	FirmwareVersion string `json:"firmware_version"`
	Platform        string `json:"platform"`
	UserCount       int    `json:"user_count"`
	RecordCount     int    `json:"record_count"`
}

// DeviceService manages the device registry and the administrative
// terminal operations around it.
type DeviceService struct {
	devices    device.DeviceRepository
	employees  employee.EmployeeRepository
	attendance attendance.AttendanceRepository
	logs       synclog.SyncLogRepository
	links      *terminal.LinkManager
	orch       *syncService.Orchestrator
	scheduler  *cron.Scheduler

	defaultPort         int
	statusCheckInterval time.Duration
	defaultInterval     time.Duration
}

func NewDeviceService(
	devices device.DeviceRepository,
	employees employee.EmployeeRepository,
	attendanceRepo attendance.AttendanceRepository,
	logs synclog.SyncLogRepository,
	links *terminal.LinkManager,
	orch *syncService.Orchestrator,
	scheduler *cron.Scheduler,
	defaultPort int,
	statusCheckInterval, defaultInterval time.Duration,
) *DeviceService {
	return &DeviceService{
		devices:             devices,
		employees:           employees,
		attendance:          attendanceRepo,
		logs:                logs,
		links:               links,
		orch:                orch,
		scheduler:           scheduler,
		defaultPort:         defaultPort,
		statusCheckInterval: statusCheckInterval,
		defaultInterval:     defaultInterval,
	}
}

// Register validates the request, requires a successful connectivity
// probe, and persists the device in the registry.
func (s *DeviceService) Register(ctx context.Context, req device.RegisterDeviceRequest) (device.Device, error) {
	if req.Port == 0 {
		req.Port = s.defaultPort
	}
	if err := req.Validate(); err != nil {
		return device.Device{}, err
	}

	if existing, err := s.devices.GetBySerialID(ctx, req.SerialID); err != nil {
		return device.Device{}, fmt.Errorf("check serial id: %w", err)
	} else if existing != nil {
		return device.Device{}, device.ErrSerialIDExists
	}

	if existing, err := s.devices.GetByIP(ctx, req.IP); err != nil {
		return device.Device{}, fmt.Errorf("check ip: %w", err)
	} else if existing != nil {
		return device.Device{}, device.ErrIPExists
	}

	dev := device.Device{
		SerialID:            req.SerialID,
		Name:                req.Name,
		IP:                  req.IP,
		Port:                req.Port,
		Location:            req.Location,
		Description:         req.Description,
		IsActive:            true,
		SyncIntervalMinutes: req.SyncIntervalMinutes,
		Health:              device.HealthInitializing,
	}
	if dev.SyncIntervalMinutes == 0 {
		dev.SyncIntervalMinutes = int(s.defaultInterval.Minutes())
	}

	if err := s.links.CheckReachable(dev.Addr()); err != nil {
		return device.Device{}, fmt.Errorf("%w: %v", device.ErrProbeFailed, err)
	}
	dev.Health = device.HealthOnline

	created, err := s.devices.Create(ctx, dev)
	if err != nil {
		return device.Device{}, fmt.Errorf("create device: %w", err)
	}

	if err := s.RefreshSchedules(ctx); err != nil {
		slog.Warn("Failed to refresh sync schedules after registration", "error", err)
	}
	return created, nil
}

// Update applies a partial update to the device's mutable attributes.
func (s *DeviceService) Update(ctx context.Context, id string, req device.UpdateDeviceRequest) (device.Device, error) {
	if err := req.Validate(); err != nil {
		return device.Device{}, err
	}

	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return device.Device{}, err
	}

	if req.IP != nil && *req.IP != dev.IP {
		if existing, err := s.devices.GetByIP(ctx, *req.IP); err != nil {
			return device.Device{}, fmt.Errorf("check ip: %w", err)
		} else if existing != nil && existing.ID != id {
			return device.Device{}, device.ErrIPExists
		}
		dev.IP = *req.IP
	}
	if req.Name != nil {
		dev.Name = *req.Name
	}
	if req.Port != nil {
		dev.Port = *req.Port
	}
	if req.Location != nil {
		dev.Location = req.Location
	}
	if req.Description != nil {
		dev.Description = req.Description
	}
	if req.IsActive != nil {
		dev.IsActive = *req.IsActive
	}
	if req.SyncIntervalMinutes != nil {
		dev.SyncIntervalMinutes = *req.SyncIntervalMinutes
	}

	if err := s.devices.Update(ctx, dev); err != nil {
		return device.Device{}, fmt.Errorf("update device: %w", err)
	}

	if err := s.RefreshSchedules(ctx); err != nil {
		slog.Warn("Failed to refresh sync schedules after update", "error", err)
	}
	return dev, nil
}

// Remove deletes a device. Any live session is torn down first; a device
// mid-sync cannot be removed.
func (s *DeviceService) Remove(ctx context.Context, id string) error {
	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if s.orch.InFlight(dev.ID) {
		return device.ErrSessionStillOpen
	}
	s.links.Release(dev.ID)

	if err := s.devices.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete device: %w", err)
	}
	if err := s.RefreshSchedules(ctx); err != nil {
		slog.Warn("Failed to refresh sync schedules after removal", "error", err)
	}
	return nil
}

func (s *DeviceService) Get(ctx context.Context, id string) (device.Device, error) {
	return s.devices.GetByID(ctx, id)
}

func (s *DeviceService) List(ctx context.Context) ([]device.Device, error) {
	return s.devices.List(ctx)
}

// GetDeviceHealth reports current connectivity, the last sync cursor and
// the recent sync history for one device.
func (s *DeviceService) GetDeviceHealth(ctx context.Context, id string) (DeviceHealthResponse, error) {
	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return DeviceHealthResponse{}, err
	}

	connectivity := "reachable"
	if err := s.links.CheckReachable(dev.Addr()); err != nil {
		connectivity = "unreachable"
	}

	entries, err := s.logs.ListByDevice(ctx, dev.ID, 10)
	if err != nil {
		return DeviceHealthResponse{}, fmt.Errorf("list sync log: %w", err)
	}

	resp := DeviceHealthResponse{
		Device:       device.ToResponse(dev),
		Connectivity: connectivity,
		LastSync:     dev.LastSync,
	}
	for _, e := range entries {
		resp.RecentSyncLog = append(resp.RecentSyncLog, toSyncLogResponse(e))
	}
	return resp, nil
}

// SyncHistory returns the most recent sync log entries for a device,
// newest first.
func (s *DeviceService) SyncHistory(ctx context.Context, id string, limit int) ([]SyncLogResponse, error) {
	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	entries, err := s.logs.ListByDevice(ctx, dev.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync log: %w", err)
	}
	out := make([]SyncLogResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toSyncLogResponse(e))
	}
	return out, nil
}

// RecentAttendance returns the most recent attendance records captured
// through a device, newest first.
func (s *DeviceService) RecentAttendance(ctx context.Context, id string, limit int) ([]AttendanceRecordResponse, error) {
	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	records, err := s.attendance.ListByDevice(ctx, dev.ID, limit)
	if err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	out := make([]AttendanceRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, AttendanceRecordResponse{
			ID:         rec.ID,
			EmployeeID: rec.EmployeeID,
			Date:       rec.Date,
			CheckIn:    rec.CheckIn,
			CheckOut:   rec.CheckOut,
			Method:     rec.Method,
			Status:     rec.Status,
		})
	}
	return out, nil
}

// HealthDashboard aggregates fleet health: counts per status and the
// active devices in a non-online state with their most recent error.
func (s *DeviceService) HealthDashboard(ctx context.Context) (DashboardResponse, error) {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return DashboardResponse{}, fmt.Errorf("list devices: %w", err)
	}

	resp := DashboardResponse{CountsByStatus: make(map[device.Health]int)}
	for _, dev := range devices {
		resp.CountsByStatus[dev.Health]++
		resp.Devices = append(resp.Devices, device.ToResponse(dev))
		if dev.IsActive && dev.Health != device.HealthOnline && dev.Health != device.HealthSyncing {
			att := AttentionDevice{
				ID:        dev.ID,
				Name:      dev.Name,
				Health:    dev.Health,
				LastError: dev.LastError,
				LastSync:  dev.LastSync,
			}
			last, err := s.logs.LastByDevice(ctx, dev.ID)
			if err != nil {
				slog.Warn("Failed to load last sync outcome", "device", dev.SerialID, "error", err)
			} else if last != nil {
				outcome := toSyncLogResponse(*last)
				att.LastOutcome = &outcome
			}
			resp.NeedAttention = append(resp.NeedAttention, att)
		}
	}
	return resp, nil
}

// PushUsers uploads the active employee roster to the terminal and logs
// the outcome as a users sync.
func (s *DeviceService) PushUsers(ctx context.Context, id string) (int, error) {
	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return 0, err
	}
	employees, err := s.employees.ListActive(ctx)
	if err != nil {
		return 0, fmt.Errorf("list employees: %w", err)
	}
	users := make([]terminal.User, 0, len(employees))
	for _, emp := range employees {
		if emp.DeviceUserID == "" {
			continue
		}
		users = append(users, terminal.User{DeviceUserID: emp.DeviceUserID, Name: emp.FullName()})
	}

	start := time.Now()
	pushed := 0
	err = s.withLink(ctx, dev, func(link *terminal.Link) error {
		var pushErr error
		pushed, pushErr = link.PushUsers(ctx, users)
		return pushErr
	})
	s.appendAdminLog(ctx, dev.ID, synclog.KindUsers, pushed, time.Since(start), err)
	if err != nil {
		return pushed, err
	}
	return pushed, nil
}

// PullUsers reads the terminal's user table.
func (s *DeviceService) PullUsers(ctx context.Context, id string) ([]terminal.User, error) {
	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	var users []terminal.User
	err = s.withLink(ctx, dev, func(link *terminal.Link) error {
		var pullErr error
		users, pullErr = link.PullUsers(ctx)
		return pullErr
	})
	return users, err
}

// ClearRemoteLog wipes the terminal's attendance log. Destructive; the
// caller is expected to have synced first.
func (s *DeviceService) ClearRemoteLog(ctx context.Context, id string) error {
	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	start := time.Now()
	err = s.withLink(ctx, dev, func(link *terminal.Link) error {
		return link.ClearRemoteLog(ctx)
	})
	s.appendAdminLog(ctx, dev.ID, synclog.KindLogs, 0, time.Since(start), err)
	return err
}

// Restart reboots the terminal.
func (s *DeviceService) Restart(ctx context.Context, id string) error {
	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.withLink(ctx, dev, func(link *terminal.Link) error {
		return link.Restart(ctx)
	})
}

// Info reads the terminal's identity snapshot.
func (s *DeviceService) Info(ctx context.Context, id string) (DeviceInfoResponse, error) {
	dev, err := s.devices.GetByID(ctx, id)
	if err != nil {
		return DeviceInfoResponse{}, err
	}
	var info terminal.Info
	err = s.withLink(ctx, dev, func(link *terminal.Link) error {
		var infoErr error
		info, infoErr = link.Info(ctx)
		return infoErr
	})
	if err != nil {
		return DeviceInfoResponse{}, err
	}
	return DeviceInfoResponse{
		SerialNumber:    info.SerialNumber,
		FirmwareVersion: info.FirmwareVersion,
		Platform:        info.Platform,
		UserCount:       info.UserCount,
		RecordCount:     info.RecordCount,
	}, nil
}

// withLink acquires a short-lived session for an administrative call and
// guarantees its release.
func (s *DeviceService) withLink(ctx context.Context, dev device.Device, fn func(link *terminal.Link) error) error {
	link, err := s.links.Acquire(ctx, dev)
	if err != nil {
		return err
	}
	defer s.links.Release(dev.ID)
	return fn(link)
}

func (s *DeviceService) appendAdminLog(ctx context.Context, deviceID string, kind synclog.Kind, records int, duration time.Duration, opErr error) {
	entry := synclog.Entry{
		DeviceID:      deviceID,
		Kind:          kind,
		RecordsSynced: records,
		Status:        synclog.StatusSuccess,
		Duration:      duration,
	}
	if opErr != nil {
		entry.Status = synclog.StatusFailed
		msg := opErr.Error()
		entry.ErrorMessage = &msg
	}
	if _, err := s.logs.Append(ctx, entry); err != nil {
		slog.Error("Failed to append admin sync log entry", "device_id", deviceID, "error", err)
	}
}

// ProbeFleet refreshes health for devices that are idle between syncs.
// Devices mid-sync are skipped; the orchestrator owns their state.
func (s *DeviceService) ProbeFleet(ctx context.Context) error {
	devices, err := s.devices.List(ctx)
	if err != nil {
		return fmt.Errorf("list devices: %w", err)
	}
	for _, dev := range devices {
		if s.orch.InFlight(dev.ID) || dev.Health == device.HealthSyncing {
			continue
		}
		health := device.HealthOnline
		var lastErr *string
		if err := s.links.CheckReachable(dev.Addr()); err != nil {
			health = device.HealthOffline
			msg := err.Error()
			lastErr = &msg
		}
		if health == dev.Health {
			continue
		}
		if err := s.devices.UpdateHealth(ctx, dev.ID, health, lastErr, nil); err != nil {
			slog.Error("Failed to update device health from probe", "device", dev.SerialID, "error", err)
		}
	}
	return nil
}

// RefreshSchedules rebuilds the scheduler's job set from the active
// device list: one sync job per device at its declared interval, plus
// the fleet status probe.
func (s *DeviceService) RefreshSchedules(ctx context.Context) error {
	devices, err := s.devices.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active devices: %w", err)
	}

	jobs := make([]cron.Job, 0, len(devices)+1)
	for _, dev := range devices {
		if dev.SyncIntervalMinutes <= 0 {
			continue
		}
		deviceID := dev.ID
		serial := dev.SerialID
		jobs = append(jobs, cron.Job{
			Key:      "sync:" + deviceID,
			Name:     "sync_device_" + serial,
			Interval: time.Duration(dev.SyncIntervalMinutes) * time.Minute,
			Fn: func(ctx context.Context) error {
				_, err := s.orch.SyncDevice(ctx, deviceID)
				if errors.Is(err, syncService.ErrSyncInFlight) {
					slog.Info("Sync tick skipped, previous run still in flight", "device", serial)
					return nil
				}
				return err
			},
		})
	}
	jobs = append(jobs, cron.Job{
		Key:      "status_probe",
		Name:     "device_status_probe",
		Interval: s.statusCheckInterval,
		Fn:       s.ProbeFleet,
	})

	s.scheduler.Reload(jobs)
	return nil
}
