package device

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/attendance"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/employee"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/synclog"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/cron"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/terminal"
	"github.com/cmlabs-hris/device-sync-go/internal/service/reconcile"
	syncService "github.com/cmlabs-hris/device-sync-go/internal/service/sync"
)

type memDeviceRepo struct {
	seq     int
	devices map[string]device.Device
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: make(map[string]device.Device)}
}

func (r *memDeviceRepo) Create(_ context.Context, dev device.Device) (device.Device, error) {
	r.seq++
	dev.ID = fmt.Sprintf("dev-%d", r.seq)
	dev.CreatedAt = time.Now()
	dev.UpdatedAt = dev.CreatedAt
	r.devices[dev.ID] = dev
	return dev, nil
}

func (r *memDeviceRepo) GetByID(_ context.Context, id string) (device.Device, error) {
	dev, ok := r.devices[id]
	if !ok {
		return device.Device{}, device.ErrDeviceNotFound
	}
	return dev, nil
}

func (r *memDeviceRepo) GetBySerialID(_ context.Context, serialID string) (*device.Device, error) {
	for _, dev := range r.devices {
		if dev.SerialID == serialID {
			d := dev
			return &d, nil
		}
	}
	return nil, nil
}

func (r *memDeviceRepo) GetByIP(_ context.Context, ip string) (*device.Device, error) {
	for _, dev := range r.devices {
		if dev.IP == ip {
			d := dev
			return &d, nil
		}
	}
	return nil, nil
}

func (r *memDeviceRepo) List(_ context.Context) ([]device.Device, error) {
	var out []device.Device
	for _, dev := range r.devices {
		out = append(out, dev)
	}
	return out, nil
}

func (r *memDeviceRepo) ListActive(_ context.Context) ([]device.Device, error) {
	var out []device.Device
	for _, dev := range r.devices {
		if dev.IsActive {
			out = append(out, dev)
		}
	}
	return out, nil
}

func (r *memDeviceRepo) Update(_ context.Context, dev device.Device) error {
	if _, ok := r.devices[dev.ID]; !ok {
		return device.ErrDeviceNotFound
	}
	dev.UpdatedAt = time.Now()
	r.devices[dev.ID] = dev
	return nil
}

func (r *memDeviceRepo) UpdateHealth(_ context.Context, deviceID string, health device.Health, lastError *string, lastSync *time.Time) error {
	dev, ok := r.devices[deviceID]
	if !ok {
		return device.ErrDeviceNotFound
	}
	dev.Health = health
	dev.LastError = lastError
	if lastSync != nil {
		dev.LastSync = lastSync
	}
	r.devices[deviceID] = dev
	return nil
}

func (r *memDeviceRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.devices[id]; !ok {
		return device.ErrDeviceNotFound
	}
	delete(r.devices, id)
	return nil
}

type memEmployeeRepo struct {
	employees []employee.Employee
}

func (r *memEmployeeRepo) GetByDeviceUserID(_ context.Context, deviceUserID string) (*employee.Employee, error) {
	for _, emp := range r.employees {
		if emp.DeviceUserID == deviceUserID {
			e := emp
			return &e, nil
		}
	}
	return nil, nil
}

func (r *memEmployeeRepo) ListActive(_ context.Context) ([]employee.Employee, error) {
	var out []employee.Employee
	for _, emp := range r.employees {
		if emp.IsActive {
			out = append(out, emp)
		}
	}
	return out, nil
}

type memSyncLogRepo struct {
	entries []synclog.Entry
}

func (r *memSyncLogRepo) Append(_ context.Context, entry synclog.Entry) (synclog.Entry, error) {
	entry.ID = fmt.Sprintf("log-%d", len(r.entries)+1)
	entry.CreatedAt = time.Now()
	r.entries = append(r.entries, entry)
	return entry, nil
}

func (r *memSyncLogRepo) ListByDevice(_ context.Context, deviceID string, limit int) ([]synclog.Entry, error) {
	var out []synclog.Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if r.entries[i].DeviceID == deviceID {
			out = append(out, r.entries[i])
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *memSyncLogRepo) LastByDevice(ctx context.Context, deviceID string) (*synclog.Entry, error) {
	entries, err := r.ListByDevice(ctx, deviceID, 1)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

// memAttendanceRepo holds a plain record list. The registry tests never
// run a sync, so the reconciliation lookups stay trivial.
type memAttendanceRepo struct {
	records []attendance.Attendance
}

func (r *memAttendanceRepo) Create(_ context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	att.ID = fmt.Sprintf("att-%d", len(r.records)+1)
	r.records = append(r.records, att)
	return att, nil
}
func (r *memAttendanceRepo) Close(context.Context, string, time.Time) error { return nil }
func (r *memAttendanceRepo) GetOpenRecord(context.Context, string, time.Time) (*attendance.Attendance, error) {
	return nil, nil
}
func (r *memAttendanceRepo) GetLastRecord(context.Context, string, time.Time) (*attendance.Attendance, error) {
	return nil, nil
}
func (r *memAttendanceRepo) HasRecordNear(context.Context, string, string, time.Time, time.Duration) (bool, error) {
	return false, nil
}
func (r *memAttendanceRepo) ListByDevice(_ context.Context, deviceID string, limit int) ([]attendance.Attendance, error) {
	var out []attendance.Attendance
	for i := len(r.records) - 1; i >= 0; i-- {
		rec := r.records[i]
		if rec.DeviceID != nil && *rec.DeviceID == deviceID {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type passTx struct{}

func (passTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fixture struct {
	devices    *memDeviceRepo
	employees  *memEmployeeRepo
	attendance *memAttendanceRepo
	logs       *memSyncLogRepo
	scheduler  *cron.Scheduler
	svc        *DeviceService
}

func newFixture(t *testing.T, probe func(addr string, timeout time.Duration) error) *fixture {
	t.Helper()

	f := &fixture{
		devices:    newMemDeviceRepo(),
		employees:  &memEmployeeRepo{},
		attendance: &memAttendanceRepo{},
		logs:       &memSyncLogRepo{},
		scheduler:  cron.NewScheduler(cron.RealClock()),
	}

	if probe == nil {
		probe = terminal.NoProbe
	}
	links := terminal.NewLinkManager(terminal.SimulatorFactory(), time.Second, time.Second).WithProbe(probe)

	engine := reconcile.NewEngine(f.employees, f.attendance, reconcile.Config{DedupWindow: time.Minute})
	orch := syncService.NewOrchestrator(f.devices, f.attendance, f.logs, engine, links, passTx{}, syncService.Config{
		LookbackWindow:    24 * time.Hour,
		MaxRecordsPerRun:  1000,
		MaxConnectRetries: 1,
		RetryInitialDelay: time.Millisecond,
		RunDeadline:       time.Minute,
		WorkerLimit:       2,
	})

	f.svc = NewDeviceService(f.devices, f.employees, f.attendance, f.logs, links, orch, f.scheduler, 4370, 10*time.Minute, 5*time.Minute)
	return f
}

func registerReq(serial, ip string) device.RegisterDeviceRequest {
	location := "Lobby"
	return device.RegisterDeviceRequest{
		Name:                "Gate " + serial,
		IP:                  ip,
		Port:                4370,
		SerialID:            serial,
		Location:            &location,
		SyncIntervalMinutes: 5,
	}
}

func TestDeviceService_Register_Success(t *testing.T) {
	f := newFixture(t, nil)

	dev, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))

	require.NoError(t, err)
	assert.NotEmpty(t, dev.ID)
	assert.Equal(t, device.HealthOnline, dev.Health)
	assert.True(t, dev.IsActive)

	// Registration schedules the device's sync job.
	assert.Contains(t, f.scheduler.Keys(), "sync:"+dev.ID)
	assert.Contains(t, f.scheduler.Keys(), "status_probe")
}

func TestDeviceService_Register_DefaultsInterval(t *testing.T) {
	f := newFixture(t, nil)
	req := registerReq("SN-001", "10.0.0.5")
	req.SyncIntervalMinutes = 0

	dev, err := f.svc.Register(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 5, dev.SyncIntervalMinutes)
}

func TestDeviceService_Register_DefaultsPort(t *testing.T) {
	f := newFixture(t, nil)
	req := registerReq("SN-001", "10.0.0.5")
	req.Port = 0

	dev, err := f.svc.Register(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, 4370, dev.Port)
}

func TestDeviceService_Register_DuplicateSerial(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.6"))
	assert.ErrorIs(t, err, device.ErrSerialIDExists)
}

func TestDeviceService_Register_DuplicateIP(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)

	_, err = f.svc.Register(context.Background(), registerReq("SN-002", "10.0.0.5"))
	assert.ErrorIs(t, err, device.ErrIPExists)
}

func TestDeviceService_Register_ProbeFailure(t *testing.T) {
	probe := func(string, time.Duration) error { return terminal.ErrUnreachable }
	f := newFixture(t, probe)

	_, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	assert.ErrorIs(t, err, device.ErrProbeFailed)
	assert.Empty(t, f.devices.devices)
}

func TestDeviceService_Register_InvalidRequest(t *testing.T) {
	f := newFixture(t, nil)
	req := registerReq("SN-001", "not-an-ip")

	_, err := f.svc.Register(context.Background(), req)
	assert.ErrorIs(t, err, device.ErrInvalidIP)
}

func TestDeviceService_Update_AppliesPartialChanges(t *testing.T) {
	f := newFixture(t, nil)
	dev, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)

	name := "Back Entrance"
	interval := 15
	updated, err := f.svc.Update(context.Background(), dev.ID, device.UpdateDeviceRequest{
		Name:                &name,
		SyncIntervalMinutes: &interval,
	})

	require.NoError(t, err)
	assert.Equal(t, "Back Entrance", updated.Name)
	assert.Equal(t, 15, updated.SyncIntervalMinutes)
	assert.Equal(t, "10.0.0.5", updated.IP)
}

func TestDeviceService_Update_RejectsTakenIP(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)
	dev2, err := f.svc.Register(context.Background(), registerReq("SN-002", "10.0.0.6"))
	require.NoError(t, err)

	taken := "10.0.0.5"
	_, err = f.svc.Update(context.Background(), dev2.ID, device.UpdateDeviceRequest{IP: &taken})
	assert.ErrorIs(t, err, device.ErrIPExists)
}

func TestDeviceService_Remove_DeletesAndUnschedules(t *testing.T) {
	f := newFixture(t, nil)
	dev, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)

	require.NoError(t, f.svc.Remove(context.Background(), dev.ID))

	_, err = f.svc.Get(context.Background(), dev.ID)
	assert.ErrorIs(t, err, device.ErrDeviceNotFound)
	assert.NotContains(t, f.scheduler.Keys(), "sync:"+dev.ID)
}

func TestDeviceService_PushUsers_SendsActiveRoster(t *testing.T) {
	f := newFixture(t, nil)
	f.employees.employees = []employee.Employee{
		{ID: "emp-1", FirstName: "Ayu", LastName: "Lestari", DeviceUserID: "101", IsActive: true},
		{ID: "emp-2", FirstName: "Budi", LastName: "Santoso", DeviceUserID: "102", IsActive: true},
		{ID: "emp-3", FirstName: "Citra", LastName: "Dewi", DeviceUserID: "", IsActive: true},
		{ID: "emp-4", FirstName: "Dian", LastName: "Putra", DeviceUserID: "104", IsActive: false},
	}
	dev, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)

	pushed, err := f.svc.PushUsers(context.Background(), dev.ID)

	require.NoError(t, err)
	// Only active employees with an enrolled terminal id go out.
	assert.Equal(t, 2, pushed)

	require.Len(t, f.logs.entries, 1)
	assert.Equal(t, synclog.KindUsers, f.logs.entries[0].Kind)
	assert.Equal(t, synclog.StatusSuccess, f.logs.entries[0].Status)
	assert.Equal(t, 2, f.logs.entries[0].RecordsSynced)
}

func TestDeviceService_ProbeFleet_SettlesHealth(t *testing.T) {
	badIP := "10.0.0.6"
	probe := func(addr string, _ time.Duration) error {
		if addr == badIP+":4370" {
			return errors.New("connection refused")
		}
		return nil
	}
	f := newFixture(t, probe)

	up, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)
	down, err := f.devices.Create(context.Background(), device.Device{
		SerialID: "SN-002", Name: "Gate SN-002", IP: badIP, Port: 4370,
		IsActive: true, Health: device.HealthOnline,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.ProbeFleet(context.Background()))

	gotUp, _ := f.devices.GetByID(context.Background(), up.ID)
	assert.Equal(t, device.HealthOnline, gotUp.Health)

	gotDown, _ := f.devices.GetByID(context.Background(), down.ID)
	assert.Equal(t, device.HealthOffline, gotDown.Health)
	require.NotNil(t, gotDown.LastError)
}

func TestDeviceService_HealthDashboard(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)
	errMsg := "device unreachable"
	_, err = f.devices.Create(context.Background(), device.Device{
		SerialID: "SN-002", Name: "Gate SN-002", IP: "10.0.0.6", Port: 4370,
		IsActive: true, Health: device.HealthOffline, LastError: &errMsg,
	})
	require.NoError(t, err)

	dashboard, err := f.svc.HealthDashboard(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, dashboard.CountsByStatus[device.HealthOnline])
	assert.Equal(t, 1, dashboard.CountsByStatus[device.HealthOffline])
	require.Len(t, dashboard.NeedAttention, 1)
	assert.Equal(t, "Gate SN-002", dashboard.NeedAttention[0].Name)
	require.NotNil(t, dashboard.NeedAttention[0].LastError)
}

func TestDeviceService_HealthDashboard_AttachesLastSyncOutcome(t *testing.T) {
	f := newFixture(t, nil)
	errMsg := "device unreachable"
	down, err := f.devices.Create(context.Background(), device.Device{
		SerialID: "SN-002", Name: "Gate SN-002", IP: "10.0.0.6", Port: 4370,
		IsActive: true, Health: device.HealthOffline, LastError: &errMsg,
	})
	require.NoError(t, err)
	_, err = f.logs.Append(context.Background(), synclog.Entry{
		DeviceID: down.ID, Kind: synclog.KindAttendance,
		Status: synclog.StatusFailed, ErrorMessage: &errMsg, Duration: time.Second,
	})
	require.NoError(t, err)

	dashboard, err := f.svc.HealthDashboard(context.Background())

	require.NoError(t, err)
	require.Len(t, dashboard.NeedAttention, 1)
	outcome := dashboard.NeedAttention[0].LastOutcome
	require.NotNil(t, outcome)
	assert.Equal(t, synclog.StatusFailed, outcome.Status)
	require.NotNil(t, outcome.ErrorMessage)
}

func TestDeviceService_RecentAttendance(t *testing.T) {
	f := newFixture(t, nil)
	dev, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)

	day := time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		deviceID := dev.ID
		_, err := f.attendance.Create(context.Background(), attendance.Attendance{
			EmployeeID: fmt.Sprintf("emp-%d", i+1),
			Date:       day,
			CheckIn:    day.Add(time.Duration(8+i) * time.Hour),
			DeviceID:   &deviceID,
			Method:     attendance.MethodFingerprint,
			Status:     attendance.StatusPresent,
		})
		require.NoError(t, err)
	}
	other := "dev-other"
	_, err = f.attendance.Create(context.Background(), attendance.Attendance{
		EmployeeID: "emp-9", Date: day, CheckIn: day.Add(9 * time.Hour),
		DeviceID: &other, Method: attendance.MethodCard, Status: attendance.StatusPresent,
	})
	require.NoError(t, err)

	records, err := f.svc.RecentAttendance(context.Background(), dev.ID, 2)

	require.NoError(t, err)
	require.Len(t, records, 2)
	// Newest first, scoped to the requested device.
	assert.Equal(t, "emp-3", records[0].EmployeeID)
	assert.Equal(t, "emp-2", records[1].EmployeeID)
}

func TestDeviceService_RefreshSchedules_SkipsZeroInterval(t *testing.T) {
	f := newFixture(t, nil)
	manual, err := f.devices.Create(context.Background(), device.Device{
		SerialID: "SN-003", Name: "Gate SN-003", IP: "10.0.0.7", Port: 4370,
		IsActive: true, Health: device.HealthOnline, SyncIntervalMinutes: 0,
	})
	require.NoError(t, err)

	require.NoError(t, f.svc.RefreshSchedules(context.Background()))

	assert.NotContains(t, f.scheduler.Keys(), "sync:"+manual.ID)
	assert.Contains(t, f.scheduler.Keys(), "status_probe")
}

func TestDeviceService_SyncHistory(t *testing.T) {
	f := newFixture(t, nil)
	dev, err := f.svc.Register(context.Background(), registerReq("SN-001", "10.0.0.5"))
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.logs.Append(context.Background(), synclog.Entry{
			DeviceID: dev.ID, Kind: synclog.KindAttendance,
			RecordsSynced: i, Status: synclog.StatusSuccess, Duration: time.Second,
		})
		require.NoError(t, err)
	}

	entries, err := f.svc.SyncHistory(context.Background(), dev.ID, 2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	// Newest first.
	assert.Equal(t, 2, entries[0].RecordsSynced)
}
