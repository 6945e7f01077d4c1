package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/attendance"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/synclog"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/terminal"
	"github.com/cmlabs-hris/device-sync-go/internal/service/reconcile"
)

// ErrSyncInFlight is returned when a run for the device is already
// executing. Callers skip, they never queue.
var ErrSyncInFlight = errors.New("sync already in flight for device")

// StatusSkipped is a view-only status for guarded skips in sync-all
// results. It is never written to the sync log.
const StatusSkipped = synclog.Status("skipped")

// runState names the phases of one sync run, for logging.
type runState string

const (
	stateConnecting  runState = "connecting"
	statePulling     runState = "pulling"
	stateReconciling runState = "reconciling"
	statePersisting  runState = "persisting"
	stateFinalizing  runState = "finalizing"
)

// TxRunner executes fn inside one logical persistence unit.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Config struct {
	LookbackWindow    time.Duration
	MaxRecordsPerRun  int
	MaxConnectRetries int
	RetryInitialDelay time.Duration
	RunDeadline       time.Duration
	WorkerLimit       int
}

// Summary is the structured outcome of one run, returned even on failure.
type Summary struct {
	RunID         string           `json:"run_id"`
	DeviceID      string           `json:"device_id"`
	DeviceName    string           `json:"device_name"`
	RecordsSynced int              `json:"records_synced"`
	Status        synclog.Status   `json:"status"`
	Duration      time.Duration    `json:"duration"`
	Error         string           `json:"error,omitempty"`
	Counts        reconcile.Counts `json:"counts"`
}

// Orchestrator drives the per-device sync workflow. Runs for distinct
// devices execute concurrently; runs for the same device are serialized
// by the in-flight guard.
type Orchestrator struct {
	devices    device.DeviceRepository
	attendance attendance.AttendanceRepository
	logs       synclog.SyncLogRepository
	engine     *reconcile.Engine
	links      *terminal.LinkManager
	tx         TxRunner
	cfg        Config

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewOrchestrator(
	devices device.DeviceRepository,
	attendanceRepo attendance.AttendanceRepository,
	logs synclog.SyncLogRepository,
	engine *reconcile.Engine,
	links *terminal.LinkManager,
	tx TxRunner,
	cfg Config,
) *Orchestrator {
	return &Orchestrator{
		devices:    devices,
		attendance: attendanceRepo,
		logs:       logs,
		engine:     engine,
		links:      links,
		tx:         tx,
		cfg:        cfg,
		inFlight:   make(map[string]struct{}),
	}
}

// SyncDevice runs one end-to-end sync for a device. A failed run is not
// an error: the Summary carries the outcome and exactly one sync log
// entry is written either way. Errors are returned only when the run
// never started (unknown device, run already in flight).
func (o *Orchestrator) SyncDevice(ctx context.Context, deviceID string) (Summary, error) {
	if !o.tryAcquire(deviceID) {
		return Summary{}, fmt.Errorf("device %s: %w", deviceID, ErrSyncInFlight)
	}
	defer o.releaseGuard(deviceID)

	dev, err := o.devices.GetByID(ctx, deviceID)
	if err != nil {
		return Summary{}, err
	}
	return o.run(ctx, dev), nil
}

// SyncAll fans out over every active device, each isolated: one device's
// failure never affects another's run. Results are keyed by device name.
func (o *Orchestrator) SyncAll(ctx context.Context) (map[string]Summary, error) {
	devices, err := o.devices.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active devices: %w", err)
	}

	results := make(map[string]Summary, len(devices))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(o.cfg.WorkerLimit)

	for _, dev := range devices {
		g.Go(func() error {
			summary, err := o.SyncDevice(ctx, dev.ID)
			if err != nil {
				summary = Summary{DeviceID: dev.ID, DeviceName: dev.Name, Status: synclog.StatusFailed, Error: err.Error()}
				if errors.Is(err, ErrSyncInFlight) {
					summary.Status = StatusSkipped
					summary.Error = ""
				}
			}
			mu.Lock()
			results[dev.Name] = summary
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results, nil
}

// InFlight reports whether a run for the device is currently executing.
func (o *Orchestrator) InFlight(deviceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, busy := o.inFlight[deviceID]
	return busy
}

func (o *Orchestrator) tryAcquire(deviceID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[deviceID]; busy {
		return false
	}
	o.inFlight[deviceID] = struct{}{}
	return true
}

func (o *Orchestrator) releaseGuard(deviceID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, deviceID)
}

func (o *Orchestrator) run(ctx context.Context, dev device.Device) (summary Summary) {
	start := time.Now()
	runID := uuid.NewString()
	log := slog.With("run_id", runID, "device", dev.SerialID)

	summary = Summary{
		RunID:      runID,
		DeviceID:   dev.ID,
		DeviceName: dev.Name,
		Status:     synclog.StatusSuccess,
	}

	runCtx, cancel := context.WithTimeout(ctx, o.cfg.RunDeadline)
	defer cancel()

	if err := o.devices.UpdateHealth(runCtx, dev.ID, device.HealthSyncing, nil, nil); err != nil {
		log.Warn("Failed to flag device as syncing", "error", err)
	}

	health := device.HealthOnline
	var runErr error
	var lastSync *time.Time

	// Finalizing runs on every exit path, cancellation included: release
	// the link, settle registry health, write exactly one log entry.
	defer func() {
		o.finalize(ctx, dev, &summary, health, lastSync, runErr, start, log)
	}()

	log.Debug("Sync run state", "state", stateConnecting)
	link, err := o.connect(runCtx, dev)
	if err != nil {
		runErr = err
		health, summary.Status = classifyFailure(err)
		return summary
	}

	log.Debug("Sync run state", "state", statePulling)
	cursor := start.Add(-o.cfg.LookbackWindow)
	if dev.LastSync != nil {
		cursor = *dev.LastSync
	}
	punches, capped, err := o.pull(runCtx, link, cursor)
	if err != nil {
		runErr = err
		health, summary.Status = classifyFailure(err)
		return summary
	}

	log.Debug("Sync run state", "state", stateReconciling, "punches", len(punches))
	res, err := o.engine.Reconcile(runCtx, dev, punches)
	if err != nil {
		runErr = err
		health, summary.Status = classifyFailure(err)
		return summary
	}
	summary.Counts = res.Counts

	log.Debug("Sync run state", "state", statePersisting, "mutations", len(res.Mutations))
	applied, err := o.persist(runCtx, res.Mutations)
	summary.RecordsSynced = applied
	if err != nil {
		runErr = err
		health, summary.Status = classifyFailure(err)
		return summary
	}

	now := time.Now().UTC()
	lastSync = &now
	if capped && len(punches) > 0 {
		// The device still holds punches newer than the cap boundary.
		// Resume from the last pulled punch so the next run picks them up;
		// the re-pulled boundary punch dedups away.
		resume := punches[len(punches)-1].Timestamp
		lastSync = &resume
		summary.Status = synclog.StatusPartial
	}
	if res.Counts.Unmatched > 0 || res.Counts.Malformed > 0 {
		summary.Status = synclog.StatusPartial
	}
	return summary
}

// connect acquires the device link with bounded retries. Unreachable and
// protocol failures are permanent; busy and timeout are retried with
// exponential backoff.
func (o *Orchestrator) connect(ctx context.Context, dev device.Device) (*terminal.Link, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = o.cfg.RetryInitialDelay

	operation := func() (*terminal.Link, error) {
		link, err := o.links.Acquire(ctx, dev)
		if err != nil {
			if terminal.Retryable(err) {
				return nil, err
			}
			return nil, backoff.Permanent(err)
		}
		return link, nil
	}

	link, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(o.cfg.MaxConnectRetries)),
	)
	if err != nil {
		return nil, fmt.Errorf("connect device %s: %w", dev.SerialID, err)
	}
	return link, nil
}

// pull drains punches from the link, advancing the since cursor until the
// device reports no more records or the per-run cap is hit. The capped
// flag tells the caller the device still held records when the run's
// budget ran out.
func (o *Orchestrator) pull(ctx context.Context, link *terminal.Link, since time.Time) ([]terminal.RawPunch, bool, error) {
	var all []terminal.RawPunch
	cursor := since
	for {
		remaining := o.cfg.MaxRecordsPerRun - len(all)
		if remaining <= 0 {
			return all, true, nil
		}
		batch, more, err := link.PullEvents(ctx, cursor, remaining)
		if err != nil {
			return nil, false, err
		}
		all = append(all, batch...)
		if !more || len(batch) == 0 {
			return all, false, nil
		}
		// Re-pull from the exact last timestamp: a second punch landing in
		// the same second at the batch boundary must not be skipped. The
		// re-pulled punch itself is absorbed by the duplicate checks.
		cursor = batch[len(batch)-1].Timestamp
	}
}

// persist applies the mutation batch in one transaction. The count of
// applied mutations is zero when the transaction rolls back.
func (o *Orchestrator) persist(ctx context.Context, muts []reconcile.Mutation) (int, error) {
	if len(muts) == 0 {
		return 0, nil
	}
	applied := 0
	err := o.tx.WithinTx(ctx, func(txCtx context.Context) error {
		created := make(map[int]string, len(muts))
		for i, m := range muts {
			switch m.Kind {
			case reconcile.MutationOpen:
				deviceID := m.DeviceID
				rec, err := o.attendance.Create(txCtx, attendance.Attendance{
					EmployeeID: m.EmployeeID,
					Date:       m.Day,
					CheckIn:    m.Timestamp,
					DeviceID:   &deviceID,
					Method:     m.Method,
					Status:     attendance.StatusPresent,
				})
				if err != nil {
					return fmt.Errorf("create attendance: %w", err)
				}
				created[i] = rec.ID
			case reconcile.MutationClose:
				id := m.RecordID
				if id == "" {
					id = created[m.OpenIndex]
				}
				if id == "" {
					return fmt.Errorf("close mutation %d has no target record", i)
				}
				if err := o.attendance.Close(txCtx, id, m.Timestamp); err != nil {
					return fmt.Errorf("close attendance %s: %w", id, err)
				}
			}
			applied++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return applied, nil
}

// finalize always runs, detached from the run's context so cancellation
// cannot skip the disconnect or the sync log write.
func (o *Orchestrator) finalize(ctx context.Context, dev device.Device, summary *Summary, health device.Health, lastSync *time.Time, runErr error, start time.Time, log *slog.Logger) {
	log.Debug("Sync run state", "state", stateFinalizing)

	finCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	o.links.Release(dev.ID)

	summary.Duration = time.Since(start)

	var errMsg *string
	if runErr != nil {
		msg := runErr.Error()
		errMsg = &msg
		summary.Error = msg
	}

	if err := o.devices.UpdateHealth(finCtx, dev.ID, health, errMsg, lastSync); err != nil {
		log.Error("Failed to update device health", "error", err)
	}

	entry := synclog.Entry{
		DeviceID:      dev.ID,
		Kind:          synclog.KindAttendance,
		RecordsSynced: summary.RecordsSynced,
		Status:        summary.Status,
		ErrorMessage:  errMsg,
		Duration:      summary.Duration,
	}
	if _, err := o.logs.Append(finCtx, entry); err != nil {
		log.Error("Failed to append sync log entry", "error", err)
		if summary.Error == "" {
			summary.Error = fmt.Sprintf("append sync log: %v", err)
		}
	}

	log.Info("Sync run finished",
		"status", summary.Status,
		"health", health,
		"records_synced", summary.RecordsSynced,
		"duration", summary.Duration,
	)
}

// classifyFailure maps a run error onto registry health and log status.
func classifyFailure(err error) (device.Health, synclog.Status) {
	switch {
	case errors.Is(err, terminal.ErrUnreachable):
		return device.HealthOffline, synclog.StatusFailed
	case errors.Is(err, terminal.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return device.HealthOffline, synclog.StatusTimeout
	case errors.Is(err, terminal.ErrProtocol):
		return device.HealthError, synclog.StatusFailed
	case errors.Is(err, terminal.ErrBusy):
		return device.HealthError, synclog.StatusFailed
	default:
		return device.HealthError, synclog.StatusFailed
	}
}
