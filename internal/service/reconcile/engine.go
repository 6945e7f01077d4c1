package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/attendance"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/device"
	"github.com/cmlabs-hris/device-sync-go/internal/domain/employee"
	"github.com/cmlabs-hris/device-sync-go/internal/pkg/terminal"
)

// PairingPolicy decides what a punch does when the employee has no open
// record left on the day.
type PairingPolicy string

const (
	// PolicyToggle opens a new session: odd punches check in, even
	// punches check out. Multiple break sessions per day.
	PolicyToggle PairingPolicy = "toggle"

	// PolicyFirstLast extends the checkout of the day's last session
	// instead of opening another one: first punch in, last punch out.
	PolicyFirstLast PairingPolicy = "first-last"
)

func (p PairingPolicy) Valid() bool {
	return p == PolicyToggle || p == PolicyFirstLast
}

type Config struct {
	DedupWindow time.Duration
	Policy      PairingPolicy
}

// AttendanceLookup is the read-only slice of the attendance store the
// engine needs. Idempotence rests entirely on these lookups against
// persisted state; the engine keeps no memory between calls.
type AttendanceLookup interface {
	GetOpenRecord(ctx context.Context, employeeID string, day time.Time) (*attendance.Attendance, error)
	GetLastRecord(ctx context.Context, employeeID string, day time.Time) (*attendance.Attendance, error)
	HasRecordNear(ctx context.Context, employeeID, deviceID string, ts time.Time, window time.Duration) (bool, error)
}

type MutationKind string

const (
	MutationOpen  MutationKind = "open"
	MutationClose MutationKind = "close"
)

// Mutation is one attendance change the engine wants applied. A Close
// targets either a persisted record (RecordID set) or the Open mutation
// at OpenIndex within the same batch.
type Mutation struct {
	Kind       MutationKind
	EmployeeID string
	DeviceID   string
	Day        time.Time
	Timestamp  time.Time
	Method     attendance.Method
	RecordID   string
	OpenIndex  int
}

type Counts struct {
	Matched    int `json:"matched"`
	Unmatched  int `json:"unmatched"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
	Created    int `json:"created"`
	Closed     int `json:"closed"`
	Extended   int `json:"extended"`
}

type Result struct {
	Mutations []Mutation
	Counts    Counts
}

// Engine turns raw punches into attendance mutations. It is pure with
// respect to the store: same punches against the same persisted state
// always yield the same mutations.
type Engine struct {
	employees employee.EmployeeRepository
	store     AttendanceLookup
	cfg       Config
}

func NewEngine(employees employee.EmployeeRepository, store AttendanceLookup, cfg Config) *Engine {
	if !cfg.Policy.Valid() {
		cfg.Policy = PolicyToggle
	}
	if cfg.DedupWindow <= 0 {
		cfg.DedupWindow = 5 * time.Minute
	}
	return &Engine{employees: employees, store: store, cfg: cfg}
}

type dayGroup struct {
	employeeID string
	day        time.Time
	punches    []terminal.RawPunch
}

// Reconcile maps punches to employees, drops duplicates against the
// persisted attendance state, and pairs the rest into check-in/check-out
// mutations. Unresolvable and malformed punches are counted, never fatal;
// only store failures return an error.
func (e *Engine) Reconcile(ctx context.Context, dev device.Device, punches []terminal.RawPunch) (Result, error) {
	var res Result

	groups, err := e.group(ctx, dev, punches, &res.Counts)
	if err != nil {
		return Result{}, err
	}

	for _, g := range groups {
		if err := e.pairDay(ctx, dev, g, &res); err != nil {
			return Result{}, err
		}
	}
	return res, nil
}

// group resolves employees and buckets punches by (employee, local day).
func (e *Engine) group(ctx context.Context, dev device.Device, punches []terminal.RawPunch, counts *Counts) ([]dayGroup, error) {
	resolved := make(map[string]*employee.Employee)
	grouped := make(map[string]*dayGroup)
	var order []string

	for _, p := range punches {
		if p.Timestamp.IsZero() {
			counts.Malformed++
			continue
		}

		emp, seen := resolved[p.DeviceUserID]
		if !seen {
			var err error
			emp, err = e.employees.GetByDeviceUserID(ctx, p.DeviceUserID)
			if err != nil {
				return nil, fmt.Errorf("resolve employee for device user %s: %w", p.DeviceUserID, err)
			}
			resolved[p.DeviceUserID] = emp
		}
		if emp == nil {
			counts.Unmatched++
			slog.Warn("No employee enrolled for terminal user", "device", dev.SerialID, "device_user_id", p.DeviceUserID)
			continue
		}
		counts.Matched++

		day := dayOf(p.Timestamp)
		key := emp.ID + "|" + day.Format("2006-01-02")
		g, ok := grouped[key]
		if !ok {
			g = &dayGroup{employeeID: emp.ID, day: day}
			grouped[key] = g
			order = append(order, key)
		}
		g.punches = append(g.punches, p)
	}

	sort.Strings(order)
	groups := make([]dayGroup, 0, len(order))
	for _, key := range order {
		g := grouped[key]
		sort.SliceStable(g.punches, func(i, j int) bool {
			return g.punches[i].Timestamp.Before(g.punches[j].Timestamp)
		})
		groups = append(groups, *g)
	}
	return groups, nil
}

// pairDay walks one employee-day's punches in timestamp order and emits
// open/close mutations against the running open-session state.
func (e *Engine) pairDay(ctx context.Context, dev device.Device, g dayGroup, res *Result) error {
	openRec, err := e.store.GetOpenRecord(ctx, g.employeeID, g.day)
	if err != nil {
		return fmt.Errorf("open record lookup: %w", err)
	}

	openRecordID := ""
	if openRec != nil {
		openRecordID = openRec.ID
	}
	openIdx := -1        // Open mutation in this batch still awaiting a close
	lastCloseIdx := -1   // most recent Close mutation, for first-last extension
	lastChecked := false // lazy GetLastRecord, only under first-last
	lastClosedID := ""
	var accepted []time.Time

	for _, p := range g.punches {
		dup, err := e.isDuplicate(ctx, g.employeeID, dev.ID, p.Timestamp, accepted)
		if err != nil {
			return err
		}
		if dup {
			res.Counts.Duplicates++
			continue
		}
		accepted = append(accepted, p.Timestamp)

		// A punch closes the open session when one exists.
		if openRecordID != "" || openIdx >= 0 {
			res.Mutations = append(res.Mutations, Mutation{
				Kind:       MutationClose,
				EmployeeID: g.employeeID,
				DeviceID:   dev.ID,
				Day:        g.day,
				Timestamp:  p.Timestamp,
				Method:     methodOf(p.Verify),
				RecordID:   openRecordID,
				OpenIndex:  openIdx,
			})
			res.Counts.Closed++
			lastCloseIdx = len(res.Mutations) - 1
			openRecordID = ""
			openIdx = -1
			continue
		}

		if e.cfg.Policy == PolicyFirstLast {
			// Push the previous checkout forward instead of opening a
			// second session.
			if lastCloseIdx >= 0 {
				res.Mutations[lastCloseIdx].Timestamp = p.Timestamp
				res.Counts.Extended++
				continue
			}
			if !lastChecked {
				lastChecked = true
				last, err := e.store.GetLastRecord(ctx, g.employeeID, g.day)
				if err != nil {
					return fmt.Errorf("last record lookup: %w", err)
				}
				if last != nil && !last.Open() {
					lastClosedID = last.ID
				}
			}
			if lastClosedID != "" {
				res.Mutations = append(res.Mutations, Mutation{
					Kind:       MutationClose,
					EmployeeID: g.employeeID,
					DeviceID:   dev.ID,
					Day:        g.day,
					Timestamp:  p.Timestamp,
					Method:     methodOf(p.Verify),
					RecordID:   lastClosedID,
					OpenIndex:  -1,
				})
				res.Counts.Extended++
				lastCloseIdx = len(res.Mutations) - 1
				continue
			}
		}

		res.Mutations = append(res.Mutations, Mutation{
			Kind:       MutationOpen,
			EmployeeID: g.employeeID,
			DeviceID:   dev.ID,
			Day:        g.day,
			Timestamp:  p.Timestamp,
			Method:     methodOf(p.Verify),
			OpenIndex:  -1,
		})
		res.Counts.Created++
		openIdx = len(res.Mutations) - 1
	}
	return nil
}

// isDuplicate checks the punch against persisted records and against
// punches already accepted in this pass. The persisted check is what
// makes a second run over the same batch a no-op.
func (e *Engine) isDuplicate(ctx context.Context, employeeID, deviceID string, ts time.Time, accepted []time.Time) (bool, error) {
	near, err := e.store.HasRecordNear(ctx, employeeID, deviceID, ts, e.cfg.DedupWindow)
	if err != nil {
		return false, fmt.Errorf("dedup lookup: %w", err)
	}
	if near {
		return true, nil
	}
	for _, prev := range accepted {
		if absDiff(ts, prev) <= e.cfg.DedupWindow {
			return true, nil
		}
	}
	return false, nil
}

func dayOf(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
}

func absDiff(a, b time.Time) time.Duration {
	d := a.Sub(b)
	if d < 0 {
		return -d
	}
	return d
}

func methodOf(v terminal.VerifyMode) attendance.Method {
	switch v {
	case terminal.VerifyCard:
		return attendance.MethodCard
	case terminal.VerifyPassword:
		return attendance.MethodPassword
	default:
		return attendance.MethodFingerprint
	}
}
