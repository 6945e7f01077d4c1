package terminal

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/device"
)

// Probe checks raw TCP reachability of a terminal. It is deliberately
// cheap: no handshake, short timeout.
func Probe(addr string, timeout time.Duration) error {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return fmt.Errorf("probe %s: %w", addr, classifyDialError(err))
	}
	_ = conn.Close()
	return nil
}

// Link is one live session to a terminal, owned by a single sync run.
type Link struct {
	deviceID string
	addr     string
	driver   Driver
	timeout  time.Duration
}

// LinkManager enforces at most one live Link per device. Sessions are
// acquired for the duration of a run and released on every exit path;
// they are never shared.
type LinkManager struct {
	mu      sync.Mutex
	links   map[string]*Link
	factory DriverFactory
	probe   func(addr string, timeout time.Duration) error

	probeTimeout  time.Duration
	driverTimeout time.Duration
}

func NewLinkManager(factory DriverFactory, probeTimeout, driverTimeout time.Duration) *LinkManager {
	return &LinkManager{
		links:         make(map[string]*Link),
		factory:       factory,
		probe:         Probe,
		probeTimeout:  probeTimeout,
		driverTimeout: driverTimeout,
	}
}

// WithProbe overrides the reachability probe. The simulator driver mode
// uses NoProbe since no real terminal is listening.
func (m *LinkManager) WithProbe(probe func(addr string, timeout time.Duration) error) *LinkManager {
	m.probe = probe
	return m
}

// NoProbe skips the TCP reachability check.
func NoProbe(string, time.Duration) error { return nil }

// CheckReachable runs the configured reachability probe against an
// address without opening a session.
func (m *LinkManager) CheckReachable(addr string) error {
	return m.probe(addr, m.probeTimeout)
}

// Acquire opens a session to the device. It fails with ErrBusy when a
// session is already live, ErrUnreachable/ErrTimeout when the TCP probe
// fails and ErrProtocol when the vendor handshake fails. Acquire never
// mutates registry health; that is the orchestrator's job.
func (m *LinkManager) Acquire(ctx context.Context, dev device.Device) (*Link, error) {
	m.mu.Lock()
	if _, live := m.links[dev.ID]; live {
		m.mu.Unlock()
		return nil, fmt.Errorf("device %s: %w", dev.SerialID, ErrBusy)
	}
	// Reserve the slot before the slow probe so concurrent acquirers
	// observe Busy instead of racing the handshake.
	m.links[dev.ID] = nil
	m.mu.Unlock()

	link, err := m.open(ctx, dev)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		delete(m.links, dev.ID)
		return nil, err
	}
	m.links[dev.ID] = link
	return link, nil
}

func (m *LinkManager) open(ctx context.Context, dev device.Device) (*Link, error) {
	addr := dev.Addr()
	if err := m.probe(addr, m.probeTimeout); err != nil {
		return nil, err
	}

	drv := m.factory(addr, m.driverTimeout)
	connectCtx, cancel := context.WithTimeout(ctx, m.driverTimeout)
	defer cancel()
	if err := drv.Connect(connectCtx); err != nil {
		if connectCtx.Err() != nil {
			return nil, fmt.Errorf("handshake %s: %w", addr, ErrTimeout)
		}
		return nil, fmt.Errorf("handshake %s: %v: %w", addr, err, ErrProtocol)
	}

	return &Link{
		deviceID: dev.ID,
		addr:     addr,
		driver:   drv,
		timeout:  m.driverTimeout,
	}, nil
}

// Release tears down the session for a device. Idempotent; safe to call
// on a never-opened or already-closed session.
func (m *LinkManager) Release(deviceID string) {
	m.mu.Lock()
	link, ok := m.links[deviceID]
	delete(m.links, deviceID)
	m.mu.Unlock()

	if !ok || link == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), link.timeout)
	defer cancel()
	if err := link.driver.Disconnect(ctx); err != nil {
		slog.Warn("Terminal disconnect failed", "addr", link.addr, "error", err)
	}
}

// Busy reports whether a session for the device is currently live.
func (m *LinkManager) Busy(deviceID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, live := m.links[deviceID]
	return live
}

// ReleaseAll tears down every live session, used on shutdown.
func (m *LinkManager) ReleaseAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.links))
	for id := range m.links {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Release(id)
	}
}

// PullEvents returns at most max punches recorded at or after since, in
// ascending timestamp order, plus whether the device reported more. The
// caller re-pulls with an advanced since cursor to drain the rest.
func (l *Link) PullEvents(ctx context.Context, since time.Time, max int) ([]RawPunch, bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	punches, err := l.driver.Attendance(callCtx, since)
	if err != nil {
		if callCtx.Err() != nil && ctx.Err() == nil {
			return nil, false, fmt.Errorf("pull events %s: %w", l.addr, ErrTimeout)
		}
		return nil, false, fmt.Errorf("pull events %s: %w", l.addr, err)
	}

	sort.SliceStable(punches, func(i, j int) bool {
		return punches[i].Timestamp.Before(punches[j].Timestamp)
	})

	if max > 0 && len(punches) > max {
		return punches[:max], true, nil
	}
	return punches, false, nil
}

// PullUsers reads the terminal's user table.
func (l *Link) PullUsers(ctx context.Context) ([]User, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	users, err := l.driver.Users(callCtx)
	if err != nil {
		return nil, fmt.Errorf("pull users %s: %w", l.addr, err)
	}
	return users, nil
}

// PushUsers writes users to the terminal, returning how many were
// accepted. Individual failures are counted, not fatal.
func (l *Link) PushUsers(ctx context.Context, users []User) (int, error) {
	pushed := 0
	for _, u := range users {
		callCtx, cancel := context.WithTimeout(ctx, l.timeout)
		err := l.driver.SetUser(callCtx, u)
		cancel()
		if err != nil {
			if ctx.Err() != nil {
				return pushed, fmt.Errorf("push users %s: %w", l.addr, ctx.Err())
			}
			slog.Warn("Failed to push user to terminal", "addr", l.addr, "device_user_id", u.DeviceUserID, "error", err)
			continue
		}
		pushed++
	}
	return pushed, nil
}

// ClearRemoteLog wipes the terminal's attendance log.
func (l *Link) ClearRemoteLog(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.driver.ClearAttendance(callCtx); err != nil {
		return fmt.Errorf("clear remote log %s: %w", l.addr, err)
	}
	return nil
}

// Restart reboots the terminal. The session is unusable afterwards and
// should be released.
func (l *Link) Restart(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	if err := l.driver.Restart(callCtx); err != nil {
		return fmt.Errorf("restart %s: %w", l.addr, err)
	}
	return nil
}

// Info reads the terminal's identity snapshot.
func (l *Link) Info(ctx context.Context) (Info, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()
	info, err := l.driver.Info(callCtx)
	if err != nil {
		return Info{}, fmt.Errorf("device info %s: %w", l.addr, err)
	}
	return info, nil
}
