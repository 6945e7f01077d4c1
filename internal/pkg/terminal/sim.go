package terminal

import (
	"context"
	"sync"
	"time"
)

// Simulator is an in-memory terminal driver. It backs the "sim" driver
// mode for local development and the engine tests; it never touches the
// network.
type Simulator struct {
	mu        sync.Mutex
	addr      string
	connected bool

	punches []RawPunch
	users   []User
	info    Info

	// Fault hooks; when set, the corresponding call returns the error.
	ConnectErr    error
	AttendanceErr error
	cleared       bool
	restarted     bool
}

func NewSimulator(addr string) *Simulator {
	return &Simulator{
		addr: addr,
		info: Info{SerialNumber: "SIM-" + addr, FirmwareVersion: "sim-1.0", Platform: "simulator"},
	}
}

// SimulatorFactory returns a DriverFactory serving one shared simulator
// per address.
func SimulatorFactory() DriverFactory {
	var mu sync.Mutex
	sims := make(map[string]*Simulator)
	return func(addr string, _ time.Duration) Driver {
		mu.Lock()
		defer mu.Unlock()
		sim, ok := sims[addr]
		if !ok {
			sim = NewSimulator(addr)
			sims[addr] = sim
		}
		return sim
	}
}

// Load seeds the simulator's punch log.
func (s *Simulator) Load(punches ...RawPunch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.punches = append(s.punches, punches...)
}

// LoadUsers seeds the simulator's user table.
func (s *Simulator) LoadUsers(users ...User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = append(s.users, users...)
}

func (s *Simulator) Connect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ConnectErr != nil {
		return s.ConnectErr
	}
	s.connected = true
	return nil
}

func (s *Simulator) Disconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	return nil
}

func (s *Simulator) Attendance(_ context.Context, since time.Time) ([]RawPunch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.AttendanceErr != nil {
		return nil, s.AttendanceErr
	}
	var out []RawPunch
	for _, p := range s.punches {
		if p.Timestamp.Before(since) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Simulator) Users(_ context.Context) ([]User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]User(nil), s.users...), nil
}

func (s *Simulator) SetUser(_ context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.users {
		if existing.DeviceUserID == u.DeviceUserID {
			s.users[i] = u
			return nil
		}
	}
	s.users = append(s.users, u)
	return nil
}

func (s *Simulator) ClearAttendance(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.punches = nil
	s.cleared = true
	return nil
}

func (s *Simulator) Restart(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.restarted = true
	return nil
}

func (s *Simulator) Info(_ context.Context) (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := s.info
	info.UserCount = len(s.users)
	info.RecordCount = len(s.punches)
	return info, nil
}
