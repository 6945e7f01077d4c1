package device

import (
	"net"
	"strconv"
	"time"
)

// Health is the orchestrator-derived status of a terminal.
type Health string

const (
	HealthInitializing Health = "initializing"
	HealthOnline       Health = "online"
	HealthOffline      Health = "offline"
	HealthError        Health = "error"
	HealthSyncing      Health = "syncing"
)

func (h Health) Valid() bool {
	switch h {
	case HealthInitializing, HealthOnline, HealthOffline, HealthError, HealthSyncing:
		return true
	}
	return false
}

type Device struct {
	ID          string
	SerialID    string
	Name        string
	IP          string
	Port        int
	Location    *string
	Description *string
	IsActive    bool

	// SyncIntervalMinutes is the declared pull cadence; zero disables
	// scheduled syncs for the device.
	SyncIntervalMinutes int

	LastSync  *time.Time
	Health    Health
	LastError *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Addr returns the terminal's network address in host:port form.
func (d Device) Addr() string {
	return net.JoinHostPort(d.IP, strconv.Itoa(d.Port))
}
