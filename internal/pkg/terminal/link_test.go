package terminal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cmlabs-hris/device-sync-go/internal/domain/device"
)

func linkTestDevice() device.Device {
	return device.Device{ID: "dev-1", SerialID: "SN-001", IP: "10.0.0.5", Port: 4370}
}

func newTestManager(sim *Simulator) *LinkManager {
	factory := func(string, time.Duration) Driver { return sim }
	return NewLinkManager(factory, time.Second, time.Second).WithProbe(NoProbe)
}

func TestLinkManager_Acquire_SecondAcquireIsBusy(t *testing.T) {
	dev := linkTestDevice()
	m := newTestManager(NewSimulator(dev.Addr()))

	_, err := m.Acquire(context.Background(), dev)
	require.NoError(t, err)
	assert.True(t, m.Busy(dev.ID))

	_, err = m.Acquire(context.Background(), dev)
	assert.ErrorIs(t, err, ErrBusy)
}

func TestLinkManager_Acquire_ProbeFailureClassified(t *testing.T) {
	dev := linkTestDevice()
	sim := NewSimulator(dev.Addr())
	m := NewLinkManager(func(string, time.Duration) Driver { return sim }, time.Second, time.Second).
		WithProbe(func(addr string, _ time.Duration) error {
			return errors.New("connection refused")
		})

	_, err := m.Acquire(context.Background(), dev)
	require.Error(t, err)
	// A failed probe leaves no reserved slot behind.
	assert.False(t, m.Busy(dev.ID))

	_, err = m.Acquire(context.Background(), dev)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrBusy)
}

func TestLinkManager_Acquire_HandshakeFailureIsProtocolError(t *testing.T) {
	dev := linkTestDevice()
	sim := NewSimulator(dev.Addr())
	sim.ConnectErr = errors.New("bad banner")
	m := newTestManager(sim)

	_, err := m.Acquire(context.Background(), dev)
	assert.ErrorIs(t, err, ErrProtocol)
	assert.False(t, m.Busy(dev.ID))
}

func TestLinkManager_Release_Idempotent(t *testing.T) {
	dev := linkTestDevice()
	m := newTestManager(NewSimulator(dev.Addr()))

	_, err := m.Acquire(context.Background(), dev)
	require.NoError(t, err)

	m.Release(dev.ID)
	assert.False(t, m.Busy(dev.ID))
	m.Release(dev.ID)
	m.Release("never-acquired")

	// The slot is free for a new session.
	_, err = m.Acquire(context.Background(), dev)
	assert.NoError(t, err)
}

func TestLinkManager_ReleaseAll(t *testing.T) {
	devA := linkTestDevice()
	devB := device.Device{ID: "dev-2", SerialID: "SN-002", IP: "10.0.0.6", Port: 4370}
	m := NewLinkManager(func(addr string, _ time.Duration) Driver { return NewSimulator(addr) }, time.Second, time.Second).
		WithProbe(NoProbe)

	_, err := m.Acquire(context.Background(), devA)
	require.NoError(t, err)
	_, err = m.Acquire(context.Background(), devB)
	require.NoError(t, err)

	m.ReleaseAll()
	assert.False(t, m.Busy(devA.ID))
	assert.False(t, m.Busy(devB.ID))
}

func TestLink_PullEvents_SortsAndTruncates(t *testing.T) {
	dev := linkTestDevice()
	sim := NewSimulator(dev.Addr())
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	sim.Load(
		RawPunch{DeviceUserID: "103", Timestamp: base.Add(2 * time.Hour)},
		RawPunch{DeviceUserID: "101", Timestamp: base},
		RawPunch{DeviceUserID: "102", Timestamp: base.Add(time.Hour)},
	)
	m := newTestManager(sim)

	link, err := m.Acquire(context.Background(), dev)
	require.NoError(t, err)
	defer m.Release(dev.ID)

	punches, more, err := link.PullEvents(context.Background(), base, 2)
	require.NoError(t, err)
	assert.True(t, more)
	require.Len(t, punches, 2)
	assert.Equal(t, "101", punches[0].DeviceUserID)
	assert.Equal(t, "102", punches[1].DeviceUserID)

	// Advancing the cursor drains the rest.
	rest, more, err := link.PullEvents(context.Background(), punches[1].Timestamp.Add(time.Second), 2)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, rest, 1)
	assert.Equal(t, "103", rest[0].DeviceUserID)
}

func TestLink_PullEvents_HonorsSinceCursor(t *testing.T) {
	dev := linkTestDevice()
	sim := NewSimulator(dev.Addr())
	base := time.Date(2026, 8, 10, 9, 0, 0, 0, time.UTC)
	sim.Load(
		RawPunch{DeviceUserID: "101", Timestamp: base.Add(-time.Hour)},
		RawPunch{DeviceUserID: "101", Timestamp: base.Add(time.Hour)},
	)
	m := newTestManager(sim)

	link, err := m.Acquire(context.Background(), dev)
	require.NoError(t, err)
	defer m.Release(dev.ID)

	punches, more, err := link.PullEvents(context.Background(), base, 100)
	require.NoError(t, err)
	assert.False(t, more)
	require.Len(t, punches, 1)
	assert.Equal(t, base.Add(time.Hour), punches[0].Timestamp)
}

func TestLink_PushUsers_CountsAccepted(t *testing.T) {
	dev := linkTestDevice()
	sim := NewSimulator(dev.Addr())
	m := newTestManager(sim)

	link, err := m.Acquire(context.Background(), dev)
	require.NoError(t, err)
	defer m.Release(dev.ID)

	pushed, err := link.PushUsers(context.Background(), []User{
		{DeviceUserID: "101", Name: "Ayu Lestari"},
		{DeviceUserID: "102", Name: "Budi Santoso"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, pushed)

	users, err := link.PullUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(ErrBusy))
	assert.True(t, Retryable(ErrTimeout))
	assert.False(t, Retryable(ErrUnreachable))
	assert.False(t, Retryable(ErrProtocol))
	assert.False(t, Retryable(errors.New("other")))
}
