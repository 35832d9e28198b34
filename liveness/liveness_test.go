package liveness

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHost struct {
	restarts   atomic.Int32
	cacheLoads atomic.Int32
	commands   bool
}

func (h *fakeHost) RestartConnectCycle()     { h.restarts.Add(1) }
func (h *fakeHost) LoadCachedConfiguration() { h.cacheLoads.Add(1) }
func (h *fakeHost) SupportsCommands() bool   { return h.commands }

func TestMonitorRestartsOnSilence(t *testing.T) {
	host := &fakeHost{commands: true}
	m := New(host, 10*time.Millisecond, true, nil)
	m.Enable()
	defer m.Disable()

	require.Eventually(t, func() bool { return host.restarts.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestMonitorLoadsCachedConfigThenRestarts(t *testing.T) {
	host := &fakeHost{commands: true}
	m := New(host, 10*time.Millisecond, true, nil)
	m.NoteBytesReceived(1)
	m.Enable()
	defer m.Disable()

	require.Eventually(t, func() bool { return host.cacheLoads.Load() >= 1 }, time.Second, 5*time.Millisecond)
	assert.True(t, m.CachedConfigLoadAttempted())

	require.Eventually(t, func() bool { return host.restarts.Load() >= 1 }, time.Second, 5*time.Millisecond)
}

func TestMonitorSuppressesCacheLoadOnceConfigReceived(t *testing.T) {
	host := &fakeHost{commands: true}
	m := New(host, 10*time.Millisecond, true, nil)
	m.NoteBytesReceived(1)
	m.NoteConfigurationReceived()
	m.Enable()
	defer m.Disable()

	// Keep bytes flowing so every tick reaches the configuration check
	// instead of the silence branch, which would restart the cycle.
	deadline := time.Now().Add(50 * time.Millisecond)
	for time.Now().Before(deadline) {
		m.NoteBytesReceived(1)
		time.Sleep(2 * time.Millisecond)
	}
	assert.Equal(t, int32(0), host.cacheLoads.Load())
	assert.Equal(t, int32(0), host.restarts.Load())
}

func TestMonitorResetClearsState(t *testing.T) {
	host := &fakeHost{commands: true}
	m := New(host, time.Second, true, nil)
	m.NoteBytesReceived(5)
	m.NoteConfigurationReceived()
	m.cachedConfigLoadAttempted.Store(true)

	m.Reset()

	assert.Equal(t, uint64(0), m.bytesReceived.Load())
	assert.False(t, m.configReceived.Load())
	assert.False(t, m.CachedConfigLoadAttempted())
}
