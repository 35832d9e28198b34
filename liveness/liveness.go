// Package liveness implements the periodic data-starvation and
// missing-configuration watchdog, driven by a time.Ticker the same way
// the bundled PMU simulator drives its data sender.
package liveness

import (
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// Host is the subset of the mapper's connection-cycle operations the
// monitor needs to drive recovery. Defined here, implemented by the
// mapper, to avoid an import cycle between the two packages.
type Host interface {
	// RestartConnectCycle tears down and re-establishes the current
	// connection.
	RestartConnectCycle()

	// LoadCachedConfiguration feeds the last-known-good configuration
	// into the parser, bypassing the wire.
	LoadCachedConfiguration()

	// SupportsCommands reports whether the active parser connection can
	// be commanded to restart.
	SupportsCommands() bool
}

// Monitor is a ticker that inspects bytesReceived/receivedConfigFrame
// state reported by the mapper and triggers recovery when the device
// has gone quiet or never sent a configuration frame.
type Monitor struct {
	host     Host
	interval time.Duration
	logger   *log.Logger

	allowCachedConfig bool

	bytesReceived  atomic.Uint64
	configReceived atomic.Bool

	cachedConfigLoadAttempted atomic.Bool

	mu      sync.Mutex
	ticker  *time.Ticker
	stop    chan struct{}
	running bool
}

// New creates a Monitor. interval is the tick period (the
// dataLossInterval setting, default 5s); allowCachedConfig mirrors
// allowUseOfCachedConfiguration.
func New(host Host, interval time.Duration, allowCachedConfig bool, logger *log.Logger) *Monitor {
	if logger == nil {
		logger = log.New()
	}
	return &Monitor{
		host:              host,
		interval:          interval,
		allowCachedConfig: allowCachedConfig,
		logger:            logger,
	}
}

// NoteBytesReceived accumulates wire bytes observed since the last tick.
func (m *Monitor) NoteBytesReceived(n int) {
	m.bytesReceived.Add(uint64(n))
}

// NoteConfigurationReceived marks that the current connection has
// received at least one configuration frame, suppressing the
// no-configuration recovery branch.
func (m *Monitor) NoteConfigurationReceived() {
	m.configReceived.Store(true)
}

// Reset clears per-connection state, called on connectionEstablished.
// configurationChanged only disables and re-enables the monitor.
func (m *Monitor) Reset() {
	m.bytesReceived.Store(0)
	m.configReceived.Store(false)
	m.cachedConfigLoadAttempted.Store(false)
}

// Enable starts the ticker. A no-op if already running.
func (m *Monitor) Enable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	m.running = true
	m.ticker = time.NewTicker(m.interval)
	m.stop = make(chan struct{})

	go m.loop(m.ticker, m.stop)
}

// Disable stops the ticker. A no-op if not running.
func (m *Monitor) Disable() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}
	m.running = false
	m.ticker.Stop()
	close(m.stop)
}

func (m *Monitor) loop(ticker *time.Ticker, stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			m.tick()
		}
	}
}

func (m *Monitor) tick() {
	bytes := m.bytesReceived.Swap(0)

	if bytes == 0 {
		if m.host.SupportsCommands() {
			m.logger.Warn("no bytes received since last liveness tick, restarting connect cycle")
			m.Disable()
			m.host.RestartConnectCycle()
		}
		return
	}

	if !m.configReceived.Load() && m.allowCachedConfig {
		if m.cachedConfigLoadAttempted.CompareAndSwap(false, true) {
			m.logger.Info("no configuration frame received yet, loading cached configuration")
			m.host.LoadCachedConfiguration()
			return
		}
		if m.host.SupportsCommands() {
			m.logger.Warn("still no configuration frame after cached-configuration attempt, restarting connect cycle")
			m.host.RestartConnectCycle()
		}
	}
}

// CachedConfigLoadAttempted reports whether this connection has already
// tried the cached-configuration path.
func (m *Monitor) CachedConfigLoadAttempted() bool {
	return m.cachedConfigLoadAttempted.Load()
}
