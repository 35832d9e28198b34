// Package mapper implements the engine that orchestrates the frame
// parser, device table, measurement catalog and liveness monitor, and
// turns decoded data frames into batches of mapped measurements.
package mapper

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/gridmetric/phasoradapter/catalog"
	"github.com/gridmetric/phasoradapter/configcache"
	"github.com/gridmetric/phasoradapter/configsource"
	"github.com/gridmetric/phasoradapter/devicetable"
	"github.com/gridmetric/phasoradapter/frameparser"
	"github.com/gridmetric/phasoradapter/liveness"
	"github.com/gridmetric/phasoradapter/metrics"
	"github.com/gridmetric/phasoradapter/settings"
	"github.com/gridmetric/phasoradapter/signalref"
)

// latencyStats accumulates the rolling min/max/total latency sample set
// under its own mutex since it is read by GetShortStatus from an
// administrative thread.
type latencyStats struct {
	mu    sync.Mutex
	min   time.Duration
	max   time.Duration
	total time.Duration
	count uint64
}

func (l *latencyStats) observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.count == 0 {
		l.min, l.max = d, d
	} else {
		if d < l.min {
			l.min = d
		}
		if d > l.max {
			l.max = d
		}
	}
	l.total += d
	l.count++
}

func (l *latencyStats) reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.min, l.max, l.total, l.count = 0, 0, 0, 0
}

func (l *latencyStats) snapshot() (min, max, avg time.Duration, count uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.count == 0 {
		return 0, 0, 0, 0
	}
	return l.min, l.max, l.total / time.Duration(l.count), l.count
}

// Mapper orchestrates one device connection end to end: frame parser,
// device table, measurement catalog, and liveness monitor.
type Mapper struct {
	name    string
	address string

	source  configsource.Source
	cache   *configcache.Store
	sink    MeasurementSink
	logger  *log.Logger
	metrics *metrics.Recorder

	settings settings.Settings

	devices atomic.Pointer[devicetable.Table]
	catalog atomic.Pointer[catalog.Catalog]

	parser  *frameparser.Adapter
	monitor *liveness.Monitor

	state      atomic.Int32
	enabled    atomic.Bool
	stopEvents chan struct{}

	connMu               sync.Mutex
	lastReportTime       time.Time
	bytesReceivedThisRun uint64
	outOfOrderFrames     uint64
	configurationChanges uint64
	receivedConfigFrame  bool
	connectionAttempts   uint64

	latency latencyStats

	startedAt time.Time
}

// New constructs a Mapper bound to name/address. Call Initialize before
// AttemptConnection.
func New(name, address string, source configsource.Source, cache *configcache.Store, sink MeasurementSink, recorder *metrics.Recorder, logger *log.Logger) *Mapper {
	if logger == nil {
		logger = log.New()
	}
	m := &Mapper{
		name:    name,
		address: address,
		source:  source,
		cache:   cache,
		sink:    sink,
		logger:  logger,
		metrics: recorder,
	}
	m.devices.Store(devicetable.New())
	m.catalog.Store(catalog.New(nil))
	m.state.Store(int32(stateInit))
	return m
}

func (m *Mapper) setState(s connectionState) {
	m.state.Store(int32(s))
	m.metrics.ConnectionState(m.name, int(s))
}

func (m *Mapper) State() connectionState {
	return connectionState(m.state.Load())
}

// Initialize parses connectionString, loads the device table and
// measurement catalog from the configuration source, and constructs the
// frame parser.
func (m *Mapper) Initialize(connectionString string) error {
	parsed, err := settings.Parse(connectionString)
	if err != nil {
		return fmt.Errorf("mapper: invalid settings: %w", err)
	}
	m.settings = parsed

	if err := m.loadTopology(); err != nil {
		return fmt.Errorf("mapper: initial topology load: %w", err)
	}

	m.parser = frameparser.New(m.address, m.settings.AccessID, m.logger)
	m.monitor = liveness.New(m, m.settings.DataLossInterval, m.settings.AllowUseOfCachedConfiguration, m.logger)
	m.stopEvents = make(chan struct{})
	go m.runEventLoop(m.parser.Events(), m.stopEvents)

	if m.settings.ConfigurationFile != "" {
		frame, err := configcache.LoadFile(m.settings.ConfigurationFile)
		if err != nil {
			m.logger.WithError(err).Warn("failed to preload configuration file")
		} else {
			m.parser.InjectConfigurationFrame(frame)
		}
	}

	m.setState(stateIdle)
	return nil
}

// effectiveQueryID resolves the adapter's own topology ID, adopting
// sharedMapping's ID for database filtering when set.
func (m *Mapper) effectiveQueryID() (int64, error) {
	own, ok, err := m.source.ResolveAdapterByName(m.name)
	if err != nil {
		return 0, fmt.Errorf("resolve adapter %q: %w", m.name, err)
	}
	if !ok {
		return 0, fmt.Errorf("adapter %q not found in InputAdapters", m.name)
	}

	if m.settings.SharedMapping == "" {
		return own.ID, nil
	}

	shared, ok, err := m.source.ResolveAdapterByName(m.settings.SharedMapping)
	if err != nil {
		return 0, fmt.Errorf("resolve sharedMapping %q: %w", m.settings.SharedMapping, err)
	}
	if !ok {
		// Reported, offending entry dropped, adapter continues with its own
		// identity rather than failing outright.
		m.logger.WithField("sharedMapping", m.settings.SharedMapping).Warn("unknown sharedMapping adapter, falling back to own identity")
		return own.ID, nil
	}
	return shared.ID, nil
}

// loadTopology rebuilds the device table and measurement catalog from
// the configuration source. Called from Initialize and again,
// asynchronously, when configurationChanged fires mid-stream.
func (m *Mapper) loadTopology() error {
	queryID, err := m.effectiveQueryID()
	if err != nil {
		return err
	}

	var deviceRows []configsource.DeviceRow
	if m.settings.IsConcentrator {
		deviceRows, err = m.source.DevicesByParent(queryID)
		if err != nil {
			return fmt.Errorf("load concentrator devices: %w", err)
		}
	} else {
		row, ok, err := m.source.DeviceByAccessID(m.settings.AccessID)
		if err != nil {
			return fmt.Errorf("load device: %w", err)
		}
		if ok {
			deviceRows = []configsource.DeviceRow{row}
		}
	}

	records := make([]*devicetable.Record, 0, len(deviceRows))
	var measurementRows []configsource.MeasurementRow
	for _, d := range deviceRows {
		records = append(records, &devicetable.Record{
			IDCode:      d.AccessID,
			Label:       d.Acronym,
			StationName: d.Name,
			ExternalTag: d.ExternalTag,
			SignalRef:   signalref.New(d.Acronym),
		})

		rows, err := m.source.MeasurementsByDevice(d.ID)
		if err != nil {
			m.logger.WithError(err).WithField("device", d.Acronym).Warn("failed to load measurements for device")
			continue
		}
		measurementRows = append(measurementRows, rows...)
	}

	table, rejected := devicetable.Load(records)
	for _, r := range rejected {
		m.logger.WithFields(log.Fields{"idCode": r.IDCode, "label": r.Label, "reason": r.Reason}).
			Warn("device rejected from device table")
	}

	descriptors := make([]*catalog.Descriptor, 0, len(measurementRows))
	for _, row := range measurementRows {
		descriptors = append(descriptors, &catalog.Descriptor{
			SignalID:        row.SignalID,
			Key:             row.Key,
			SignalReference: row.SignalReference,
			Adder:           row.Adder,
			Multiplier:      row.Multiplier,
		})
	}

	m.devices.Store(table)
	m.catalog.Store(catalog.New(descriptors))
	return nil
}

// AttemptConnection resets per-connection state and starts the frame
// parser.
func (m *Mapper) AttemptConnection() error {
	m.enabled.Store(true)

	m.connMu.Lock()
	m.lastReportTime = time.Time{}
	m.bytesReceivedThisRun = 0
	m.outOfOrderFrames = 0
	m.receivedConfigFrame = false
	m.connMu.Unlock()

	m.setState(stateConnecting)
	if err := m.parser.Start(); err != nil {
		return fmt.Errorf("mapper: attemptConnection: %w", err)
	}
	return nil
}

// AttemptDisconnection disables the LivenessMonitor, then stops the
// parser. In-flight frame processing is allowed to complete; there is no
// hard cancel.
func (m *Mapper) AttemptDisconnection() {
	m.enabled.Store(false)
	if m.monitor != nil {
		m.monitor.Disable()
	}
	if m.parser != nil {
		m.parser.Stop()
	}
	m.setState(stateIdle)
}

// Close tears down the mapper permanently, stopping the event loop.
func (m *Mapper) Close() {
	m.AttemptDisconnection()
	if m.stopEvents != nil {
		close(m.stopEvents)
	}
}

// SendCommand forwards cmd to the frame parser.
func (m *Mapper) SendCommand(cmd DeviceCommand) error {
	if m.parser == nil {
		return fmt.Errorf("mapper: not initialized")
	}
	return m.parser.SendCommand(uint16(cmd))
}

// ResetStatistics zeroes adapter-wide counters.
func (m *Mapper) ResetStatistics() {
	m.connMu.Lock()
	m.outOfOrderFrames = 0
	m.connectionAttempts = 0
	m.configurationChanges = 0
	m.connMu.Unlock()
	m.latency.reset()
}

// ResetDeviceStatistics zeroes one device's counters.
func (m *Mapper) ResetDeviceStatistics(idCode uint16) {
	if r, ok := m.devices.Load().ByIDCode(idCode); ok {
		r.ResetStatistics()
	}
}

// LoadCachedConfiguration feeds the last-known-good configuration frame
// into the parser, bypassing the wire. Implements liveness.Host.
func (m *Mapper) LoadCachedConfiguration() {
	frame, err := m.cache.Load(m.name)
	if err != nil {
		m.logger.WithError(err).Warn("failed to load cached configuration")
		return
	}
	if frame == nil {
		m.logger.Warn("no cached configuration available")
		return
	}
	m.parser.InjectConfigurationFrame(frame)
}

// LoadConfiguration feeds an arbitrary configuration file into the
// parser, bypassing the wire.
func (m *Mapper) LoadConfiguration(path string) error {
	frame, err := configcache.LoadFile(path)
	if err != nil {
		return fmt.Errorf("mapper: loadConfiguration: %w", err)
	}
	m.parser.InjectConfigurationFrame(frame)
	return nil
}

// RestartConnectCycle implements liveness.Host: tears the connection
// down and reconnects after the configured delayedConnectionInterval
// backoff.
func (m *Mapper) RestartConnectCycle() {
	if !m.enabled.Load() {
		return
	}
	m.parser.Stop()
	delay := m.settings.DelayedConnectionInterval
	go func() {
		time.Sleep(delay)
		if m.enabled.Load() {
			if err := m.AttemptConnection(); err != nil {
				m.logger.WithError(err).Warn("restart connect cycle failed")
			}
		}
	}()
}

// SupportsCommands implements liveness.Host.
func (m *Mapper) SupportsCommands() bool {
	return m.parser != nil && m.parser.SupportsCommands()
}

// LogConfiguration logs the resolved device table, station by station,
// at the same granularity the frame parser's own PMU fixture logs its
// simulated station list.
func (m *Mapper) LogConfiguration() {
	records := m.devices.Load().All()
	m.logger.WithFields(log.Fields{
		"adapter":      m.name,
		"device_count": len(records),
	}).Info("mapper device table")

	for _, r := range records {
		m.logger.WithFields(log.Fields{
			"id_code":      r.IDCode,
			"label":        r.Label,
			"station_name": r.StationName,
		}).Debug("mapper device")
	}
}

// GetShortStatus renders a bounded one-line status string.
func (m *Mapper) GetShortStatus(maxLen int) string {
	min, max, avg, n := m.latency.snapshot()
	uptime := time.Duration(0)
	if !m.startedAt.IsZero() {
		uptime = time.Since(m.startedAt)
	}

	status := fmt.Sprintf("%s [%s] uptime=%s rate=%dHz latency(min/avg/max)=%s/%s/%s samples=%d",
		m.name, m.State(), uptime.Round(time.Second), m.settings.DefinedFrameRate, min, avg, max, n)

	if len(status) > maxLen && maxLen > 0 {
		status = status[:maxLen]
	}
	return status
}
