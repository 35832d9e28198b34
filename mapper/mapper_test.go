package mapper

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gridmetric/phasoradapter/configcache"
	"github.com/gridmetric/phasoradapter/configsource"
	"github.com/gridmetric/phasoradapter/protocol"
)

type recordingSink struct {
	mu      sync.Mutex
	batches [][]MappedMeasurement
}

func (s *recordingSink) Emit(adapterName string, batch []MappedMeasurement) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
}

func (s *recordingSink) last() []MappedMeasurement {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return nil
	}
	return s.batches[len(s.batches)-1]
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

// singleDeviceSource builds the minimal MemorySource for a non-concentrator
// adapter "ADAPTER1" whose one device D7 (accessID 7) has 2 phasors, 1
// analog, 0 digital, and a catalog covering every signal except Status.
func singleDeviceSource() *configsource.MemorySource {
	return &configsource.MemorySource{
		Adapters: []configsource.AdapterRow{{ID: 1, AdapterName: "ADAPTER1"}},
		Devices: []configsource.DeviceRow{
			{ID: 100, ParentID: 1, AccessID: 7, Acronym: "D7", Name: "Station Seven"},
		},
		Measurements: []configsource.MeasurementRow{
			{DeviceID: 100, SignalReference: "D7!IS-PA1", SignalID: uuid.New()},
			{DeviceID: 100, SignalReference: "D7!IS-PM1", SignalID: uuid.New()},
			{DeviceID: 100, SignalReference: "D7!IS-PA2", SignalID: uuid.New()},
			{DeviceID: 100, SignalReference: "D7!IS-PM2", SignalID: uuid.New()},
			{DeviceID: 100, SignalReference: "D7!IS-FQ", SignalID: uuid.New()},
			{DeviceID: 100, SignalReference: "D7!IS-DF", SignalID: uuid.New()},
			{DeviceID: 100, SignalReference: "D7!IS-AV1", SignalID: uuid.New()},
		},
	}
}

func startFixturePMU(t *testing.T) *protocol.PMU {
	t.Helper()

	pmu := protocol.NewPMU()
	pmu.Config2.IDCode = 7
	pmu.Config2.DataRate = 30
	st := protocol.NewPMUStation("D7", 7, true, true, true, false)
	st.AddPhasor("VA", 1, protocol.PhunitVoltage)
	st.AddPhasor("VB", 1, protocol.PhunitVoltage)
	st.AddAnalog("PWR", 1, protocol.AnunitPow)
	pmu.Config2.AddPMUStation(st)
	pmu.Config1.ConfigFrame = *pmu.Config2

	require.NoError(t, pmu.Start("127.0.0.1:0"))
	t.Cleanup(pmu.Stop)
	return pmu
}

func TestMapperSingleDeviceHappyPath(t *testing.T) {
	pmu := startFixturePMU(t)
	sink := &recordingSink{}
	dir := t.TempDir()
	cache, err := configcache.New(dir, nil)
	require.NoError(t, err)
	defer cache.Close()

	m := New("ADAPTER1", pmu.Addr().String(), singleDeviceSource(), cache, sink, nil, nil)
	require.NoError(t, m.Initialize("accessID=7"))
	defer m.Close()

	require.NoError(t, m.AttemptConnection())

	require.Eventually(t, func() bool { return m.State() == stateConnectedNoConfig || m.State() == stateStreaming }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.SendCommand(DeviceCommand(protocol.CmdCfg2)))
	require.Eventually(t, func() bool { return m.State() == stateStreaming }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, m.SendCommand(DeviceCommand(protocol.CmdStart)))
	require.Eventually(t, func() bool { return sink.count() > 0 }, 2*time.Second, 10*time.Millisecond)

	batch := sink.last()
	assert.Len(t, batch, 7)
	for _, mm := range batch {
		assert.NotEqual(t, uuid.Nil, mm.SignalID)
	}
}

func TestMapperUndefinedDeviceIsDropped(t *testing.T) {
	pmu := protocol.NewPMU()
	pmu.Config2.IDCode = 9
	pmu.Config2.DataRate = 30
	st := protocol.NewPMUStation("GHOST", 9, true, true, true, false)
	st.AddPhasor("VA", 1, protocol.PhunitVoltage)
	pmu.Config2.AddPMUStation(st)
	pmu.Config1.ConfigFrame = *pmu.Config2
	require.NoError(t, pmu.Start("127.0.0.1:0"))
	t.Cleanup(pmu.Stop)

	sink := &recordingSink{}
	dir := t.TempDir()
	cache, err := configcache.New(dir, nil)
	require.NoError(t, err)
	defer cache.Close()

	source := &configsource.MemorySource{
		Adapters: []configsource.AdapterRow{{ID: 1, AdapterName: "ADAPTER1"}},
		// No DeviceByAccessID(9) row: every station in the wire frame is undefined.
	}

	m := New("ADAPTER1", pmu.Addr().String(), source, cache, sink, nil, nil)
	require.NoError(t, m.Initialize("accessID=9"))
	defer m.Close()

	require.NoError(t, m.AttemptConnection())
	require.Eventually(t, func() bool { return m.State() != stateConnecting }, time.Second, 5*time.Millisecond)
	require.NoError(t, m.SendCommand(DeviceCommand(protocol.CmdCfg2)))
	require.NoError(t, m.SendCommand(DeviceCommand(protocol.CmdStart)))

	require.Eventually(t, func() bool { return sink.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sink.last())

	counts := m.devices.Load().UndefinedCounts()
	assert.GreaterOrEqual(t, counts["GHOST"], uint64(1))
}

func TestMapperOutOfOrderFrameCountsOnceAndKeepsLastReportTime(t *testing.T) {
	m := &Mapper{name: "ADAPTER1"}
	m.lastReportTime = time.Unix(1000, 0)

	m.trackOrder(time.Unix(999, 0))
	assert.Equal(t, uint64(1), m.outOfOrderFrames)
	assert.Equal(t, time.Unix(1000, 0), m.lastReportTime)

	m.trackOrder(time.Unix(1001, 0))
	assert.Equal(t, uint64(1), m.outOfOrderFrames)
	assert.Equal(t, time.Unix(1001, 0), m.lastReportTime)
}

func TestMapperTimeAdjustmentTicksShiftsTimestamp(t *testing.T) {
	m := &Mapper{}
	m.settings.TimeAdjustmentTicks = 10_000_000 // 1 second, in 100ns ticks

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	adjusted := m.normalizeTimestamp(base)

	assert.Equal(t, base.Add(time.Second), adjusted)
}

func TestMapperGetShortStatusIsBounded(t *testing.T) {
	m := &Mapper{name: "ADAPTER1"}
	status := m.GetShortStatus(10)
	assert.LessOrEqual(t, len(status), 10)
}

// TestMapperIdCodeCollisionResolvedByLabel covers a concentrator whose two
// child devices share an accessID (both report idCode 1 on the wire); both
// should still resolve by station label once the collision demotes them
// into devicetable's secondary map.
func TestMapperIdCodeCollisionResolvedByLabel(t *testing.T) {
	pmu := protocol.NewPMU()
	pmu.Config2.IDCode = 1
	pmu.Config2.DataRate = 30
	stA := protocol.NewPMUStation("A", 1, true, true, true, false)
	stA.AddPhasor("VA", 1, protocol.PhunitVoltage)
	stB := protocol.NewPMUStation("B", 1, true, true, true, false)
	stB.AddPhasor("VA", 1, protocol.PhunitVoltage)
	pmu.Config2.AddPMUStation(stA)
	pmu.Config2.AddPMUStation(stB)
	pmu.Config1.ConfigFrame = *pmu.Config2
	require.NoError(t, pmu.Start("127.0.0.1:0"))
	t.Cleanup(pmu.Stop)

	sink := &recordingSink{}
	dir := t.TempDir()
	cache, err := configcache.New(dir, nil)
	require.NoError(t, err)
	defer cache.Close()

	source := &configsource.MemorySource{
		Adapters: []configsource.AdapterRow{{ID: 1, AdapterName: "ADAPTER1"}},
		Devices: []configsource.DeviceRow{
			{ID: 100, ParentID: 1, AccessID: 1, Acronym: "A", Name: "Station A"},
			{ID: 101, ParentID: 1, AccessID: 1, Acronym: "B", Name: "Station B"},
		},
		Measurements: []configsource.MeasurementRow{
			{DeviceID: 100, SignalReference: "A!IS-PA1", SignalID: uuid.New()},
			{DeviceID: 101, SignalReference: "B!IS-PA1", SignalID: uuid.New()},
		},
	}

	m := New("ADAPTER1", pmu.Addr().String(), source, cache, sink, nil, nil)
	require.NoError(t, m.Initialize("isConcentrator=true;accessID=1"))
	defer m.Close()

	devices := m.devices.Load()
	_, okA := devices.Resolve("A", 1)
	_, okB := devices.Resolve("B", 1)
	assert.True(t, okA)
	assert.True(t, okB)
	assert.Len(t, devices.All(), 2)
}

// TestMapperCachedConfigFallback covers the liveness monitor's
// cached-configuration path: bytes flow but no configuration frame arrives
// before the first liveness tick, so the monitor injects the last cached
// configuration and data frames map normally afterward.
func TestMapperCachedConfigFallback(t *testing.T) {
	pmu := startFixturePMU(t)
	sink := &recordingSink{}
	dir := t.TempDir()
	cache, err := configcache.New(dir, nil)
	require.NoError(t, err)
	defer cache.Close()

	cache.Cache("ADAPTER1", &pmu.Config1.ConfigFrame)
	require.Eventually(t, func() bool {
		frame, err := cache.Load("ADAPTER1")
		return err == nil && frame != nil
	}, time.Second, 5*time.Millisecond)

	m := New("ADAPTER1", pmu.Addr().String(), singleDeviceSource(), cache, sink, nil, nil)
	require.NoError(t, m.Initialize("accessID=7;dataLossInterval=0.05;allowUseOfCachedConfiguration=true"))
	defer m.Close()

	require.NoError(t, m.AttemptConnection())
	// Start the data stream without requesting a configuration frame, so
	// bytes flow before the first liveness tick.
	require.NoError(t, m.SendCommand(DeviceCommand(protocol.CmdStart)))

	require.Eventually(t, func() bool { return m.monitor.CachedConfigLoadAttempted() }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return m.State() == stateStreaming || m.State() == stateConnectedNoConfig }, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool { return sink.count() > 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sink.last(), 7)
}

func TestMapperLogConfigurationDoesNotPanicOnLoadedTable(t *testing.T) {
	dir := t.TempDir()
	cache, err := configcache.New(dir, nil)
	require.NoError(t, err)
	defer cache.Close()

	m := New("ADAPTER1", "127.0.0.1:0", singleDeviceSource(), cache, &recordingSink{}, nil, nil)
	require.NoError(t, m.Initialize("accessID=7"))
	defer m.Close()

	assert.NotPanics(t, m.LogConfiguration)
}
