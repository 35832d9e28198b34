package mapper

import (
	"math/cmplx"
	"time"

	"github.com/gridmetric/phasoradapter/catalog"
	"github.com/gridmetric/phasoradapter/devicetable"
	"github.com/gridmetric/phasoradapter/protocol"
	"github.com/gridmetric/phasoradapter/signalref"
)

// extractFrameMeasurements is the hot path: time normalization, order
// tracking, latency sampling, then one pass over the frame's per-station
// cells emitting mapped measurements in a fixed order.
func (m *Mapper) extractFrameMeasurements(frame *protocol.DataFrame) {
	if frame == nil || frame.AssociatedConfig == nil {
		return
	}

	timestamp := m.normalizeTimestamp(frame.Timestamp())
	m.trackOrder(timestamp)
	m.sampleLatency(timestamp)

	devices := m.devices.Load()
	cat := m.catalog.Load()

	batch := make([]MappedMeasurement, 0, 16)
	for _, station := range frame.AssociatedConfig.PMUStationList {
		batch = m.mapStation(devices, cat, station, timestamp, batch)
	}

	m.sink.Emit(m.name, batch)
}

// normalizeTimestamp applies the signed tick adjustment. The wire
// timestamp (DataFrame.Timestamp) is already UTC, since SOC is
// Unix-epoch seconds per the C37.118 encoding; timeZone only matters for
// simulateTimestamp's file-playback path, which this adapter does not
// implement.
func (m *Mapper) normalizeTimestamp(t time.Time) time.Time {
	return t.Add(time.Duration(m.settings.TimeAdjustmentTicks) * 100 * time.Nanosecond)
}

func (m *Mapper) trackOrder(timestamp time.Time) {
	m.connMu.Lock()
	defer m.connMu.Unlock()

	if timestamp.After(m.lastReportTime) {
		m.lastReportTime = timestamp
	} else {
		m.outOfOrderFrames++
		m.metrics.OutOfOrderFrame(m.name)
	}
}

func (m *Mapper) sampleLatency(timestamp time.Time) {
	d := time.Since(timestamp)
	m.latency.observe(d)
	m.metrics.MappingLatencySeconds(m.name, d.Seconds())
}

// mapStation resolves one PMU station's DeviceRecord and appends its
// measurements to batch, isolating any single-device fault so a panic
// mapping one station does not discard the rest of the frame's batch.
func (m *Mapper) mapStation(devices *devicetable.Table, cat *catalog.Catalog, station *protocol.PMUStation, timestamp time.Time, batch []MappedMeasurement) (result []MappedMeasurement) {
	result = batch
	defer func() {
		if r := recover(); r != nil {
			m.logger.WithField("station", station.STN).Errorf("panic mapping device: %v", r)
		}
	}()

	record, ok := devices.Resolve(station.STN, station.IDCode)
	if !ok {
		_, first := devices.RecordUndefined(station.STN)
		m.metrics.UndefinedDevice(m.name, station.STN)
		if first {
			m.logger.WithField("station", station.STN).Warn("data frame references undefined device")
		}
		return result
	}

	record.TotalFrames++
	if timestamp.After(record.LastReport) {
		record.LastReport = timestamp
	} else if !timestamp.Equal(record.LastReport) {
		record.OutOfOrder++
	}
	if station.DataQualityError() {
		record.DataQuality++
	}
	if station.TimeQualityError() {
		record.TimeQuality++
	}
	if station.DeviceError() {
		record.DeviceErrors++
	}

	cache := record.SignalRef
	if cache == nil {
		cache = signalref.New(record.Label)
		record.SignalRef = cache
	}

	result = m.mapAttributes(result, cat, cache.Scalar(signalref.Status), ParsedMeasurement{
		Value:       float64(station.Stat),
		Timestamp:   timestamp,
		QualityBits: station.Stat,
	})

	n := int(station.Phnmr)
	for i := 0; i < n; i++ {
		var magnitude, angle float64
		if i < len(station.PhasorValues) {
			v := station.PhasorValues[i]
			magnitude, angle = cmplx.Abs(v), cmplx.Phase(v)
		}
		result = m.mapAttributes(result, cat, cache.Indexed(signalref.Angle, i, n), ParsedMeasurement{Value: angle, Timestamp: timestamp})
		result = m.mapAttributes(result, cat, cache.Indexed(signalref.Magnitude, i, n), ParsedMeasurement{Value: magnitude, Timestamp: timestamp})
	}

	result = m.mapAttributes(result, cat, cache.Scalar(signalref.Frequency), ParsedMeasurement{Value: float64(station.Freq), Timestamp: timestamp})
	result = m.mapAttributes(result, cat, cache.Scalar(signalref.DfDt), ParsedMeasurement{Value: float64(station.DFreq), Timestamp: timestamp})

	an := int(station.Annmr)
	for i := 0; i < an; i++ {
		var v float64
		if i < len(station.AnalogValues) {
			v = float64(station.AnalogValues[i])
		}
		result = m.mapAttributes(result, cat, cache.Indexed(signalref.Analog, i, an), ParsedMeasurement{Value: v, Timestamp: timestamp})
	}

	dn := int(station.Dgnmr)
	for i := 0; i < dn; i++ {
		var v float64
		if i < len(station.DigitalValues) && len(station.DigitalValues[i]) > 0 && station.DigitalValues[i][0] {
			v = 1
		}
		result = m.mapAttributes(result, cat, cache.Indexed(signalref.Digital, i, dn), ParsedMeasurement{Value: v, Timestamp: timestamp})
	}

	return result
}

// mapAttributes looks up signalRef in the catalog; on a hit it overwrites
// the descriptor fields on parsed and appends, on a miss it silently
// drops the value.
func (m *Mapper) mapAttributes(batch []MappedMeasurement, cat *catalog.Catalog, signalRef string, parsed ParsedMeasurement) []MappedMeasurement {
	d := cat.Get(signalRef)
	if d == nil {
		return batch
	}
	batch = append(batch, MappedMeasurement{
		ParsedMeasurement: parsed,
		SignalID:          d.SignalID,
		Key:               d.Key,
		SignalReference:   d.SignalReference,
		Adder:             d.Adder,
		Multiplier:        d.Multiplier,
	})
	m.metrics.MeasurementsMapped(m.name, 1)
	return batch
}
