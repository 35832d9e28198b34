package mapper

import (
	"time"

	"github.com/google/uuid"
)

// ParsedMeasurement is one value lifted off a data frame cell, before
// catalog metadata is attached.
type ParsedMeasurement struct {
	Value       float64
	Timestamp   time.Time
	QualityBits uint16
}

// MappedMeasurement is a ParsedMeasurement enriched with the descriptor
// looked up from the measurement catalog.
type MappedMeasurement struct {
	ParsedMeasurement
	SignalID        uuid.UUID
	Key             string
	SignalReference string
	Adder           float64
	Multiplier      float64
}

// MeasurementSink receives one batch per processed data frame, passed to
// it exactly once per frame.
type MeasurementSink interface {
	Emit(adapterName string, batch []MappedMeasurement)
}

// DeviceCommand is a protocol command code forwarded verbatim to the
// frame parser.
type DeviceCommand uint16
