package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/gridmetric/phasoradapter/mapper"
)

// LoggingSink is a mapper.MeasurementSink that logs each batch at debug
// level. Production deployments would hand the batch to a time-series
// database client instead; this adapter process has none wired, since
// the write side of the grid platform is out of scope here.
type LoggingSink struct {
	logger *log.Logger
}

// NewLoggingSink creates a LoggingSink.
func NewLoggingSink(logger *log.Logger) *LoggingSink {
	return &LoggingSink{logger: logger}
}

// Emit implements mapper.MeasurementSink.
func (s *LoggingSink) Emit(adapterName string, batch []mapper.MappedMeasurement) {
	if len(batch) == 0 {
		return
	}
	entry := s.logger.WithField("adapter", adapterName).WithField("count", len(batch))
	if s.logger.IsLevelEnabled(log.DebugLevel) {
		for _, m := range batch {
			entry.WithFields(log.Fields{
				"signalReference": m.SignalReference,
				"value":           m.Value,
				"timestamp":       m.Timestamp,
			}).Debug("mapped measurement")
		}
		return
	}
	entry.Debug("measurement batch emitted")
}
