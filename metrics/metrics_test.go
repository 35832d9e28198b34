package metrics

import (
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

// New registers its collectors globally and may be called only once per
// process, so every test in this package shares one Recorder.
var (
	sharedOnce     sync.Once
	sharedRecorder *Recorder
)

func testRecorder() *Recorder {
	sharedOnce.Do(func() { sharedRecorder = New() })
	return sharedRecorder
}

func TestRecorderCountersIncrement(t *testing.T) {
	r := testRecorder()

	r.ConnectionAttempt("ADAPTER1")
	r.ConnectionException("ADAPTER1")
	r.FrameReceived("ADAPTER1", "data")
	r.FrameReceived("ADAPTER1", "data")
	r.BytesReceived("ADAPTER1", 128)
	r.MeasurementsMapped("ADAPTER1", 7)
	r.UndefinedDevice("ADAPTER1", "GHOST")
	r.ParsingException("ADAPTER1")
	r.OutOfOrderFrame("ADAPTER1")
	r.ConfigurationChange("ADAPTER1")
	r.ConnectionState("ADAPTER1", 4)

	assert.Equal(t, float64(1), testutil.ToFloat64(r.connectionAttempts.WithLabelValues("ADAPTER1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.connectionExceptions.WithLabelValues("ADAPTER1")))
	assert.Equal(t, float64(2), testutil.ToFloat64(r.framesReceived.WithLabelValues("ADAPTER1", "data")))
	assert.Equal(t, float64(128), testutil.ToFloat64(r.bytesReceived.WithLabelValues("ADAPTER1")))
	assert.Equal(t, float64(7), testutil.ToFloat64(r.measurementsMapped.WithLabelValues("ADAPTER1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.undefinedDevices.WithLabelValues("ADAPTER1", "GHOST")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.parsingExceptions.WithLabelValues("ADAPTER1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.outOfOrderFrames.WithLabelValues("ADAPTER1")))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.configurationChanges.WithLabelValues("ADAPTER1")))
	assert.Equal(t, float64(4), testutil.ToFloat64(r.connectionState.WithLabelValues("ADAPTER1")))
}

func TestRecorderNilIsSafe(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.ConnectionAttempt("ADAPTER1")
		r.ConnectionException("ADAPTER1")
		r.FrameReceived("ADAPTER1", "data")
		r.BytesReceived("ADAPTER1", 1)
		r.MeasurementsMapped("ADAPTER1", 1)
		r.UndefinedDevice("ADAPTER1", "GHOST")
		r.ParsingException("ADAPTER1")
		r.OutOfOrderFrame("ADAPTER1")
		r.ConfigurationChange("ADAPTER1")
		r.MappingLatencySeconds("ADAPTER1", 0.1)
		r.ConnectionState("ADAPTER1", 1)
	})
}

func TestRecorderMappingLatencyObserves(t *testing.T) {
	r := testRecorder()
	r.MappingLatencySeconds("ADAPTER1", 0.25)

	assert.Equal(t, 1, testutil.CollectAndCount(r.mappingLatencySeconds))
}
