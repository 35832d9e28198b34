// Package metrics exposes the adapter's Prometheus instrumentation,
// structured as package-level promauto collectors the way the bundled
// demo server does, with a Recorder type in front so
// mapper/frameparser/liveness never import prometheus directly.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder is the instrumentation surface the mapper and its
// collaborators depend on. A nil *Recorder is safe to call methods on —
// every method is a no-op in that case — so tests and command-line tools
// that don't care about metrics can skip wiring one up.
type Recorder struct {
	connectionAttempts    *prometheus.CounterVec
	connectionExceptions  *prometheus.CounterVec
	framesReceived        *prometheus.CounterVec
	bytesReceived         *prometheus.CounterVec
	measurementsMapped    *prometheus.CounterVec
	undefinedDevices      *prometheus.CounterVec
	parsingExceptions     *prometheus.CounterVec
	outOfOrderFrames      *prometheus.CounterVec
	configurationChanges  *prometheus.CounterVec
	mappingLatencySeconds *prometheus.HistogramVec
	connectionState       *prometheus.GaugeVec
}

// New registers and returns a Recorder. Call once per process; adapter
// identity is carried per-call via the adapterName label, not baked into
// the collector set, since a single process may run several adapters.
func New() *Recorder {
	return &Recorder{
		connectionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phasoradapter_connection_attempts_total",
			Help: "Connection attempts made by the frame parser.",
		}, []string{"adapter"}),

		connectionExceptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phasoradapter_connection_exceptions_total",
			Help: "Connection attempts that failed.",
		}, []string{"adapter"}),

		framesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phasoradapter_frames_received_total",
			Help: "Frames received, by frame type.",
		}, []string{"adapter", "frame_type"}),

		bytesReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phasoradapter_bytes_received_total",
			Help: "Raw bytes received from the device.",
		}, []string{"adapter"}),

		measurementsMapped: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phasoradapter_measurements_mapped_total",
			Help: "Measurements emitted to the sink.",
		}, []string{"adapter"}),

		undefinedDevices: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phasoradapter_undefined_device_frames_total",
			Help: "Frames referencing a station absent from the device table.",
		}, []string{"adapter", "station"}),

		parsingExceptions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phasoradapter_parsing_exceptions_total",
			Help: "Frame parsing exceptions reported by the frame parser.",
		}, []string{"adapter"}),

		outOfOrderFrames: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phasoradapter_out_of_order_frames_total",
			Help: "Data frames whose timestamp did not advance lastReportTime.",
		}, []string{"adapter"}),

		configurationChanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "phasoradapter_configuration_changes_total",
			Help: "configurationChanged events observed mid-stream.",
		}, []string{"adapter"}),

		mappingLatencySeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "phasoradapter_mapping_latency_seconds",
			Help:    "Wall-clock delay between a frame's timestamp and its arrival.",
			Buckets: prometheus.DefBuckets,
		}, []string{"adapter"}),

		connectionState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "phasoradapter_connection_state",
			Help: "Current connection state machine value (0=init,1=idle,2=connecting,3=connectedNoConfig,4=streaming).",
		}, []string{"adapter"}),
	}
}

func (r *Recorder) ConnectionAttempt(adapter string) {
	if r == nil {
		return
	}
	r.connectionAttempts.WithLabelValues(adapter).Inc()
}

func (r *Recorder) ConnectionException(adapter string) {
	if r == nil {
		return
	}
	r.connectionExceptions.WithLabelValues(adapter).Inc()
}

func (r *Recorder) FrameReceived(adapter, frameType string) {
	if r == nil {
		return
	}
	r.framesReceived.WithLabelValues(adapter, frameType).Inc()
}

func (r *Recorder) BytesReceived(adapter string, n int) {
	if r == nil {
		return
	}
	r.bytesReceived.WithLabelValues(adapter).Add(float64(n))
}

func (r *Recorder) MeasurementsMapped(adapter string, n int) {
	if r == nil {
		return
	}
	r.measurementsMapped.WithLabelValues(adapter).Add(float64(n))
}

func (r *Recorder) UndefinedDevice(adapter, station string) {
	if r == nil {
		return
	}
	r.undefinedDevices.WithLabelValues(adapter, station).Inc()
}

func (r *Recorder) ParsingException(adapter string) {
	if r == nil {
		return
	}
	r.parsingExceptions.WithLabelValues(adapter).Inc()
}

func (r *Recorder) OutOfOrderFrame(adapter string) {
	if r == nil {
		return
	}
	r.outOfOrderFrames.WithLabelValues(adapter).Inc()
}

func (r *Recorder) ConfigurationChange(adapter string) {
	if r == nil {
		return
	}
	r.configurationChanges.WithLabelValues(adapter).Inc()
}

func (r *Recorder) MappingLatencySeconds(adapter string, seconds float64) {
	if r == nil {
		return
	}
	r.mappingLatencySeconds.WithLabelValues(adapter).Observe(seconds)
}

func (r *Recorder) ConnectionState(adapter string, state int) {
	if r == nil {
		return
	}
	r.connectionState.WithLabelValues(adapter).Set(float64(state))
}
