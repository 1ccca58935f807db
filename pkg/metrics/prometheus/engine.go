// Package prometheus provides the Prometheus implementations of the
// metric sinks consumed by the engine, service and culler packages.
//
// Importing this package registers its constructors with pkg/metrics;
// the top-level constructors there hand out these implementations once
// the registry is initialized.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quarryfs/quarry/pkg/engine"
	"github.com/quarryfs/quarry/pkg/metrics"
)

func init() {
	metrics.RegisterEngineMetricsConstructor(NewEngineMetrics)
}

// engineMetrics is the Prometheus implementation of engine.Metrics.
type engineMetrics struct {
	blocks           *prometheus.CounterVec
	readsIssued      prometheus.Counter
	completions      *prometheus.CounterVec
	reissues         *prometheus.CounterVec
	writeBackBytes   prometheus.Histogram
	writeBackLatency prometheus.Histogram
	degradedObjects  prometheus.Counter
	monitorsInFlight prometheus.Gauge
}

// NewEngineMetrics creates a new Prometheus-backed engine.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewEngineMetrics() engine.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &engineMetrics{
		blocks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_engine_blocks_total",
				Help: "Total number of blocks submitted for retrieval by disposition",
			},
			[]string{"disposition"}, // "backed", "reserved", "none"
		),
		readsIssued: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_engine_reads_issued_total",
				Help: "Total number of reads issued against the backing store",
			},
		),
		completions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_engine_completions_total",
				Help: "Total number of backing read completions by outcome",
			},
			[]string{"outcome"}, // "ok", "io_error", "no_data"
		),
		reissues: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_engine_reissues_total",
				Help: "Total number of truncation recovery attempts by outcome",
			},
			[]string{"outcome"}, // "retry", "gone", "io", "recovered"
		),
		writeBackBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "quarry_engine_write_back_bytes",
				Help: "Distribution of bytes written back to the backing store",
				Buckets: []float64{
					4096,     // 4KB - minimum block size
					65536,    // 64KB - default block size
					262144,   // 256KB
					1048576,  // 1MB
					4194304,  // 4MB
					16777216, // 16MB - maximum block size
				},
			},
		),
		writeBackLatency: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "quarry_engine_write_back_duration_milliseconds",
				Help: "Duration of backing store write-backs in milliseconds",
				Buckets: []float64{
					0.1,  // 100us - page cache hits
					0.5,  // 500us
					1,    // 1ms
					5,    // 5ms
					10,   // 10ms
					50,   // 50ms
					100,  // 100ms
					500,  // 500ms - saturated disk
					1000, // 1s
				},
			},
		),
		degradedObjects: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_engine_objects_degraded_total",
				Help: "Total number of objects that fell back to pass-through mode",
			},
		),
		monitorsInFlight: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "quarry_engine_monitors_in_flight",
				Help: "Current number of in-flight block monitors",
			},
		),
	}
}

func (m *engineMetrics) Disposition(d engine.Disposition) {
	if m == nil {
		return
	}
	m.blocks.WithLabelValues(d.String()).Inc()
}

func (m *engineMetrics) ReadIssued() {
	if m == nil {
		return
	}
	m.readsIssued.Inc()
}

func (m *engineMetrics) Completion(outcome string) {
	if m == nil {
		return
	}
	m.completions.WithLabelValues(outcome).Inc()
}

func (m *engineMetrics) Reissue(outcome string) {
	if m == nil {
		return
	}
	m.reissues.WithLabelValues(outcome).Inc()
}

func (m *engineMetrics) WriteBack(bytes int64, elapsed time.Duration) {
	if m == nil {
		return
	}
	if bytes > 0 {
		m.writeBackBytes.Observe(float64(bytes))
	}
	m.writeBackLatency.Observe(elapsed.Seconds() * 1000)
}

func (m *engineMetrics) ObjectDegraded() {
	if m == nil {
		return
	}
	m.degradedObjects.Inc()
}

func (m *engineMetrics) MonitorsInFlight(n int) {
	if m == nil {
		return
	}
	m.monitorsInFlight.Set(float64(n))
}
