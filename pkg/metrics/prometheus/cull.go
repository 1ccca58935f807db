package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quarryfs/quarry/pkg/cull"
	"github.com/quarryfs/quarry/pkg/metrics"
)

func init() {
	metrics.RegisterCullMetricsConstructor(NewCullMetrics)
}

// cullMetrics is the Prometheus implementation of cull.Metrics.
type cullMetrics struct {
	scans        prometheus.Counter
	scanDuration prometheus.Histogram
	evicted      prometheus.Counter
	errors       prometheus.Counter
}

// NewCullMetrics creates a new Prometheus-backed cull.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewCullMetrics() cull.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &cullMetrics{
		scans: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_cull_scans_total",
				Help: "Total number of cull scans",
			},
		),
		scanDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "quarry_cull_scan_duration_milliseconds",
				Help:    "Cull scan duration in milliseconds",
				Buckets: []float64{1, 5, 10, 50, 100, 500, 1000, 5000},
			},
		),
		evicted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_cull_evictions_total",
				Help: "Total number of objects evicted by the culler",
			},
		),
		errors: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_cull_errors_total",
				Help: "Total number of failed scans and evictions",
			},
		),
	}
}

func (m *cullMetrics) Scan(d time.Duration) {
	if m == nil {
		return
	}
	m.scans.Inc()
	m.scanDuration.Observe(float64(d.Milliseconds()))
}

func (m *cullMetrics) Evicted(n int) {
	if m == nil {
		return
	}
	m.evicted.Add(float64(n))
}

func (m *cullMetrics) Error() {
	if m == nil {
		return
	}
	m.errors.Inc()
}
