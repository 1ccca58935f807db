package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quarryfs/quarry/pkg/metrics"
	"github.com/quarryfs/quarry/pkg/service"
)

func init() {
	metrics.RegisterServiceMetricsConstructor(NewServiceMetrics)
}

// serviceMetrics is the Prometheus implementation of service.Metrics.
type serviceMetrics struct {
	opens       *prometheus.CounterVec
	readBytes   prometheus.Counter
	blocks      *prometheus.CounterVec
	invalidated prometheus.Counter
	removed     prometheus.Counter
}

// NewServiceMetrics creates a new Prometheus-backed service.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewServiceMetrics() service.Metrics {
	if !metrics.IsEnabled() {
		return nil
	}

	reg := metrics.GetRegistry()

	return &serviceMetrics{
		opens: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_service_opens_total",
				Help: "Total number of object opens by outcome",
			},
			[]string{"result"}, // "created", "reopened", "revalidated", "passthrough"
		),
		readBytes: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_service_read_bytes_total",
				Help: "Total bytes returned to readers",
			},
		),
		blocks: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "quarry_service_blocks_total",
				Help: "Total blocks served by source",
			},
			[]string{"source"}, // "cache", "origin"
		),
		invalidated: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_service_invalidations_total",
				Help: "Total number of object invalidations",
			},
		),
		removed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "quarry_service_removals_total",
				Help: "Total number of objects removed from the cache",
			},
		),
	}
}

func (m *serviceMetrics) Open(result string) {
	if m == nil {
		return
	}
	m.opens.WithLabelValues(result).Inc()
}

func (m *serviceMetrics) Read(bytes int64) {
	if m == nil {
		return
	}
	m.readBytes.Add(float64(bytes))
}

func (m *serviceMetrics) Blocks(source string, n int) {
	if m == nil {
		return
	}
	m.blocks.WithLabelValues(source).Add(float64(n))
}

func (m *serviceMetrics) Invalidated() {
	if m == nil {
		return
	}
	m.invalidated.Inc()
}

func (m *serviceMetrics) Removed() {
	if m == nil {
		return
	}
	m.removed.Inc()
}
