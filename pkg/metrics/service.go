package metrics

import (
	"github.com/quarryfs/quarry/pkg/service"
)

// NewServiceMetrics creates a new Prometheus-backed service.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should skip the service.WithMetrics
// option, which results in zero overhead.
func NewServiceMetrics() service.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusServiceMetrics()
}

// newPrometheusServiceMetrics is implemented in pkg/metrics/prometheus.
// This indirection avoids import cycles while keeping the API clean.
var newPrometheusServiceMetrics func() service.Metrics

// RegisterServiceMetricsConstructor registers the Prometheus service
// metrics constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterServiceMetricsConstructor(constructor func() service.Metrics) {
	newPrometheusServiceMetrics = constructor
}
