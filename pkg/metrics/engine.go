package metrics

import (
	"github.com/quarryfs/quarry/pkg/engine"
)

// NewEngineMetrics creates a new Prometheus-backed engine.Metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should skip the engine.WithMetrics
// option, which results in zero overhead.
//
// Example usage:
//
//	metrics.InitRegistry()
//	eng, err := engine.New(cfg, engine.WithMetrics(metrics.NewEngineMetrics()))
func NewEngineMetrics() engine.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusEngineMetrics()
}

// newPrometheusEngineMetrics is implemented in pkg/metrics/prometheus.
// This indirection avoids import cycles while keeping the API clean.
var newPrometheusEngineMetrics func() engine.Metrics

// RegisterEngineMetricsConstructor registers the Prometheus engine
// metrics constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterEngineMetricsConstructor(constructor func() engine.Metrics) {
	newPrometheusEngineMetrics = constructor
}
