package metrics

import (
	"github.com/quarryfs/quarry/pkg/cull"
)

// NewCullMetrics creates a new Prometheus-backed cull.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
// When nil is returned, callers should skip the cull.WithMetrics
// option, which results in zero overhead.
func NewCullMetrics() cull.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusCullMetrics()
}

// newPrometheusCullMetrics is implemented in pkg/metrics/prometheus.
// This indirection avoids import cycles while keeping the API clean.
var newPrometheusCullMetrics func() cull.Metrics

// RegisterCullMetricsConstructor registers the Prometheus cull metrics
// constructor. Called by pkg/metrics/prometheus during package
// initialization.
func RegisterCullMetricsConstructor(constructor func() cull.Metrics) {
	newPrometheusCullMetrics = constructor
}
