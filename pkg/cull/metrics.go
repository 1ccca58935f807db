package cull

import "time"

// Metrics receives culler observations. Implementations must be safe
// for concurrent use.
type Metrics interface {
	// Scan records one completed scan and its duration.
	Scan(d time.Duration)

	// Evicted records objects removed by a scan.
	Evicted(n int)

	// Error counts failed scans and failed evictions.
	Error()
}

type nopMetrics struct{}

func (nopMetrics) Scan(time.Duration) {}
func (nopMetrics) Evicted(int)        {}
func (nopMetrics) Error()             {}
