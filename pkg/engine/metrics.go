package engine

import "time"

// Completion and reissue outcome labels, shared with the metrics
// backends.
const (
	OutcomeOK        = "ok"
	OutcomeIOError   = "io_error"
	OutcomeNoData    = "no_data"
	ReissueRetry     = "retry"
	ReissueGone      = "gone"
	ReissueIO        = "io"
	ReissueRecovered = "recovered"
)

// Metrics receives engine counters. Implementations must be safe for
// concurrent use. A nil Metrics passed to New disables instrumentation.
type Metrics interface {
	Disposition(d Disposition)
	ReadIssued()
	Completion(outcome string)
	Reissue(outcome string)
	WriteBack(bytes int64, elapsed time.Duration)
	ObjectDegraded()
	MonitorsInFlight(n int)
}

type nopMetrics struct{}

func (nopMetrics) Disposition(Disposition)        {}
func (nopMetrics) ReadIssued()                    {}
func (nopMetrics) Completion(string)              {}
func (nopMetrics) Reissue(string)                 {}
func (nopMetrics) WriteBack(int64, time.Duration) {}
func (nopMetrics) ObjectDegraded()                {}
func (nopMetrics) MonitorsInFlight(int)           {}
