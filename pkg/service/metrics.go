package service

// Open outcomes and block sources as reported to Metrics.
const (
	OpenCreated     = "created"
	OpenReopened    = "reopened"
	OpenRevalidated = "revalidated"
	OpenPassthrough = "passthrough"

	SourceCache  = "cache"
	SourceOrigin = "origin"
)

// Metrics receives service-level observations. Implementations must be
// safe for concurrent use; the zero value of the service uses a no-op.
type Metrics interface {
	// Open records an open outcome: created, reopened, revalidated or
	// passthrough.
	Open(result string)

	// Read records bytes returned to a caller.
	Read(bytes int64)

	// Blocks records blocks of a read served from one source, cache or
	// origin.
	Blocks(source string, n int)

	// Invalidated counts objects whose cached blocks were dropped.
	Invalidated()

	// Removed counts objects evicted from the cache.
	Removed()
}

type nopMetrics struct{}

func (nopMetrics) Open(string)        {}
func (nopMetrics) Read(int64)         {}
func (nopMetrics) Blocks(string, int) {}
func (nopMetrics) Invalidated()       {}
func (nopMetrics) Removed()           {}
