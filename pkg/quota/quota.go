// Package quota decides whether the cache may admit more data.
//
// The engine consults an Oracle before reserving space for a block or a
// backing file. Admission is advisory: oracles answer for the moment of
// the call, and concurrent admissions against independent objects may
// race. Within a single request, however, a granted reservation is
// never overturned by a later quota check.
package quota

import "errors"

// ErrNoSpace is returned by Reserve when the cache cannot admit the
// requested amount.
var ErrNoSpace = errors.New("quota: no space available")

// Default free-space thresholds for the Disk oracle, in percent.
const (
	DefaultRunPct  = 7
	DefaultCullPct = 5
	DefaultStopPct = 3
)

// Oracle answers admission questions for cache capacity.
type Oracle interface {
	// Reserve asks for room for extra backing files and data blocks.
	// A nil return admits the request; counted oracles consume the
	// capacity immediately, advisory oracles treat this as a probe.
	Reserve(files, blocks uint64) error

	// Release returns previously admitted capacity, for example when
	// blocks are invalidated or an object is culled. Advisory oracles
	// ignore it.
	Release(files, blocks uint64)
}

// Stats describes an oracle's current view of capacity for the stats
// endpoint. Fields are zero where an oracle has no meaningful value.
type Stats struct {
	FilesUsed   uint64  `json:"files_used"`
	FilesLimit  uint64  `json:"files_limit"`
	BlocksUsed  uint64  `json:"blocks_used"`
	BlocksLimit uint64  `json:"blocks_limit"`
	FreePct     float64 `json:"free_pct"`
}

// StatsProvider is implemented by oracles that can report usage.
type StatsProvider interface {
	Stats() Stats
}

// Nop is an Oracle that always admits.
type Nop struct{}

func (Nop) Reserve(files, blocks uint64) error { return nil }
func (Nop) Release(files, blocks uint64)       {}
