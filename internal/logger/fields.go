package logger

// Standard field keys for structured logging. Using these constants at
// every call site keeps field names consistent for log aggregation.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Operations
	KeyOp        = "op"         // operation name: read, write_back, cull, ...
	KeyObject    = "object"     // cached object key
	KeyFileID    = "file_id"    // backing file identifier
	KeyRetrieval = "retrieval"  // retrieval operation ID
	KeyRequestID = "request_id" // HTTP request ID

	// Block addressing
	KeyBlock     = "block"      // block index
	KeyBlocks    = "blocks"     // number of blocks
	KeyBlockSize = "block_size" // engine block size in bytes
	KeyOffset    = "offset"     // byte offset
	KeyLength    = "length"     // byte count requested
	KeyBytes     = "bytes"      // actual bytes moved
	KeyEOF       = "eof"        // logical object size

	// Cache engine
	KeyDisposition = "disposition" // backed, reserved, rejected
	KeyOutcome     = "outcome"     // completion outcome
	KeyReads       = "reads"       // backing reads issued
	KeyDegraded    = "degraded"    // object degraded flag
	KeyResident    = "resident"    // resident backing blocks
	KeyEvicted     = "evicted"     // objects evicted by the culler
	KeyIdle        = "idle"        // time since an object was last used
	KeyInterval    = "interval"    // background loop period
	KeyFreePct     = "free_pct"    // free space percentage

	// Backing store
	KeyRoot    = "root"    // cache root directory
	KeyPath    = "path"    // file path
	KeySize    = "size"    // size in bytes
	KeyWorkers = "workers" // worker count

	// Origin
	KeyBucket  = "bucket"
	KeyKey     = "key"
	KeyRegion  = "region"
	KeyETag    = "etag"
	KeyAttempt = "attempt"

	// HTTP API
	KeyClientIP = "client_ip"
	KeyMethod   = "method"
	KeyStatus   = "status"
	KeyAddr     = "addr"

	// Metadata
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyState      = "state"
	KeyCount      = "count"
)
