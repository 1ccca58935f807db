package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for cache operations.
// These follow OpenTelemetry semantic conventions where applicable.
// Cache-engine keys use "cache." prefix, origin-store keys use "origin.".
const (
	// ========================================================================
	// Client attributes (HTTP API)
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"
	AttrClientPort = "client.port"

	// ========================================================================
	// Cache attributes
	// ========================================================================
	AttrObjectKey   = "cache.object"      // Logical object key
	AttrFileID      = "cache.file_id"     // Backing file identifier
	AttrBlock       = "cache.block"       // Block index
	AttrBlocks      = "cache.blocks"      // Block count
	AttrOffset      = "cache.offset"      // Byte offset
	AttrLength      = "cache.length"      // Byte length
	AttrSize        = "cache.size"        // Object size
	AttrEOF         = "cache.eof"         // Known end of file
	AttrHit         = "cache.hit"         // Served from backing store
	AttrDisposition = "cache.disposition" // Retrieval disposition
	AttrDegraded    = "cache.degraded"    // Object in pass-through mode
	AttrEvicted     = "cache.evicted"     // Eviction count

	// ========================================================================
	// Origin store attributes
	// ========================================================================
	AttrBucket = "origin.bucket"
	AttrKey    = "origin.key"
	AttrRegion = "origin.region"
	AttrETag   = "origin.etag"
)

// ClientIP returns an attribute for client IP address
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for full client address
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// ObjectKey returns an attribute for the logical object key
func ObjectKey(key string) attribute.KeyValue {
	return attribute.String(AttrObjectKey, key)
}

// FileID returns an attribute for the backing file identifier
func FileID(id string) attribute.KeyValue {
	return attribute.String(AttrFileID, id)
}

// Block returns an attribute for a block index
func Block(index uint64) attribute.KeyValue {
	return attribute.Int64(AttrBlock, int64(index))
}

// Blocks returns an attribute for a block count
func Blocks(n int) attribute.KeyValue {
	return attribute.Int(AttrBlocks, n)
}

// Offset returns an attribute for a byte offset
func Offset(offset int64) attribute.KeyValue {
	return attribute.Int64(AttrOffset, offset)
}

// Length returns an attribute for a byte length
func Length(n int) attribute.KeyValue {
	return attribute.Int(AttrLength, n)
}

// Size returns an attribute for an object size
func Size(size int64) attribute.KeyValue {
	return attribute.Int64(AttrSize, size)
}

// EOF returns an attribute for the known end of file
func EOF(eof int64) attribute.KeyValue {
	return attribute.Int64(AttrEOF, eof)
}

// Hit returns an attribute indicating a backing store hit
func Hit(hit bool) attribute.KeyValue {
	return attribute.Bool(AttrHit, hit)
}

// Disposition returns an attribute for a retrieval disposition
func Disposition(d string) attribute.KeyValue {
	return attribute.String(AttrDisposition, d)
}

// Degraded returns an attribute for pass-through mode
func Degraded(degraded bool) attribute.KeyValue {
	return attribute.Bool(AttrDegraded, degraded)
}

// Evicted returns an attribute for an eviction count
func Evicted(n int) attribute.KeyValue {
	return attribute.Int(AttrEvicted, n)
}

// Bucket returns an attribute for an origin bucket name
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// OriginKey returns an attribute for an origin object key
func OriginKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// Region returns an attribute for a cloud region
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// ETag returns an attribute for an origin entity tag
func ETag(etag string) attribute.KeyValue {
	return attribute.String(AttrETag, etag)
}

// StartServiceSpan starts a span for a service-level operation.
// This is a convenience function that sets the object key attribute.
func StartServiceSpan(ctx context.Context, operation string, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		ObjectKey(key),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "service."+operation, trace.WithAttributes(allAttrs...))
}

// StartCacheSpan starts a span for a cache engine operation.
func StartCacheSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cache."+operation, trace.WithAttributes(attrs...))
}

// StartOriginSpan starts a span for an origin store operation.
func StartOriginSpan(ctx context.Context, operation string, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		OriginKey(key),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, "origin."+operation, trace.WithAttributes(allAttrs...))
}

// StartCullSpan starts a span for a culler operation.
func StartCullSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "cull."+operation, trace.WithAttributes(attrs...))
}
