package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "quarry", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, ClientIP("192.168.1.1"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ClientIP", func(t *testing.T) {
		attr := ClientIP("192.168.1.100")
		assert.Equal(t, AttrClientIP, string(attr.Key))
		assert.Equal(t, "192.168.1.100", attr.Value.AsString())
	})

	t.Run("ClientAddr", func(t *testing.T) {
		attr := ClientAddr("192.168.1.100:12345")
		assert.Equal(t, AttrClientAddr, string(attr.Key))
		assert.Equal(t, "192.168.1.100:12345", attr.Value.AsString())
	})

	t.Run("ObjectKey", func(t *testing.T) {
		attr := ObjectKey("datasets/train.bin")
		assert.Equal(t, AttrObjectKey, string(attr.Key))
		assert.Equal(t, "datasets/train.bin", attr.Value.AsString())
	})

	t.Run("FileID", func(t *testing.T) {
		attr := FileID("abc-123")
		assert.Equal(t, AttrFileID, string(attr.Key))
		assert.Equal(t, "abc-123", attr.Value.AsString())
	})

	t.Run("Block", func(t *testing.T) {
		attr := Block(42)
		assert.Equal(t, AttrBlock, string(attr.Key))
		assert.Equal(t, int64(42), attr.Value.AsInt64())
	})

	t.Run("Blocks", func(t *testing.T) {
		attr := Blocks(8)
		assert.Equal(t, AttrBlocks, string(attr.Key))
		assert.Equal(t, int64(8), attr.Value.AsInt64())
	})

	t.Run("Offset", func(t *testing.T) {
		attr := Offset(1024)
		assert.Equal(t, AttrOffset, string(attr.Key))
		assert.Equal(t, int64(1024), attr.Value.AsInt64())
	})

	t.Run("Length", func(t *testing.T) {
		attr := Length(4096)
		assert.Equal(t, AttrLength, string(attr.Key))
		assert.Equal(t, int64(4096), attr.Value.AsInt64())
	})

	t.Run("Size", func(t *testing.T) {
		attr := Size(1048576)
		assert.Equal(t, AttrSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("EOF", func(t *testing.T) {
		attr := EOF(65536)
		assert.Equal(t, AttrEOF, string(attr.Key))
		assert.Equal(t, int64(65536), attr.Value.AsInt64())
	})

	t.Run("Hit", func(t *testing.T) {
		attr := Hit(true)
		assert.Equal(t, AttrHit, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("Disposition", func(t *testing.T) {
		attr := Disposition("backed")
		assert.Equal(t, AttrDisposition, string(attr.Key))
		assert.Equal(t, "backed", attr.Value.AsString())
	})

	t.Run("Degraded", func(t *testing.T) {
		attr := Degraded(true)
		assert.Equal(t, AttrDegraded, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("Evicted", func(t *testing.T) {
		attr := Evicted(3)
		assert.Equal(t, AttrEvicted, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("Bucket", func(t *testing.T) {
		attr := Bucket("my-bucket")
		assert.Equal(t, AttrBucket, string(attr.Key))
		assert.Equal(t, "my-bucket", attr.Value.AsString())
	})

	t.Run("OriginKey", func(t *testing.T) {
		attr := OriginKey("path/to/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "path/to/object", attr.Value.AsString())
	})

	t.Run("Region", func(t *testing.T) {
		attr := Region("eu-west-1")
		assert.Equal(t, AttrRegion, string(attr.Key))
		assert.Equal(t, "eu-west-1", attr.Value.AsString())
	})

	t.Run("ETag", func(t *testing.T) {
		attr := ETag(`"abc123"`)
		assert.Equal(t, AttrETag, string(attr.Key))
		assert.Equal(t, `"abc123"`, attr.Value.AsString())
	})
}

func TestStartServiceSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartServiceSpan(ctx, "read", "datasets/train.bin")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartServiceSpan(ctx, "open", "datasets/train.bin", Size(1024))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartCacheSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartCacheSpan(ctx, "retrieve")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartCacheSpan(ctx, "write_back", Hit(false))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartOriginSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartOriginSpan(ctx, "fetch", "path/to/object")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	// With additional attributes
	newCtx2, span2 := StartOriginSpan(ctx, "stat", "path/to/object", Bucket("my-bucket"))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
