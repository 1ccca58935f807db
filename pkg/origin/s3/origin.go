// Package s3 provides the S3 origin. Misses are fetched from an S3 (or
// S3-compatible) bucket with ranged GetObject requests; Stat maps to
// HeadObject.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/quarryfs/quarry/internal/logger"
	"github.com/quarryfs/quarry/internal/telemetry"
	"github.com/quarryfs/quarry/pkg/origin"
)

// Retry defaults for transient origin errors.
const (
	defaultMaxRetries        = 3
	defaultInitialBackoff    = 100 * time.Millisecond
	defaultMaxBackoff        = 2 * time.Second
	defaultBackoffMultiplier = 2.0
)

// Config holds configuration for the S3 origin.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible
	// services).
	Endpoint string

	// KeyPrefix is prepended to all object keys (e.g., "datasets/").
	// Should end with "/" if non-empty.
	KeyPrefix string

	// AccessKeyID and SecretAccessKey are static credentials (optional,
	// for MinIO/Localstack; the default chain applies when empty).
	AccessKeyID     string
	SecretAccessKey string

	// ForcePathStyle forces path-style addressing (required for
	// Localstack/MinIO).
	ForcePathStyle bool

	// MaxRetries is the maximum number of retry attempts for transient
	// errors. 0 means the default of 3.
	MaxRetries int
}

// Origin is an S3-backed origin store.
type Origin struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	retry     retryConfig
}

type retryConfig struct {
	maxRetries        int
	initialBackoff    time.Duration
	maxBackoff        time.Duration
	backoffMultiplier float64
}

// New creates an S3 origin with an existing client.
func New(client *s3.Client, config Config) *Origin {
	maxRetries := config.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Origin{
		client:    client,
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
		retry: retryConfig{
			maxRetries:        maxRetries,
			initialBackoff:    defaultInitialBackoff,
			maxBackoff:        defaultMaxBackoff,
			backoffMultiplier: defaultBackoffMultiplier,
		},
	}
}

// NewFromConfig creates an S3 origin by building a client from config.
// This is the preferred constructor when you don't have an existing S3
// client.
func NewFromConfig(ctx context.Context, config Config) (*Origin, error) {
	// Build AWS SDK config options
	var opts []func(*awsconfig.LoadOptions) error

	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, ""),
		))
	}

	// Load AWS configuration
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// Build S3 client options
	var s3Opts []func(*s3.Options)

	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}

	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	return New(client, config), nil
}

// fullKey returns the full S3 key for an object key.
func (o *Origin) fullKey(key string) string {
	return o.keyPrefix + key
}

// Stat returns size and entity tag for key via HeadObject.
//
// Transient errors (network issues, throttling, 5xx) are retried with
// exponential backoff. Not found errors are mapped to
// origin.ErrNotFound and not retried.
func (o *Origin) Stat(ctx context.Context, key string) (origin.ObjectInfo, error) {
	ctx, span := telemetry.StartOriginSpan(ctx, "stat", key,
		telemetry.Bucket(o.bucket))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return origin.ObjectInfo{}, err
	}

	fullKey := o.fullKey(key)

	var result *s3.HeadObjectOutput
	var lastErr error

	for attempt := 0; attempt <= o.retry.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := o.calculateBackoff(attempt - 1)
			logger.Debug("origin stat: retrying",
				logger.KeyKey, fullKey,
				logger.KeyAttempt, attempt)

			select {
			case <-ctx.Done():
				return origin.ObjectInfo{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, lastErr = o.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(fullKey),
		})

		if lastErr == nil {
			break
		}

		if isNotFoundError(lastErr) {
			return origin.ObjectInfo{}, origin.ErrNotFound
		}

		if !isRetryableError(lastErr) {
			break
		}
	}

	if lastErr != nil {
		telemetry.RecordError(ctx, lastErr)
		return origin.ObjectInfo{}, fmt.Errorf("s3 head object: %w", lastErr)
	}

	info := origin.ObjectInfo{}
	if result.ContentLength != nil {
		info.Size = *result.ContentLength
	}
	if result.ETag != nil {
		info.ETag = *result.ETag
	}
	return info, nil
}

// Fetch reads len(p) bytes at off using an S3 byte-range request,
// following io.ReaderAt semantics: a short read returns the bytes read
// and io.EOF; an offset at or past the end returns (0, io.EOF).
//
// Transient errors are retried with exponential backoff. Not found
// errors map to origin.ErrNotFound; invalid range errors map to
// io.EOF.
func (o *Origin) Fetch(ctx context.Context, key string, off int64, p []byte) (n int, err error) {
	ctx, span := telemetry.StartOriginSpan(ctx, "fetch", key,
		telemetry.Bucket(o.bucket),
		telemetry.Offset(off),
		telemetry.Length(len(p)))
	defer span.End()
	defer func() {
		if err != nil && err != io.EOF {
			telemetry.RecordError(ctx, err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	// Empty buffer: nothing to read (follows io.ReaderAt semantics)
	if len(p) == 0 {
		return 0, nil
	}

	fullKey := o.fullKey(key)

	// S3 ranges are inclusive, so end = off + len(p) - 1.
	rangeHeader := fmt.Sprintf("bytes=%d-%d", off, off+int64(len(p))-1)

	var result *s3.GetObjectOutput
	var lastErr error

	for attempt := 0; attempt <= o.retry.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := o.calculateBackoff(attempt - 1)
			logger.Debug("origin fetch: retrying",
				logger.KeyKey, fullKey,
				logger.KeyOffset, off,
				logger.KeyAttempt, attempt)

			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, lastErr = o.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(o.bucket),
			Key:    aws.String(fullKey),
			Range:  aws.String(rangeHeader),
		})

		if lastErr == nil {
			break
		}

		if isNotFoundError(lastErr) {
			return 0, origin.ErrNotFound
		}

		// Reading at or past the end of the object.
		if isInvalidRangeError(lastErr) {
			return 0, io.EOF
		}

		if !isRetryableError(lastErr) {
			break
		}
	}

	if lastErr != nil {
		return 0, fmt.Errorf("s3 get object range: %w", lastErr)
	}

	defer func() { _ = result.Body.Close() }()

	n, err = io.ReadFull(result.Body, p)
	if err == io.ErrUnexpectedEOF {
		// The object is shorter than the requested range.
		return n, io.EOF
	}
	return n, err
}

// calculateBackoff returns the backoff duration for a given attempt.
func (o *Origin) calculateBackoff(attempt int) time.Duration {
	backoff := float64(o.retry.initialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= o.retry.backoffMultiplier
	}
	if backoff > float64(o.retry.maxBackoff) {
		backoff = float64(o.retry.maxBackoff)
	}
	return time.Duration(backoff)
}

// isRetryableError returns true if the error is transient and the
// operation should be retried.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Network errors are retryable
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	// Check for AWS API errors
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()

		// Throttling errors - retryable
		if code == "Throttling" || code == "ThrottlingException" ||
			code == "RequestThrottled" || code == "SlowDown" {
			return true
		}

		// Server errors (5xx) - retryable
		if code == "InternalError" || code == "ServiceUnavailable" {
			return true
		}

		// Not found, access denied, invalid request - not retryable
		if code == "NoSuchKey" || code == "NotFound" ||
			code == "AccessDenied" || code == "Forbidden" ||
			code == "InvalidRange" || code == "InvalidRequest" {
			return false
		}
	}

	// Check error message for common patterns
	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "500")
}

// isNotFoundError returns true if the error indicates the object
// doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	// Check typed errors
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	// Check AWS API error code
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" {
			return true
		}
	}

	// Check error message for 404 patterns
	errStr := err.Error()
	return strings.Contains(errStr, "StatusCode: 404") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NoSuchKey")
}

// isInvalidRangeError returns true if the error indicates an invalid
// byte range.
func isInvalidRangeError(err error) bool {
	if err == nil {
		return false
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "InvalidRange"
	}

	return strings.Contains(err.Error(), "InvalidRange")
}

// Ensure Origin implements origin.Origin.
var _ origin.Origin = (*Origin)(nil)
