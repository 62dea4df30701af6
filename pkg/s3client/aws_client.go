package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

const (
	defaultMaxRetries = 5
	defaultBaseDelay  = 100 * time.Millisecond
	defaultMaxDelay   = 30 * time.Second

	uploadPartSize    = 64 * 1024 * 1024 // 64MB parts for multi-GB datasets
	uploadConcurrency = 4
)

// AWSClient implements Client against S3 with retry and backoff around
// read operations. Uploads go through the transfer manager, which
// switches to multipart above the part size.
type AWSClient struct {
	client     *s3.Client
	uploader   *manager.Uploader
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewAWSClient(cfg aws.Config) *AWSClient {
	client := s3.NewFromConfig(cfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
		u.Concurrency = uploadConcurrency
	})

	return &AWSClient{
		client:     client,
		uploader:   uploader,
		maxRetries: defaultMaxRetries,
		baseDelay:  defaultBaseDelay,
		maxDelay:   defaultMaxDelay,
	}
}

// ListObjects returns every object under prefix, following pagination
// transparently.
func (c *AWSClient) ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error) {
	var objects []Object

	paginator := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := retry(ctx, c, func() (*s3.ListObjectsV2Output, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			if isAccessDenied(err) {
				return nil, &AccessError{Op: "list", Bucket: bucket, Err: err}
			}
			return nil, fmt.Errorf("list objects: %w", err)
		}

		for _, obj := range page.Contents {
			if obj.Key == nil || obj.Size == nil {
				continue
			}
			objects = append(objects, Object{
				Key:          *obj.Key,
				Size:         *obj.Size,
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}

	return objects, nil
}

// HeadObject fetches per-key metadata, including the stored content
// fingerprint. Missing keys return ErrNotFound.
func (c *AWSClient) HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	resp, err := retry(ctx, c, func() (*s3.HeadObjectOutput, error) {
		return c.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("head s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		if isAccessDenied(err) {
			return nil, &AccessError{Op: "head", Bucket: bucket, Err: err}
		}
		return nil, fmt.Errorf("head object: %w", err)
	}

	return &ObjectInfo{
		Size:         aws.ToInt64(resp.ContentLength),
		LastModified: aws.ToTime(resp.LastModified),
		Fingerprint:  resp.Metadata[FingerprintMetadataKey],
	}, nil
}

// PutObject uploads the request body with the fingerprint attached as
// object metadata. Retries are left to the transfer manager since the
// body reader cannot be rewound here.
func (c *AWSClient) PutObject(ctx context.Context, req *PutRequest) error {
	input := &s3.PutObjectInput{
		Bucket:            aws.String(req.Bucket),
		Key:               aws.String(req.Key),
		Body:              req.Body,
		ChecksumAlgorithm: types.ChecksumAlgorithmSha256,
		Metadata: map[string]string{
			FingerprintMetadataKey: req.Fingerprint,
		},
	}
	if req.ContentType != "" {
		input.ContentType = aws.String(req.ContentType)
	}

	if _, err := c.uploader.Upload(ctx, input); err != nil {
		if isAccessDenied(err) {
			return &AccessError{Op: "put", Bucket: req.Bucket, Err: err}
		}
		return fmt.Errorf("put object: %w", err)
	}

	return nil
}

// retry runs op with exponential backoff and jitter for retryable
// errors.
func retry[T any](ctx context.Context, c *AWSClient, op func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		out, err := op()
		if err == nil {
			return out, nil
		}

		if !isRetryable(err) {
			return zero, err
		}

		lastErr = err
		if attempt < c.maxRetries {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(c.delay(attempt)):
			}
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// delay calculates exponential backoff with ±25% jitter, capped at
// maxDelay.
func (c *AWSClient) delay(attempt int) time.Duration {
	base := float64(c.baseDelay)
	d := base * math.Pow(2.0, float64(attempt))

	jitter := d * 0.25 * (2*rand.Float64() - 1)
	d += jitter

	if d > float64(c.maxDelay) {
		d = float64(c.maxDelay)
	}

	return time.Duration(d)
}

func isRetryable(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "SlowDown", "ServiceUnavailable", "RequestTimeout", "RequestTimeoutException", "Throttling", "ThrottlingException":
			return true
		}
		if httpErr, ok := apiErr.(interface{ HTTPStatusCode() int }); ok {
			code := httpErr.HTTPStatusCode()
			return code >= 500 && code < 600
		}
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF)
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func isAccessDenied(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "AccessDenied", "Forbidden", "InvalidAccessKeyId", "ExpiredToken", "SignatureDoesNotMatch", "NoSuchBucket":
			return true
		}
		if httpErr, ok := apiErr.(interface{ HTTPStatusCode() int }); ok {
			code := httpErr.HTTPStatusCode()
			return code == 401 || code == 403
		}
	}
	// Connectivity failures are indistinguishable from a revoked
	// network path for planning purposes.
	return strings.Contains(err.Error(), "no such host") ||
		strings.Contains(err.Error(), "connection refused")
}
