package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// FingerprintMetadataKey is the object metadata field carrying the hex
// SHA-256 content fingerprint on every uploaded object. Its presence
// and value are the sole basis for change detection on later runs.
const FingerprintMetadataKey = "source-sha256"

// ErrNotFound reports a key that does not exist in the bucket. It is
// surfaced distinctly from authorization failures.
var ErrNotFound = errors.New("object not found")

// AccessError reports an authorization or connectivity failure against
// the object store. Callers treat it as fatal for the whole run.
type AccessError struct {
	Op     string
	Bucket string
	Err    error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s s3://%s: %v", e.Op, e.Bucket, e.Err)
}

func (e *AccessError) Unwrap() error { return e.Err }

// Object is one entry from a prefix listing.
type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectInfo is the per-key metadata view returned by HeadObject.
// Fingerprint is empty when the object was written without fingerprint
// metadata.
type ObjectInfo struct {
	Size         int64
	LastModified time.Time
	Fingerprint  string
}

// PutRequest describes a single object upload. Fingerprint is attached
// as object metadata under FingerprintMetadataKey.
type PutRequest struct {
	Bucket      string
	Key         string
	Body        io.Reader
	Size        int64
	Fingerprint string
	ContentType string
}

// Client is the object store capability the sync engine consumes.
type Client interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
	HeadObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
	PutObject(ctx context.Context, req *PutRequest) error
}
