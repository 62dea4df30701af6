// Package remoteindex builds a point-in-time snapshot of the objects
// already present under a destination prefix, keyed by their path
// relative to that prefix.
package remoteindex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hca-tools/smart-sync/pkg/s3client"
)

// Record describes one remote object. Fingerprint is the stored
// content hash from object metadata; it is empty when the object was
// uploaded by a writer that did not record one, which callers must
// treat as unverifiable rather than unchanged.
type Record struct {
	Key          string // relative to the destination prefix
	Size         int64
	LastModified time.Time
	Fingerprint  string
}

// Index maps relative object keys to their records. A missing key
// means the object has not been uploaded yet.
type Index map[string]Record

// Fetcher queries the object store for the remote baseline.
type Fetcher struct {
	client      s3client.Client
	concurrency int
	logger      *slog.Logger
}

func NewFetcher(client s3client.Client, concurrency int, logger *slog.Logger) *Fetcher {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		client:      client,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Snapshot lists every object under prefix and resolves its stored
// fingerprint metadata with bounded-parallel head requests. Any listing
// or metadata failure poisons the baseline and is returned as an error;
// a plan must never be built against a partial snapshot. The one
// exception is an object deleted mid-snapshot, which is dropped from
// the index as if it had never been listed.
func (f *Fetcher) Snapshot(ctx context.Context, bucket, prefix string) (Index, error) {
	objects, err := f.client.ListObjects(ctx, bucket, prefix)
	if err != nil {
		return nil, err
	}

	index := make(Index, len(objects))
	records := make([]Record, 0, len(objects))
	for _, obj := range objects {
		relKey := strings.TrimPrefix(obj.Key, prefix)
		if relKey == "" || strings.HasSuffix(relKey, "/") {
			// Prefix placeholder objects carry no content.
			continue
		}
		records = append(records, Record{
			Key:          relKey,
			Size:         obj.Size,
			LastModified: obj.LastModified,
		})
	}

	sem := make(chan struct{}, f.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var headErr error
	dropped := make([]bool, len(records))

	for i := range records {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec := &records[i]

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				mu.Lock()
				if headErr == nil {
					headErr = ctx.Err()
				}
				mu.Unlock()
				return
			}

			info, err := f.client.HeadObject(ctx, bucket, prefix+rec.Key)
			if errors.Is(err, s3client.ErrNotFound) {
				// Deleted between listing and metadata resolution. As if
				// it was never listed; a pending upload for the key is
				// handled at transfer time.
				f.logger.Warn("object disappeared during snapshot", "key", rec.Key)
				dropped[i] = true
				return
			}
			if err != nil {
				mu.Lock()
				if headErr == nil {
					headErr = fmt.Errorf("resolve metadata for %s: %w", rec.Key, err)
				}
				mu.Unlock()
				return
			}

			if info.Fingerprint == "" {
				f.logger.Warn("remote object has no fingerprint metadata",
					"key", rec.Key)
			}
			rec.Fingerprint = info.Fingerprint
		}(i)
	}
	wg.Wait()

	if headErr != nil {
		return nil, headErr
	}

	for i, rec := range records {
		if dropped[i] {
			continue
		}
		index[rec.Key] = rec
	}

	return index, nil
}
