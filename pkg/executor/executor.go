// Package executor drives the transfer phase of a run: it uploads
// every eligible plan entry with bounded parallelism, isolates
// per-file failures, and re-derives each file's remote state at upload
// time so interrupted runs can resume without re-transferring files
// that are already correct.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/hca-tools/smart-sync/pkg/planner"
	"github.com/hca-tools/smart-sync/pkg/s3client"
)

// TransferError reports a single file that could not be uploaded. It
// never aborts the remaining uploads.
type TransferError struct {
	Key string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer %s: %v", e.Key, e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Result is the outcome for one plan entry.
type Result struct {
	Entry planner.Entry
	// Skipped means the remote fingerprint already matched at upload
	// time, so no bytes were transferred.
	Skipped bool
	Err     error
}

// Outcome partitions per-entry results after every eligible entry has
// been attempted.
type Outcome struct {
	Succeeded []Result
	Failed    []Result
}

// Complete reports whether the succeeded set covers all eligible
// entries.
func (o *Outcome) Complete() bool { return len(o.Failed) == 0 }

// Executor uploads plan entries through the object store client.
type Executor struct {
	client      s3client.Client
	concurrency int
	logger      *slog.Logger
}

func New(client s3client.Client, concurrency int, logger *slog.Logger) *Executor {
	if concurrency <= 0 {
		concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		client:      client,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Run attempts every entry and returns the per-file outcome set. A
// cancelled context stops issuing new uploads; entries not attempted
// are reported as failed so the next run picks them up.
func (e *Executor) Run(ctx context.Context, bucket string, entries []planner.Entry) *Outcome {
	results := make([]Result, len(entries))

	sem := make(chan struct{}, e.concurrency)
	var wg sync.WaitGroup

	for i, entry := range entries {
		wg.Add(1)
		go func(idx int, entry planner.Entry) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if ctx.Err() != nil {
				results[idx] = Result{Entry: entry, Err: &TransferError{Key: entry.Key, Err: ctx.Err()}}
				return
			}

			results[idx] = e.transfer(ctx, bucket, entry)
		}(i, entry)
	}
	wg.Wait()

	outcome := &Outcome{}
	for _, r := range results {
		if r.Err != nil {
			outcome.Failed = append(outcome.Failed, r)
		} else {
			outcome.Succeeded = append(outcome.Succeeded, r)
		}
	}

	return outcome
}

// transfer uploads one entry. The remote fingerprint is checked live
// first: a stale plan entry whose object is already correct is skipped
// rather than re-transferred. Forced entries skip the check and always
// upload.
func (e *Executor) transfer(ctx context.Context, bucket string, entry planner.Entry) Result {
	if !entry.Forced {
		info, err := e.client.HeadObject(ctx, bucket, entry.Key)
		switch {
		case err == nil:
			if info.Fingerprint != "" && info.Fingerprint == entry.File.Fingerprint {
				e.logger.Info("already current, skipping",
					"key", entry.Key, "fingerprint", entry.File.Fingerprint)
				return Result{Entry: entry, Skipped: true}
			}
		case errors.Is(err, s3client.ErrNotFound):
			// Expected for new files.
		default:
			// Verification failed; the upload attempt below will surface
			// any real connectivity problem.
			e.logger.Debug("pre-upload check failed", "key", entry.Key, "error", err)
		}
	}

	file, err := os.Open(entry.File.AbsPath)
	if err != nil {
		return Result{Entry: entry, Err: &TransferError{Key: entry.Key, Err: err}}
	}
	defer file.Close()

	e.logger.Info("uploading",
		"path", entry.File.AbsPath,
		"key", entry.Key,
		"size", entry.File.Size,
		"reason", entry.Reason)

	err = e.client.PutObject(ctx, &s3client.PutRequest{
		Bucket:      bucket,
		Key:         entry.Key,
		Body:        file,
		Size:        entry.File.Size,
		Fingerprint: entry.File.Fingerprint,
		ContentType: guessContentType(entry.File.AbsPath),
	})
	if err != nil {
		e.logger.Error("upload failed", "key", entry.Key, "error", err)
		return Result{Entry: entry, Err: &TransferError{Key: entry.Key, Err: err}}
	}

	return Result{Entry: entry}
}
