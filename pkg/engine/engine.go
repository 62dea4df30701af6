// Package engine runs one synchronization pass: scan, plan, confirm,
// record intent, transfer, and mirror the audit manifest. Every state
// after the local manifest write is recoverable by simply re-running,
// because classification is re-derived from live remote state.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hca-tools/smart-sync/internal/layout"
	"github.com/hca-tools/smart-sync/internal/scanner"
	"github.com/hca-tools/smart-sync/pkg/executor"
	"github.com/hca-tools/smart-sync/pkg/manifest"
	"github.com/hca-tools/smart-sync/pkg/planner"
	"github.com/hca-tools/smart-sync/pkg/remoteindex"
	"github.com/hca-tools/smart-sync/pkg/s3client"
)

// State tracks run progress. PLAN_CONFIRMED and MANIFEST_WRITTEN are
// the only states guaranteed durable before any transfer begins.
type State string

const (
	StateScanned         State = "SCANNED"
	StatePlanned         State = "PLANNED"
	StatePlanConfirmed   State = "PLAN_CONFIRMED"
	StateManifestWritten State = "MANIFEST_WRITTEN"
	StateTransferring    State = "TRANSFERRING"
	StateCompleted       State = "COMPLETED"
	StatePartiallyFailed State = "PARTIALLY_FAILED"
	StateAborted         State = "ABORTED"
)

// Options configures a single run. Confirm is the caller's decision
// function; the engine itself never blocks on terminal input.
type Options struct {
	LocalPath        string
	Destination      layout.Destination
	TrackedExtension string
	Excludes         []string
	Concurrency      int
	Force            bool
	DryRun           bool
	Confirm          func(*planner.Plan) bool
	Tool             string
	Version          string
}

// Report is the outcome of a run. ManifestUploadErr is a warning, not
// a failure: the data files are safely uploaded and verifiable, only
// the remote audit trail is delayed.
type Report struct {
	State             State
	Plan              *planner.Plan
	SkippedLocal      []*scanner.IOError
	Cancelled         bool
	ManifestPath      string
	Outcome           *executor.Outcome
	ManifestUploadErr error
}

// Engine executes runs against one object store client.
type Engine struct {
	client s3client.Client
	logger *slog.Logger
}

func New(client s3client.Client, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{client: client, logger: logger}
}

// Run drives the state machine for one pass. Planning-phase errors
// (unreadable baseline, key conflicts, unwritable manifest) abort the
// run and are returned alongside a Report in StateAborted; transfer
// errors never do, they surface in the report's outcome.
func (e *Engine) Run(ctx context.Context, opts Options) (*Report, error) {
	report := &Report{State: StateAborted}

	scan, err := scanner.New(opts.LocalPath, opts.TrackedExtension, opts.Excludes, opts.Concurrency, e.logger)
	if err != nil {
		return report, err
	}

	files, skippedLocal, err := scan.Scan(ctx)
	if err != nil {
		return report, fmt.Errorf("scan local files: %w", err)
	}
	report.SkippedLocal = skippedLocal
	report.State = StateScanned
	e.logger.Info("scanned local directory",
		"path", scan.Root(), "files", len(files), "skipped", len(skippedLocal))

	fetcher := remoteindex.NewFetcher(e.client, opts.Concurrency, e.logger)
	index, err := fetcher.Snapshot(ctx, opts.Destination.Bucket, opts.Destination.Prefix())
	if err != nil {
		report.State = StateAborted
		return report, fmt.Errorf("remote baseline unavailable: %w", err)
	}
	e.logger.Info("fetched remote index",
		"destination", opts.Destination.URI(), "objects", len(index))

	plan, err := planner.Build(files, index, opts.Destination, opts.Force, time.Now())
	if err != nil {
		report.State = StateAborted
		return report, err
	}
	report.Plan = plan
	report.State = StatePlanned

	newCount, changed, unchanged := plan.Counts()
	e.logger.Info("plan ready",
		"new", newCount, "changed", changed, "unchanged", unchanged,
		"bytes", plan.TotalUploadBytes())

	uploads := plan.Uploads()
	if len(uploads) == 0 {
		report.State = StateCompleted
		report.Outcome = &executor.Outcome{}
		e.logger.Info("everything up to date, nothing to upload")
		return report, nil
	}

	if opts.DryRun {
		return report, nil
	}

	if opts.Confirm != nil && !opts.Confirm(plan) {
		report.Cancelled = true
		e.logger.Info("upload cancelled before confirmation")
		return report, nil
	}

	plan.Confirm()
	report.State = StatePlanConfirmed

	// The manifest must be durable before the first byte moves: an
	// unrecorded plan must never proceed to transfer.
	m, err := manifest.Build(plan, opts.Tool, opts.Version)
	if err != nil {
		report.State = StateAborted
		return report, err
	}
	manifestPath, err := m.WriteLocal(scan.Root(), plan.CreatedAt)
	if err != nil {
		report.State = StateAborted
		return report, err
	}
	report.ManifestPath = manifestPath
	report.State = StateManifestWritten
	e.logger.Info("manifest written", "path", manifestPath)

	report.State = StateTransferring
	exec := executor.New(e.client, opts.Concurrency, e.logger)
	outcome := exec.Run(ctx, opts.Destination.Bucket, uploads)
	report.Outcome = outcome

	if !outcome.Complete() {
		report.State = StatePartiallyFailed
		e.logger.Warn("transfer finished with failures",
			"succeeded", len(outcome.Succeeded), "failed", len(outcome.Failed))
		return report, nil
	}

	if err := manifest.Upload(ctx, e.client, manifestPath, opts.Destination); err != nil {
		// Files are all uploaded and verifiable; only the remote audit
		// trail is delayed.
		report.ManifestUploadErr = err
		e.logger.Warn("manifest mirror failed", "error", err)
	}

	report.State = StateCompleted
	e.logger.Info("run completed", "uploaded", len(outcome.Succeeded))
	return report, nil
}
