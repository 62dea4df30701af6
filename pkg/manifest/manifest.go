// Package manifest builds and persists the durable record of upload
// intent for a run. The local manifest is written before any transfer
// begins and mirrored to the remote manifests namespace only after
// every transfer has succeeded.
package manifest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/hca-tools/smart-sync/internal/fingerprint"
	"github.com/hca-tools/smart-sync/internal/layout"
	"github.com/hca-tools/smart-sync/pkg/planner"
	"github.com/hca-tools/smart-sync/pkg/s3client"
)

const manifestVersion = "1.0"

// timestampLayout is ISO-8601 with millisecond precision. Millisecond
// resolution also keeps manifest filenames unique across rapid
// successive runs.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

const filenameLayout = "20060102T150405.000Z"

// FileRecord is one file entry in the persisted manifest. Field names
// and the hex sha256 encoding are a fixed wire contract.
type FileRecord struct {
	Filename     string `json:"filename"`
	Path         string `json:"path"`
	SizeBytes    int64  `json:"size_bytes"`
	SHA256       string `json:"sha256"`
	LastModified string `json:"last_modified"`
}

// Metadata records where and when the upload was intended, and by
// which tool.
type Metadata struct {
	UploadDestination string `json:"upload_destination"`
	UploadTimestamp   string `json:"upload_timestamp"`
	Tool              string `json:"tool"`
	Version           string `json:"version"`
}

// Manifest is the audit record for one confirmed plan.
type Manifest struct {
	ManifestVersion string       `json:"manifest_version"`
	SubmissionID    string       `json:"submission_id"`
	Files           []FileRecord `json:"files"`
	Metadata        Metadata     `json:"metadata"`
}

// WriteError reports a local manifest that could not be persisted.
// It is fatal for the run: transfers must not start without a durable
// record of intent.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write manifest %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Build creates the manifest for a confirmed plan. It is pure apart
// from the generated submission id: no filesystem or network access.
// An unconfirmed plan is rejected; nothing may be recorded as upload
// intent before the plan is accepted.
func Build(plan *planner.Plan, tool, version string) (*Manifest, error) {
	if !plan.Confirmed() {
		return nil, fmt.Errorf("plan is not confirmed")
	}

	entries := plan.Entries()
	files := make([]FileRecord, 0, len(entries))
	for _, e := range entries {
		files = append(files, FileRecord{
			Filename:     filepath.Base(e.File.RelPath),
			Path:         e.File.AbsPath,
			SizeBytes:    e.File.Size,
			SHA256:       e.File.Fingerprint,
			LastModified: e.File.ModTime.UTC().Format(timestampLayout),
		})
	}

	return &Manifest{
		ManifestVersion: manifestVersion,
		SubmissionID:    uuid.NewString(),
		Files:           files,
		Metadata: Metadata{
			UploadDestination: plan.Destination.URI(),
			UploadTimestamp:   plan.CreatedAt.UTC().Format(timestampLayout),
			Tool:              tool,
			Version:           version,
		},
	}, nil
}

// Filename derives the manifest filename from the plan timestamp.
func Filename(ts time.Time) string {
	return fmt.Sprintf("manifest_%s.json", ts.UTC().Format(filenameLayout))
}

// WriteLocal persists the manifest into dir, named after the plan
// timestamp, and returns the written path.
func (m *Manifest) WriteLocal(dir string, ts time.Time) (string, error) {
	path := filepath.Join(dir, Filename(ts))

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", &WriteError{Path: path, Err: err}
	}
	data = append(data, '\n')

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", &WriteError{Path: path, Err: err}
	}

	return path, nil
}

// Upload reads the local manifest file and puts the identical bytes to
// the destination's manifests prefix, with the manifest's own
// fingerprint attached as metadata.
func Upload(ctx context.Context, client s3client.Client, localPath string, dest layout.Destination) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("read manifest %s: %w", localPath, err)
	}

	sum, err := fingerprint.Reader(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("fingerprint manifest: %w", err)
	}

	key := dest.ManifestKey(filepath.Base(localPath))
	err = client.PutObject(ctx, &s3client.PutRequest{
		Bucket:      dest.Bucket,
		Key:         key,
		Body:        bytes.NewReader(data),
		Size:        int64(len(data)),
		Fingerprint: sum,
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("upload manifest to %s: %w", key, err)
	}

	return nil
}
