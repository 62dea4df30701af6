// Package planner classifies scanned local files against a remote
// index snapshot and produces the ordered upload plan for a run.
package planner

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/hca-tools/smart-sync/internal/layout"
	"github.com/hca-tools/smart-sync/internal/scanner"
	"github.com/hca-tools/smart-sync/pkg/remoteindex"
)

// ConflictError reports two local files that resolve to the same
// destination key. Proceeding would silently drop one of them, so the
// plan fails fast instead.
type ConflictError struct {
	Key   string
	Paths []string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("destination key conflict: %s and %s both map to %s",
		e.Paths[0], e.Paths[1], e.Key)
}

// Build classifies files against index and returns the plan. Entries
// are ordered by relative path so identical inputs always produce
// identical plans. Classification is computed even under force; force
// only widens eligibility.
func Build(files []scanner.File, index remoteindex.Index, dest layout.Destination, force bool, now time.Time) (*Plan, error) {
	sorted := make([]scanner.File, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].RelPath < sorted[j].RelPath
	})

	// Detect collisions on the case-folded destination key: S3 keys
	// are case-sensitive, but two names differing only in case are a
	// submission mistake, not two datasets.
	seen := make(map[string]string, len(sorted))

	entries := make([]Entry, 0, len(sorted))
	for _, f := range sorted {
		key := dest.Key(f.RelPath)

		folded := strings.ToLower(key)
		if prev, ok := seen[folded]; ok {
			return nil, &ConflictError{Key: key, Paths: []string{prev, f.RelPath}}
		}
		seen[folded] = f.RelPath

		entry := classify(f, key, index)
		if force {
			entry.Forced = true
			if entry.Classification == ClassificationUnchanged {
				entry.Reason = "forced"
			}
		}
		entries = append(entries, entry)
	}

	return &Plan{
		Destination: dest,
		CreatedAt:   now,
		Force:       force,
		entries:     entries,
	}, nil
}

func classify(f scanner.File, key string, index remoteindex.Index) Entry {
	entry := Entry{File: f, Key: key}

	remote, exists := index[f.RelPath]
	switch {
	case !exists:
		entry.Classification = ClassificationNew
		entry.Reason = "not present remotely"
	case remote.Fingerprint == "":
		entry.Classification = ClassificationChanged
		entry.Reason = "remote fingerprint missing"
	case remote.Fingerprint != f.Fingerprint:
		entry.Classification = ClassificationChanged
		entry.Reason = "fingerprint differs"
	default:
		entry.Classification = ClassificationUnchanged
		entry.Reason = "fingerprint matches"
	}

	return entry
}
