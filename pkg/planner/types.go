package planner

import (
	"time"

	"github.com/hca-tools/smart-sync/internal/layout"
	"github.com/hca-tools/smart-sync/internal/scanner"
)

// Classification is the diff state of a local file against the remote
// baseline.
type Classification string

const (
	// ClassificationNew means no remote object exists for the key.
	ClassificationNew Classification = "new"
	// ClassificationChanged means a remote object exists but its
	// fingerprint differs from the local one, or carries none.
	ClassificationChanged Classification = "changed"
	// ClassificationUnchanged means the fingerprints match exactly.
	ClassificationUnchanged Classification = "unchanged"
)

// Entry is one classified file in an upload plan.
type Entry struct {
	File           scanner.File
	Key            string // full destination object key
	Classification Classification
	Reason         string
	// Forced marks an entry from a force-built plan. The executor
	// uploads forced entries unconditionally, without the pre-upload
	// currency check.
	Forced bool
}

// Plan is the ordered, classified set of files for one run. Once
// confirmed it cannot be un-confirmed, and its entries never change.
type Plan struct {
	Destination layout.Destination
	CreatedAt   time.Time
	Force       bool

	entries   []Entry
	confirmed bool
}

// Entries returns every classified entry in deterministic lexical
// order of relative path. The returned slice is a copy; a built plan
// never changes.
func (p *Plan) Entries() []Entry {
	entries := make([]Entry, len(p.entries))
	copy(entries, p.entries)
	return entries
}

// Uploads returns the entries eligible for transfer: new and changed
// files, or every entry when the plan was built with force.
func (p *Plan) Uploads() []Entry {
	var uploads []Entry
	for _, e := range p.entries {
		if p.Force || e.Classification != ClassificationUnchanged {
			uploads = append(uploads, e)
		}
	}
	return uploads
}

// Counts returns the number of entries per classification.
func (p *Plan) Counts() (newCount, changed, unchanged int) {
	for _, e := range p.entries {
		switch e.Classification {
		case ClassificationNew:
			newCount++
		case ClassificationChanged:
			changed++
		case ClassificationUnchanged:
			unchanged++
		}
	}
	return
}

// TotalUploadBytes is the byte volume of the eligible entries.
func (p *Plan) TotalUploadBytes() int64 {
	var total int64
	for _, e := range p.Uploads() {
		total += e.File.Size
	}
	return total
}

// Confirm marks the plan as accepted for transfer. The transition is
// one-way.
func (p *Plan) Confirm() { p.confirmed = true }

// Confirmed reports whether the plan has been accepted.
func (p *Plan) Confirmed() bool { return p.confirmed }
