package planner

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hca-tools/smart-sync/internal/layout"
	"github.com/hca-tools/smart-sync/internal/scanner"
	"github.com/hca-tools/smart-sync/pkg/remoteindex"
)

func testDest(t *testing.T) layout.Destination {
	t.Helper()
	dest, err := layout.NewDestination("test-bucket", "gut-v1", layout.FileTypeSourceDatasets, nil)
	require.NoError(t, err)
	return dest
}

func localFile(relPath, sum string, size int64) scanner.File {
	return scanner.File{
		RelPath:     relPath,
		AbsPath:     "/data/" + relPath,
		Size:        size,
		Fingerprint: sum,
		ModTime:     time.Unix(1700000000, 0),
	}
}

func TestBuildClassification(t *testing.T) {
	dest := testDest(t)

	files := []scanner.File{
		localFile("a.h5ad", "H1", 100),
		localFile("b.h5ad", "H2", 200),
		localFile("c.h5ad", "H3", 300),
		localFile("d.h5ad", "H4", 400),
	}
	index := remoteindex.Index{
		"a.h5ad": {Key: "a.h5ad", Fingerprint: "H1"}, // identical
		"c.h5ad": {Key: "c.h5ad", Fingerprint: "XX"}, // differs
		"d.h5ad": {Key: "d.h5ad"},                    // no fingerprint metadata
	}

	plan, err := Build(files, index, dest, false, time.Now())
	require.NoError(t, err)

	entries := plan.Entries()
	require.Len(t, entries, 4)

	assert.Equal(t, ClassificationUnchanged, entries[0].Classification)
	assert.Equal(t, ClassificationNew, entries[1].Classification)
	assert.Equal(t, ClassificationChanged, entries[2].Classification)
	assert.Equal(t, ClassificationChanged, entries[3].Classification)
	assert.Equal(t, "remote fingerprint missing", entries[3].Reason)

	assert.Equal(t, "gut/gut-v1/source-datasets/b.h5ad", entries[1].Key)

	newCount, changed, unchanged := plan.Counts()
	assert.Equal(t, 1, newCount)
	assert.Equal(t, 2, changed)
	assert.Equal(t, 1, unchanged)

	uploads := plan.Uploads()
	require.Len(t, uploads, 3)
	assert.Equal(t, int64(900), plan.TotalUploadBytes())
}

func TestBuildForceWidensEligibilityOnly(t *testing.T) {
	dest := testDest(t)

	files := []scanner.File{localFile("a.h5ad", "H1", 10)}
	index := remoteindex.Index{"a.h5ad": {Key: "a.h5ad", Fingerprint: "H1"}}

	plan, err := Build(files, index, dest, true, time.Now())
	require.NoError(t, err)

	// Classification is still computed for reporting.
	entry := plan.Entries()[0]
	assert.Equal(t, ClassificationUnchanged, entry.Classification)
	// But every entry is eligible and marked for unconditional upload.
	assert.True(t, entry.Forced)
	assert.Equal(t, "forced", entry.Reason)
	assert.Len(t, plan.Uploads(), 1)
}

func TestEntriesReturnsCopy(t *testing.T) {
	dest := testDest(t)

	plan, err := Build([]scanner.File{localFile("a.h5ad", "H1", 1)}, remoteindex.Index{}, dest, false, time.Now())
	require.NoError(t, err)

	entries := plan.Entries()
	entries[0].Key = "tampered"
	assert.NotEqual(t, "tampered", plan.Entries()[0].Key)
}

func TestBuildDeterministicOrder(t *testing.T) {
	dest := testDest(t)

	files := []scanner.File{
		localFile("c.h5ad", "H3", 1),
		localFile("a.h5ad", "H1", 1),
		localFile("b.h5ad", "H2", 1),
	}

	plan, err := Build(files, remoteindex.Index{}, dest, false, time.Now())
	require.NoError(t, err)

	entries := plan.Entries()
	assert.Equal(t, "a.h5ad", entries[0].File.RelPath)
	assert.Equal(t, "b.h5ad", entries[1].File.RelPath)
	assert.Equal(t, "c.h5ad", entries[2].File.RelPath)
}

func TestBuildCaseCollisionFailsFast(t *testing.T) {
	dest := testDest(t)

	files := []scanner.File{
		localFile("Data.h5ad", "H1", 1),
		localFile("data.h5ad", "H2", 1),
	}

	plan, err := Build(files, remoteindex.Index{}, dest, false, time.Now())
	require.Nil(t, plan)

	var conflict *ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.ElementsMatch(t, []string{"Data.h5ad", "data.h5ad"}, conflict.Paths)
}

func TestConfirmIsOneWay(t *testing.T) {
	dest := testDest(t)

	plan, err := Build(nil, remoteindex.Index{}, dest, false, time.Now())
	require.NoError(t, err)

	assert.False(t, plan.Confirmed())
	plan.Confirm()
	assert.True(t, plan.Confirmed())
}
