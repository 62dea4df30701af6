package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "prod", s.Environment)
	assert.Equal(t, ".h5ad", s.TrackedExtension)
	assert.Equal(t, 8, s.Concurrency)
	assert.Equal(t, DefaultProdBucket, s.ResolveBucket())
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	content := `
environment: dev
concurrency: 4
aws:
  profile: hca-submitter
  region: us-west-2
bionetworks:
  lung-fibrosis-v1: lung
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "dev", s.Environment)
	assert.Equal(t, 4, s.Concurrency)
	assert.Equal(t, "hca-submitter", s.AWS.Profile)
	assert.Equal(t, "us-west-2", s.AWS.Region)
	assert.Equal(t, DefaultDevBucket, s.ResolveBucket())
	assert.Equal(t, "lung", s.Bionetworks["lung-fibrosis-v1"])
}

func TestExplicitBucketWinsOverEnvironment(t *testing.T) {
	s := Settings{Environment: "dev", Bucket: "my-own-bucket"}
	assert.Equal(t, "my-own-bucket", s.ResolveBucket())
}

func TestLoadRejectsUnknownEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	require.NoError(t, os.WriteFile(path, []byte("environment: staging\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
