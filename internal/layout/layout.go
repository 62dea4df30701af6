// Package layout defines the destination key namespace for atlas
// submissions: <bionetwork>/<atlas>/<file-type>/<filename> for data
// objects and <bionetwork>/<atlas>/manifests/<filename> for manifests.
package layout

import (
	"fmt"
	"strings"
)

// FileType is the submission category under an atlas prefix.
type FileType string

const (
	FileTypeSourceDatasets    FileType = "source-datasets"
	FileTypeIntegratedObjects FileType = "integrated-objects"
)

const manifestFolder = "manifests"

// ParseFileType validates a file-type argument against the fixed set.
func ParseFileType(s string) (FileType, error) {
	switch FileType(s) {
	case FileTypeSourceDatasets, FileTypeIntegratedObjects:
		return FileType(s), nil
	}
	return "", fmt.Errorf("unknown file type %q (expected %s or %s)",
		s, FileTypeSourceDatasets, FileTypeIntegratedObjects)
}

// Destination identifies the remote namespace a run uploads into.
type Destination struct {
	Bucket     string
	Bionetwork string
	Atlas      string
	FileType   FileType
}

// NewDestination resolves the bionetwork for atlas and builds a
// Destination. networks holds explicit atlas-to-network overrides; when
// an atlas has no entry, its network is the name stem before the first
// dash (gut-v1 -> gut).
func NewDestination(bucket, atlas string, fileType FileType, networks map[string]string) (Destination, error) {
	if bucket == "" {
		return Destination{}, fmt.Errorf("bucket must not be empty")
	}
	if atlas == "" || strings.ContainsAny(atlas, "/ ") {
		return Destination{}, fmt.Errorf("invalid atlas name %q", atlas)
	}

	network, ok := networks[atlas]
	if !ok {
		network = strings.SplitN(atlas, "-", 2)[0]
	}
	if network == "" {
		return Destination{}, fmt.Errorf("cannot derive bionetwork for atlas %q", atlas)
	}

	return Destination{
		Bucket:     bucket,
		Bionetwork: network,
		Atlas:      atlas,
		FileType:   fileType,
	}, nil
}

// Prefix returns the data object prefix, with a trailing slash.
func (d Destination) Prefix() string {
	return fmt.Sprintf("%s/%s/%s/", d.Bionetwork, d.Atlas, d.FileType)
}

// Key maps a slash-separated relative path to its data object key.
func (d Destination) Key(relPath string) string {
	return d.Prefix() + relPath
}

// ManifestPrefix returns the manifest namespace, a sibling of the
// file-type folder under the same atlas.
func (d Destination) ManifestPrefix() string {
	return fmt.Sprintf("%s/%s/%s/", d.Bionetwork, d.Atlas, manifestFolder)
}

// ManifestKey maps a manifest filename to its object key.
func (d Destination) ManifestKey(filename string) string {
	return d.ManifestPrefix() + filename
}

// URI renders the destination as an s3:// URI for display and for the
// manifest's upload_destination field.
func (d Destination) URI() string {
	return fmt.Sprintf("s3://%s/%s", d.Bucket, d.Prefix())
}
