package layout

import (
	"testing"
)

func TestNewDestination(t *testing.T) {
	tests := []struct {
		name        string
		bucket      string
		atlas       string
		fileType    FileType
		networks    map[string]string
		wantNetwork string
		wantErr     bool
	}{
		{
			name:        "stem-derived network",
			bucket:      "test-bucket",
			atlas:       "gut-v1",
			fileType:    FileTypeSourceDatasets,
			wantNetwork: "gut",
		},
		{
			name:        "mapping override",
			bucket:      "test-bucket",
			atlas:       "lung-fibrosis-v1",
			fileType:    FileTypeIntegratedObjects,
			networks:    map[string]string{"lung-fibrosis-v1": "lung"},
			wantNetwork: "lung",
		},
		{
			name:     "empty bucket",
			atlas:    "gut-v1",
			fileType: FileTypeSourceDatasets,
			wantErr:  true,
		},
		{
			name:     "atlas with slash",
			bucket:   "test-bucket",
			atlas:    "gut/v1",
			fileType: FileTypeSourceDatasets,
			wantErr:  true,
		},
		{
			name:     "empty atlas",
			bucket:   "test-bucket",
			atlas:    "",
			fileType: FileTypeSourceDatasets,
			wantErr:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest, err := NewDestination(tt.bucket, tt.atlas, tt.fileType, tt.networks)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewDestination() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if dest.Bionetwork != tt.wantNetwork {
				t.Errorf("Bionetwork = %q, want %q", dest.Bionetwork, tt.wantNetwork)
			}
		})
	}
}

func TestDestinationKeys(t *testing.T) {
	dest, err := NewDestination("my-bucket", "immune-v2", FileTypeIntegratedObjects, nil)
	if err != nil {
		t.Fatal(err)
	}

	if got, want := dest.Prefix(), "immune/immune-v2/integrated-objects/"; got != want {
		t.Errorf("Prefix() = %q, want %q", got, want)
	}
	if got, want := dest.Key("a.h5ad"), "immune/immune-v2/integrated-objects/a.h5ad"; got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
	if got, want := dest.ManifestKey("manifest_x.json"), "immune/immune-v2/manifests/manifest_x.json"; got != want {
		t.Errorf("ManifestKey() = %q, want %q", got, want)
	}
	if got, want := dest.URI(), "s3://my-bucket/immune/immune-v2/integrated-objects/"; got != want {
		t.Errorf("URI() = %q, want %q", got, want)
	}
}

func TestParseFileType(t *testing.T) {
	if _, err := ParseFileType("source-datasets"); err != nil {
		t.Errorf("ParseFileType(source-datasets) error = %v", err)
	}
	if _, err := ParseFileType("integrated-objects"); err != nil {
		t.Errorf("ParseFileType(integrated-objects) error = %v", err)
	}
	if _, err := ParseFileType("raw-data"); err == nil {
		t.Error("ParseFileType(raw-data) expected error")
	}
}
