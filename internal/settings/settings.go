package settings

import (
	"fmt"
	"os"

	"github.com/jinzhu/configor"
)

// Defaults for the managed submission buckets per environment.
const (
	DefaultProdBucket = "hca-atlas-tracker-data"
	DefaultDevBucket  = "hca-atlas-tracker-data-dev"
)

// AWSSettings selects the credential profile and region used for the
// object store session.
type AWSSettings struct {
	Profile string
	Region  string `default:"us-east-1"`
}

// Settings is the explicit configuration value handed to the engine.
// There is no ambient global state; cmd loads this once and passes it
// down.
type Settings struct {
	Environment      string `default:"prod"`
	Bucket           string // overrides the per-environment default when set
	TrackedExtension string `default:".h5ad"`
	Concurrency      int    `default:"8"`
	Excludes         []string
	AWS              AWSSettings

	// Bionetworks maps an atlas name to its bionetwork when the
	// atlas-name stem is not the network (e.g. lung-fibrosis-v1 -> lung).
	Bionetworks map[string]string
}

// Load reads settings from the optional YAML file at path, applying
// struct defaults and HCA_SMART_SYNC_* environment overrides. An empty
// path loads defaults only.
func Load(path string) (Settings, error) {
	var s Settings

	loader := configor.New(&configor.Config{ENVPrefix: "HCA_SMART_SYNC", Silent: true})

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return s, fmt.Errorf("settings file %s: %w", path, err)
		}
		if err := loader.Load(&s, path); err != nil {
			return s, fmt.Errorf("load settings: %w", err)
		}
	} else {
		if err := loader.Load(&s); err != nil {
			return s, fmt.Errorf("load settings: %w", err)
		}
	}

	if err := s.validate(); err != nil {
		return s, err
	}
	return s, nil
}

func (s Settings) validate() error {
	switch s.Environment {
	case "prod", "dev":
	default:
		return fmt.Errorf("unknown environment %q (expected prod or dev)", s.Environment)
	}
	if s.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", s.Concurrency)
	}
	return nil
}

// ResolveBucket returns the destination bucket: an explicit bucket wins
// over the per-environment default.
func (s Settings) ResolveBucket() string {
	if s.Bucket != "" {
		return s.Bucket
	}
	if s.Environment == "dev" {
		return DefaultDevBucket
	}
	return DefaultProdBucket
}
