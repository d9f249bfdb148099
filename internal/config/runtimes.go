package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// RuntimeCatalog describes the guest runtime image and the resource caps
// enforced on every job, loaded from configs/runtimes.yaml.
type RuntimeCatalog struct {
	ImageTag string              `yaml:"image_tag"`
	Limits   RuntimeCatalogLimits `yaml:"limits"`
}

// RuntimeCatalogLimits bounds a single job's size and resource footprint.
type RuntimeCatalogLimits struct {
	MaxSourceSizeMB      int `yaml:"max_source_size_mb"`
	MaxJobTimeoutSeconds int `yaml:"max_job_timeout_seconds"`
	MaxOutputSizeMB      int `yaml:"max_output_size_mb"`
	MaxMemoryMB          int `yaml:"max_memory_mb"`
	MaxCPUQuota          int `yaml:"max_cpu_quota"`
}

// LoadRuntimeCatalog loads and validates a RuntimeCatalog from configPath.
func LoadRuntimeCatalog(configPath string) (*RuntimeCatalog, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: read runtime catalog %s: %w", configPath, err)
	}

	var catalog RuntimeCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("config: parse runtime catalog %s: %w", configPath, err)
	}

	if err := catalog.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid runtime catalog %s: %w", configPath, err)
	}

	return &catalog, nil
}

// Validate checks that the catalog names an image and carries positive
// resource caps.
func (c *RuntimeCatalog) Validate() error {
	if c.ImageTag == "" {
		return fmt.Errorf("image_tag is required")
	}
	if c.Limits.MaxSourceSizeMB <= 0 {
		return fmt.Errorf("limits.max_source_size_mb must be positive")
	}
	if c.Limits.MaxJobTimeoutSeconds <= 0 {
		return fmt.Errorf("limits.max_job_timeout_seconds must be positive")
	}
	return nil
}

// MaxSourceBytes returns the source-size cap in bytes.
func (c *RuntimeCatalog) MaxSourceBytes() int64 {
	return int64(c.Limits.MaxSourceSizeMB) * 1024 * 1024
}

// GetDefaultRuntimeCatalogPath mirrors the default-config-path search order
// of a project run from its root, its bin/ directory, or a test directory.
func GetDefaultRuntimeCatalogPath() string {
	candidates := []string{
		"configs/runtimes.yaml",
		"../configs/runtimes.yaml",
		"../../configs/runtimes.yaml",
	}

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			if abs, err := filepath.Abs(candidate); err == nil {
				return abs
			}
			return candidate
		}
	}

	return "configs/runtimes.yaml"
}

// LoadDefaultRuntimeCatalog loads the catalog from its default location.
func LoadDefaultRuntimeCatalog() (*RuntimeCatalog, error) {
	return LoadRuntimeCatalog(GetDefaultRuntimeCatalogPath())
}
