package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeCatalogFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runtimes.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write catalog file: %v", err)
	}
	return path
}

func TestLoadRuntimeCatalog_Valid(t *testing.T) {
	path := writeCatalogFile(t, `
image_tag: sandrun-guest:test
limits:
  max_source_size_mb: 2
  max_job_timeout_seconds: 60
  max_output_size_mb: 128
  max_memory_mb: 256
  max_cpu_quota: 500
`)

	catalog, err := LoadRuntimeCatalog(path)
	if err != nil {
		t.Fatalf("LoadRuntimeCatalog: %v", err)
	}
	if catalog.ImageTag != "sandrun-guest:test" {
		t.Errorf("got image_tag %q", catalog.ImageTag)
	}
	if got, want := catalog.MaxSourceBytes(), int64(2*1024*1024); got != want {
		t.Errorf("MaxSourceBytes() = %d, want %d", got, want)
	}
}

func TestLoadRuntimeCatalog_MissingFile(t *testing.T) {
	if _, err := LoadRuntimeCatalog(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing catalog file")
	}
}

func TestRuntimeCatalog_Validate_RequiresImageTag(t *testing.T) {
	catalog := &RuntimeCatalog{Limits: RuntimeCatalogLimits{MaxSourceSizeMB: 1, MaxJobTimeoutSeconds: 10}}
	if err := catalog.Validate(); err == nil {
		t.Error("expected an error for a catalog with no image_tag")
	}
}

func TestRuntimeCatalog_Validate_RequiresPositiveLimits(t *testing.T) {
	catalog := &RuntimeCatalog{ImageTag: "img:latest"}
	if err := catalog.Validate(); err == nil {
		t.Error("expected an error for a catalog with zero-value limits")
	}
}
