package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	want := Default()
	if cfg != want {
		t.Errorf("Load(missing) = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.toml")
	content := "concurrency = 8\nretries = 5\nkeep_raw = true\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write settings file: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Concurrency != 8 || cfg.Retries != 5 || !cfg.KeepRaw {
		t.Errorf("Load() = %+v, want concurrency=8 retries=5 keep_raw=true", cfg)
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.OutputDir = "/tmp/out"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid config, got error: %v", err)
	}

	cfg.Concurrency = 0
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for concurrency below minimum")
	}

	cfg.Concurrency = 99
	if err := cfg.Validate(); err == nil {
		t.Error("expected error for concurrency above maximum")
	}
}

func TestValidateRequiresOutputDir(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err == nil {
		t.Error("expected error when output dir is empty")
	}
}
