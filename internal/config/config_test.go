package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mirrors.StatusURL != "https://archlinux.org/mirrors/status/json/" {
		t.Errorf("unexpected status URL: %s", cfg.Mirrors.StatusURL)
	}
	if cfg.Mirrors.Mirrorlist != "/etc/pacman.d/mirrorlist" {
		t.Errorf("unexpected mirrorlist path: %s", cfg.Mirrors.Mirrorlist)
	}
	if cfg.Store.DBPath == "" {
		t.Error("expected a default store path")
	}
	if cfg.Probe.Retries != 3 {
		t.Errorf("expected 3 probe retries, got %d", cfg.Probe.Retries)
	}
}

func TestLoad(t *testing.T) {
	content := `
mirrors:
  status_url: "https://example.org/status/json/"
  mirrorlist: "/tmp/mirrorlist"
probe:
  retries: 5
`
	path := filepath.Join(t.TempDir(), "pacmirror.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Mirrors.StatusURL != "https://example.org/status/json/" {
		t.Errorf("status URL not overridden: %s", cfg.Mirrors.StatusURL)
	}
	if cfg.Mirrors.Mirrorlist != "/tmp/mirrorlist" {
		t.Errorf("mirrorlist not overridden: %s", cfg.Mirrors.Mirrorlist)
	}
	if cfg.Probe.Retries != 5 {
		t.Errorf("retries not overridden: %d", cfg.Probe.Retries)
	}

	// Unset keys keep their defaults.
	if cfg.Mirrors.Selection != "/etc/pacmirror/selection.json" {
		t.Errorf("selection default lost: %s", cfg.Mirrors.Selection)
	}
	if cfg.Store.DBPath != "/var/lib/pacmirror/pacmirror.db" {
		t.Errorf("store default lost: %s", cfg.Store.DBPath)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("mirrors: [not a mapping"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for invalid YAML")
	}
}
