package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration
type Config struct {
	Mirrors MirrorsConfig `yaml:"mirrors"`
	Store   StoreConfig   `yaml:"store"`
	Probe   ProbeConfig   `yaml:"probe"`
}

// MirrorsConfig holds mirror source and output settings
type MirrorsConfig struct {
	StatusURL  string `yaml:"status_url"`
	Mirrorlist string `yaml:"mirrorlist"`
	Selection  string `yaml:"selection"`
	RepoFile   string `yaml:"repo_file"`
}

// StoreConfig holds probe-history store settings
type StoreConfig struct {
	DBPath string `yaml:"db_path"`
}

// ProbeConfig holds mirror probe tuning
type ProbeConfig struct {
	Retries int `yaml:"retries"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mirrors: MirrorsConfig{
			StatusURL:  "https://archlinux.org/mirrors/status/json/",
			Mirrorlist: "/etc/pacman.d/mirrorlist",
			Selection:  "/etc/pacmirror/selection.json",
			RepoFile:   "/etc/pacman.d/pacmirror-repos.conf",
		},
		Store: StoreConfig{
			DBPath: "/var/lib/pacmirror/pacmirror.db",
		},
		Probe: ProbeConfig{
			Retries: 3,
		},
	}
}

// Load reads a config file from the given path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// FindConfigFile searches for a config file in standard locations
func FindConfigFile() (string, error) {
	searchPaths := []string{
		"pacmirror.yaml",
		"/etc/pacmirror/pacmirror.yaml",
	}

	// Add user config path
	if home, err := os.UserHomeDir(); err == nil {
		searchPaths = append(searchPaths,
			filepath.Join(home, ".config", "pacmirror", "pacmirror.yaml"),
		)
	}

	for _, path := range searchPaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", searchPaths)
}
