package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds the runtime settings for the viewer backend.
type Config struct {
	// FootagePath is the TeslaCam root (contains RecentClips etc).
	FootagePath string `yaml:"footage_path"`
	// ConfigPath holds derived data: exports, thumbnail cache.
	ConfigPath string `yaml:"config_path"`
	Port       int    `yaml:"port"`

	// ProbeConcurrency bounds parallel ffprobe invocations while
	// resolving a clip's timeline.
	ProbeConcurrency int `yaml:"probe_concurrency"`

	// Export encoding settings.
	ExportBitrate string `yaml:"export_bitrate"`
	ExportFPS     int    `yaml:"export_fps"`
}

func DefaultConfig() *Config {
	return &Config{
		FootagePath:      "/footage",
		ConfigPath:       "/config",
		Port:             8080,
		ProbeConcurrency: 5,
		ExportBitrate:    "8M",
		ExportFPS:        30,
	}
}

// ExportDir is where finished export artifacts are placed.
func (c *Config) ExportDir() string {
	return filepath.Join(c.ConfigPath, "exports")
}

// ThumbDir is the thumbnail cache directory.
func (c *Config) ThumbDir() string {
	return filepath.Join(c.ConfigPath, "thumbnails")
}

// LoadConfigFile loads configuration from a YAML file on top of defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// FindConfigFile searches standard locations. Empty string means not found,
// which is non-fatal: defaults plus env vars apply.
func FindConfigFile() string {
	locations := []string{
		"./camviewer.yaml",
		"./camviewer.yml",
		filepath.Join(os.Getenv("HOME"), ".camviewer", "config.yaml"),
		"/etc/camviewer/config.yaml",
	}
	for _, path := range locations {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Load resolves the effective configuration: defaults, then an optional
// config file, then environment variable overrides.
func Load() *Config {
	cfg := DefaultConfig()
	if path := FindConfigFile(); path != "" {
		if loaded, err := LoadConfigFile(path); err == nil {
			cfg = loaded
		}
	}
	if v := os.Getenv("FOOTAGE_PATH"); v != "" {
		cfg.FootagePath = v
	}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfg.ConfigPath = v
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Port = port
		}
	}
	return cfg
}
