// Package config provides configuration loading and structs for the ticktie server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Model      ModelConfig      `yaml:"model"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Storage    StorageConfig    `yaml:"storage"`
	Watch      WatchConfig      `yaml:"watch"`
	Export     ExportConfig     `yaml:"export"`
	Search     SearchConfig     `yaml:"search"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ModelConfig selects the remote model and how to reach it.
type ModelConfig struct {
	// Backend is "gemini" (API key) or "vertex" (project + location with application default credentials).
	Backend         string        `yaml:"backend"`
	APIKey          string        `yaml:"api_key"`
	Project         string        `yaml:"project"`
	Location        string        `yaml:"location"`
	ExtractionModel string        `yaml:"extraction_model"`
	ReconcileModel  string        `yaml:"reconcile_model"`
	Temperature     float32       `yaml:"temperature"`
	Timeout         time.Duration `yaml:"timeout"`
}

// ExtractionConfig holds upload and extraction settings.
type ExtractionConfig struct {
	// Concurrency above 1 extracts documents in parallel; 1 keeps the sequential order.
	Concurrency int      `yaml:"concurrency"`
	MaxUploadMB int      `yaml:"max_upload_mb"`
	Palette     []string `yaml:"palette"`
}

// MaxUploadBytes returns the upload cap in bytes.
func (e *ExtractionConfig) MaxUploadBytes() int64 {
	return int64(e.MaxUploadMB) << 20
}

// StorageConfig selects where the document set lives.
type StorageConfig struct {
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
}

// WatchConfig holds drop-folder settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ExportConfig holds the archive layout.
type ExportConfig struct {
	ArchiveName  string `yaml:"archive_name"`
	WorkbookName string `yaml:"workbook_name"`
	DocumentsDir string `yaml:"documents_dir"`
	AllTables    bool   `yaml:"all_tables"`
}

// SearchConfig holds keyword search settings.
type SearchConfig struct {
	Enabled      *bool `yaml:"enabled"`
	DefaultLimit int   `yaml:"default_limit"`
	MaxLimit     int   `yaml:"max_limit"`
	Fuzziness    int   `yaml:"fuzziness"`
}

// EnabledOrDefault returns whether search is on; defaults to true when unset.
func (s *SearchConfig) EnabledOrDefault() bool {
	if s.Enabled != nil {
		return *s.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	return &cfg, nil
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Model.Backend {
	case BackendGemini:
	case BackendVertex:
		if c.Model.Project == "" {
			return fmt.Errorf("model.project is required for the %s backend", BackendVertex)
		}
	default:
		return fmt.Errorf("unknown model backend: %s (supported: %s, %s)", c.Model.Backend, BackendGemini, BackendVertex)
	}
	switch c.Storage.Driver {
	case "memory", "sqlite":
	default:
		return fmt.Errorf("unknown storage driver: %s (supported: memory, sqlite)", c.Storage.Driver)
	}
	if c.Extraction.Concurrency < 1 {
		return fmt.Errorf("extraction.concurrency must be at least 1, got %d", c.Extraction.Concurrency)
	}
	return nil
}

// Save writes the config to path. Used for persisting watch directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
