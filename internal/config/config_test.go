package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
model:
  api_key: "test-key"
  timeout: 45s
  temperature: 0.2
extraction:
  concurrency: 3
  palette: ["#000000", "#ffffff"]
export:
  all_tables: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Model.Backend != BackendGemini || cfg.Model.APIKey != "test-key" {
		t.Errorf("unexpected model config: %+v", cfg.Model)
	}
	if cfg.Model.Timeout != 45*time.Second {
		t.Errorf("timeout = %v, want 45s", cfg.Model.Timeout)
	}
	if cfg.Extraction.Concurrency != 3 || len(cfg.Extraction.Palette) != 2 {
		t.Errorf("unexpected extraction config: %+v", cfg.Extraction)
	}
	if !cfg.Export.AllTables || cfg.Export.ArchiveName != "tick_and_tie_export.zip" {
		t.Errorf("unexpected export config: %+v", cfg.Export)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_debugTrue(t *testing.T) {
	cfg, err := Load(writeConfig(t, "debug: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Debug {
		t.Error("debug should be true when set in config")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  driver: sqlite
  database_path: "./data/session.db"
watch:
  directories: ["./inbox"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "session.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "inbox") {
		t.Errorf("watch directories = %v", cfg.Watch.Directories)
	}
}

func TestLoad_invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad yaml", "server: [", "failed to parse config"},
		{"unknown backend", "model:\n  backend: openai\n", "unknown model backend"},
		{"vertex without project", "model:\n  backend: vertex\n", "model.project is required"},
		{"unknown driver", "storage:\n  driver: postgres\n", "unknown storage driver"},
		{"negative concurrency", "extraction:\n  concurrency: -2\n", "concurrency must be at least 1"},
	}
	t.Setenv("GOOGLE_CLOUD_PROJECT", "")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want containing %q", err, tt.want)
			}
		})
	}
}

func TestLoad_missingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestApplyDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "from-env")
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("default server: %+v", cfg.Server)
	}
	if cfg.Model.APIKey != "from-env" {
		t.Errorf("api key = %q, want env fallback", cfg.Model.APIKey)
	}
	if cfg.Model.ExtractionModel == "" || cfg.Model.ReconcileModel == "" || cfg.Model.Timeout == 0 {
		t.Errorf("model defaults missing: %+v", cfg.Model)
	}
	if cfg.Extraction.Concurrency != 1 || cfg.Extraction.MaxUploadBytes() != 20<<20 {
		t.Errorf("extraction defaults: %+v", cfg.Extraction)
	}
	if cfg.Storage.Driver != "memory" {
		t.Errorf("storage driver = %q", cfg.Storage.Driver)
	}
	if len(cfg.Watch.Extensions) == 0 || cfg.Watch.Extensions[0] != ".pdf" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if !cfg.Search.EnabledOrDefault() || cfg.Search.DefaultLimit != 10 || cfg.Search.Fuzziness != 1 {
		t.Errorf("search defaults: %+v", cfg.Search)
	}
	if cfg.Export.WorkbookName != "audit_results.xlsx" || cfg.Export.DocumentsDir != "documents" {
		t.Errorf("export defaults: %+v", cfg.Export)
	}
}

func TestApplyDefaults_vertexLocation(t *testing.T) {
	cfg := &Config{Model: ModelConfig{Backend: BackendVertex, Project: "audit-prod", APIKey: ""}}
	ApplyDefaults(cfg)
	if cfg.Model.Location != "us-central1" {
		t.Errorf("location = %q", cfg.Model.Location)
	}
	if cfg.Model.APIKey != "" {
		t.Error("vertex backend must not pick up an API key from the environment")
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/inbox"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	t.Run("nil_returns_true", func(t *testing.T) {
		w := &WatchConfig{}
		if got := w.RecursiveOrDefault(); !got {
			t.Errorf("RecursiveOrDefault() = %v, want true", got)
		}
	})
	t.Run("false_returns_false", func(t *testing.T) {
		f := false
		w := &WatchConfig{Recursive: &f}
		if got := w.RecursiveOrDefault(); got {
			t.Errorf("RecursiveOrDefault() = %v, want false", got)
		}
	})
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	off := false
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Model:   ModelConfig{Backend: BackendGemini, APIKey: "k", Timeout: 30 * time.Second},
		Storage: StorageConfig{Driver: "sqlite", DatabasePath: "/tmp/session.db"},
		Search:  SearchConfig{Enabled: &off},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Storage.Driver != "sqlite" {
		t.Errorf("loaded = %+v", loaded)
	}
	if loaded.Model.Timeout != 30*time.Second {
		t.Errorf("timeout round trip = %v", loaded.Model.Timeout)
	}
	if loaded.Search.EnabledOrDefault() {
		t.Error("search.enabled false did not survive save")
	}
}
