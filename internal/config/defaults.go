package config

import (
	"os"
	"time"
)

// Model backends.
const (
	BackendGemini = "gemini"
	BackendVertex = "vertex"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Model.Backend == "" {
		cfg.Model.Backend = BackendGemini
	}
	if cfg.Model.APIKey == "" && cfg.Model.Backend == BackendGemini {
		cfg.Model.APIKey = firstEnv("GEMINI_API_KEY", "GOOGLE_API_KEY")
	}
	if cfg.Model.Backend == BackendVertex {
		if cfg.Model.Project == "" {
			cfg.Model.Project = firstEnv("GOOGLE_CLOUD_PROJECT")
		}
		if cfg.Model.Location == "" {
			cfg.Model.Location = "us-central1"
		}
	}
	if cfg.Model.ExtractionModel == "" {
		cfg.Model.ExtractionModel = "gemini-2.5-flash"
	}
	if cfg.Model.ReconcileModel == "" {
		cfg.Model.ReconcileModel = "gemini-2.5-pro"
	}
	if cfg.Model.Timeout == 0 {
		cfg.Model.Timeout = 120 * time.Second
	}
	if cfg.Extraction.Concurrency == 0 {
		cfg.Extraction.Concurrency = 1
	}
	if cfg.Extraction.MaxUploadMB == 0 {
		cfg.Extraction.MaxUploadMB = 20
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "memory"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/ticktie/session.db"
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf", ".png", ".jpg", ".jpeg", ".gif", ".webp", ".bmp", ".tif", ".tiff"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
	if cfg.Export.ArchiveName == "" {
		cfg.Export.ArchiveName = "tick_and_tie_export.zip"
	}
	if cfg.Export.WorkbookName == "" {
		cfg.Export.WorkbookName = "audit_results.xlsx"
	}
	if cfg.Export.DocumentsDir == "" {
		cfg.Export.DocumentsDir = "documents"
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.Fuzziness == 0 {
		cfg.Search.Fuzziness = 1
	}
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}
