package storage

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"devscope/internal/config"
)

// NewRecorder builds the configured recorder. No db_path means no
// persistence; an unopenable database degrades to the no-op recorder
// with a warning instead of failing startup.
func NewRecorder(cfg config.StorageConfig) (Recorder, bool) {
	if cfg.DBPath == "" {
		return NopRecorder{}, false
	}

	dbPath := expandTilde(cfg.DBPath)

	store, err := NewSQLiteStore(dbPath, cfg.RetentionDays)
	if err != nil {
		log.Printf("WARNING: SQLite storage unavailable (%v), sighting history disabled", err)
		return NopRecorder{}, false
	}

	return store, true
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
