package database

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openSQLite(cfg Config) (*gorm.DB, error) {
	dsn, err := buildSQLiteDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(sqlite.Open(dsn), gormConfig())
}

// buildSQLiteDSN returns a go-sqlite3 file URI with foreign keys on. File databases also get
// WAL journaling and a busy timeout so concurrent relay writers wait instead of failing; the
// parent directory is created. Options override the defaults.
func buildSQLiteDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}

	params := url.Values{}
	params.Set("_foreign_keys", "1")

	path := strings.TrimSpace(cfg.Path)
	memory := path == "" || strings.EqualFold(path, ":memory:")
	if memory {
		params.Set("cache", "shared")
	} else {
		params.Set("_journal_mode", "WAL")
		params.Set("_busy_timeout", "5000")
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("create sqlite directory: %w", err)
			}
		}
	}
	for key, value := range cfg.Options {
		params.Set(key, value)
	}

	if memory {
		return "file::memory:?" + params.Encode(), nil
	}
	return "file:" + filepath.ToSlash(path) + "?" + params.Encode(), nil
}
