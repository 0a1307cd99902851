// Package repo implements the data persistence layer for incident records,
// backed by GORM over SQLite (pure Go driver). This file contains database
// bootstrapping and schema migration helpers.
package repo

import (
	"os"
	"path/filepath"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
// It fails fast when the parent directory does not exist so a bad DB_PATH
// surfaces at startup instead of as a cryptic driver error later.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// AutoMigrate idempotently ensures the incidents schema and its indexes
// exist. GORM's migrator only ever adds missing columns and indexes, so a
// table created by an older schema version is upgraded additively; columns
// are never dropped or renamed.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&incidentRow{})
}
