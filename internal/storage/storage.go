package storage

import (
	"database/sql"
	"os"
	"path/filepath"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

const defaultDirPerm = 0o755

// Open opens the SQLite database at path in WAL mode and brings schema up to
// date. Backups of outdated schemas are written to a "backups" directory next
// to the database.
func Open(path string, schema Schema, log logger.Logger) (*sql.DB, error) {
	errFactory := errors.New()

	if path == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  path,
			Error: err.Error(),
		})
	}

	dsn := path + "?_journal=WAL&_auto_vacuum=2&_busy_timeout=2000"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	backupDir := filepath.Join(filepath.Dir(path), "backups")
	if err := ValidateAndUpdateSchema(db, schema, backupDir, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	return db, nil
}

// Close checkpoints the WAL and closes db.
func Close(db *sql.DB) error {
	errFactory := errors.New()

	if _, err := db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		db.Close()
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := db.Close(); err != nil {
		return errFactory.WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	return nil
}
