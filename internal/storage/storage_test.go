package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/lightsync/internal/logger"
	"codeberg.org/mutker/lightsync/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(version int) storage.Schema {
	return storage.Schema{
		Name:      "test",
		Version:   version,
		CreateSQL: `CREATE TABLE IF NOT EXISTS items (id INTEGER PRIMARY KEY, name TEXT NOT NULL);`,
		Tables:    []string{"items"},
	}
}

func TestOpenInitializesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "test.db")

	db, err := storage.Open(path, testSchema(1), logger.Nop())
	require.NoError(t, err)
	defer storage.Close(db)

	version, err := storage.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	exists, err := storage.TableExists(db, "items")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	db, err := storage.Open(path, testSchema(1), logger.Nop())
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO items (name) VALUES ('kept')`)
	require.NoError(t, err)
	require.NoError(t, storage.Close(db))

	db, err = storage.Open(path, testSchema(1), logger.Nop())
	require.NoError(t, err)
	defer storage.Close(db)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestVersionMismatchBacksUpAndRecreates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")

	db, err := storage.Open(path, testSchema(1), logger.Nop())
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO items (name) VALUES ('old')`)
	require.NoError(t, err)
	require.NoError(t, storage.Close(db))

	db, err = storage.Open(path, testSchema(2), logger.Nop())
	require.NoError(t, err)
	defer storage.Close(db)

	version, err := storage.GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count))
	assert.Zero(t, count)

	backups, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestOpenRejectsEmptyPath(t *testing.T) {
	_, err := storage.Open("", testSchema(1), logger.Nop())
	assert.Error(t, err)
}
