package settings

import (
	"context"
	"database/sql"
	"sync"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/logger"
	"codeberg.org/mutker/lightsync/internal/storage"
)

// Well-known slots written by the actuator fallback.
const (
	KeyColor      = "led_color"
	KeyBrightness = "led_brightness"
	KeyPattern    = "led_pattern"
)

const (
	ErrWriteFailed = errors.ErrorCode("settings_write_failed")
	ErrReadFailed  = errors.ErrorCode("settings_read_failed")
	ErrNotFound    = errors.ErrorCode("settings_not_found")
	ErrClosed      = errors.ErrorCode("settings_closed")
)

// Store is a persistent integer key/value store.
type Store interface {
	PutInt(ctx context.Context, key string, value int) error
	GetInt(ctx context.Context, key string) (int, error)
	Close() error
}

const schemaVersion = 1

var schema = storage.Schema{
	Name:    "settings",
	Version: schemaVersion,
	CreateSQL: `
	   CREATE TABLE IF NOT EXISTS settings (
	       key         TEXT PRIMARY KEY,
	       value       INTEGER NOT NULL CHECK (typeof(value) = 'integer'),
	       updated_at  INTEGER NOT NULL
	   );`,
	Tables: []string{"settings"},
}

const (
	upsertSQL = `
    INSERT INTO settings (key, value, updated_at)
    VALUES (?, ?, strftime('%s', 'now'))
    ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`

	selectSQL = `SELECT value FROM settings WHERE key = ?`
)

type sqliteStore struct {
	db     *sql.DB
	logger logger.Logger
	mu     sync.Mutex
	closed bool
}

// Open opens the SQLite backed store at path.
func Open(path string, log logger.Logger) (Store, error) {
	db, err := storage.Open(path, schema, log)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("path", path).
		Int("schema_version", schemaVersion).
		Msg("Settings store initialized")

	return &sqliteStore{db: db, logger: log}, nil
}

func (s *sqliteStore) PutInt(ctx context.Context, key string, value int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New().New(ErrClosed)
	}

	if _, err := s.db.ExecContext(ctx, upsertSQL, key, value); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}

	s.logger.Debug().Str("key", key).Int("value", value).Msg("Setting stored")
	return nil
}

func (s *sqliteStore) GetInt(ctx context.Context, key string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.New().New(ErrClosed)
	}

	var value int
	err := s.db.QueryRowContext(ctx, selectSQL, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New().WithData(ErrNotFound, key)
	}
	if err != nil {
		return 0, errors.New().Wrap(ErrReadFailed, err)
	}
	return value, nil
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	return storage.Close(s.db)
}

type memoryStore struct {
	mu     sync.RWMutex
	values map[string]int
}

// NewMemory returns a Store that lives only as long as the process.
func NewMemory() Store {
	return &memoryStore{values: make(map[string]int)}
}

func (m *memoryStore) PutInt(_ context.Context, key string, value int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	return nil
}

func (m *memoryStore) GetInt(_ context.Context, key string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.values[key]
	if !ok {
		return 0, errors.New().WithData(ErrNotFound, key)
	}
	return v, nil
}

func (*memoryStore) Close() error {
	return nil
}
