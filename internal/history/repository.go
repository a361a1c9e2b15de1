package history

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/led"
	"codeberg.org/mutker/lightsync/internal/logger"
	"codeberg.org/mutker/lightsync/internal/storage"
	"github.com/mattn/go-sqlite3"
)

const SchemaVersion = 1

// maxPendingBatches bounds how many batches are kept while the database
// cannot be written. Older snapshots are dropped first.
const maxPendingBatches = 4

var schema = storage.Schema{
	Name:    "history",
	Version: SchemaVersion,
	CreateSQL: `
	   CREATE TABLE IF NOT EXISTS snapshots (
	       timestamp    INTEGER NOT NULL,
	       mode         TEXT NOT NULL,
	       sensitivity  REAL NOT NULL CHECK (sensitivity >= 0),
	       bass         REAL NOT NULL CHECK (bass BETWEEN 0 AND 1),
	       mid          REAL NOT NULL CHECK (mid BETWEEN 0 AND 1),
	       treble       REAL NOT NULL CHECK (treble BETWEEN 0 AND 1),
	       overall      REAL NOT NULL CHECK (overall BETWEEN 0 AND 1),
	       red          INTEGER NOT NULL CHECK (red BETWEEN 0 AND 255),
	       green        INTEGER NOT NULL CHECK (green BETWEEN 0 AND 255),
	       blue         INTEGER NOT NULL CHECK (blue BETWEEN 0 AND 255),
	       method       TEXT NOT NULL
	   );
	   CREATE INDEX IF NOT EXISTS idx_snapshots_timestamp ON snapshots(timestamp);`,
	Tables: []string{"snapshots"},
}

const (
	insertSQL = `
    INSERT INTO snapshots (
        timestamp, mode, sensitivity,
        bass, mid, treble, overall,
        red, green, blue, method
    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	recentSQL = `
    SELECT timestamp, mode, sensitivity, bass, mid, treble, overall, red, green, blue, method
    FROM snapshots
    ORDER BY timestamp DESC, rowid DESC
    LIMIT ?`
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	cfg    Config

	mu      sync.Mutex
	buffer  []*Snapshot
	limit   int
	dropped int
	closed  bool

	// flushMu serializes writers of the database.
	flushMu sync.Mutex

	flushTicker   *time.Ticker
	flushChan     chan struct{}
	shutdownChan  chan struct{}
	flushDoneChan chan struct{}
}

func NewRepository(cfg Config, log logger.Logger) (Repository, error) {
	if cfg.DBPath == "" {
		return nil, errors.New().New(ErrInvalidDBPath)
	}

	db, err := storage.Open(cfg.DBPath, schema, log)
	if err != nil {
		return nil, err
	}

	cfg.BatchSize = max(cfg.BatchSize, 1)

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Int("batch_size", cfg.BatchSize).
		Dur("batch_timeout", cfg.BatchTimeout).
		Msg("History repository initialized")

	repo := &repository{
		db:            db,
		logger:        log,
		cfg:           cfg,
		buffer:        make([]*Snapshot, 0, cfg.BatchSize),
		limit:         cfg.BatchSize * maxPendingBatches,
		flushChan:     make(chan struct{}, 1),
		shutdownChan:  make(chan struct{}),
		flushDoneChan: make(chan struct{}),
	}

	if cfg.BatchTimeout > 0 {
		repo.flushTicker = time.NewTicker(cfg.BatchTimeout)
	}
	go repo.flusher()

	return repo, nil
}

// Record buffers snapshot. Full batches are written by the flusher goroutine,
// so Record never waits on the database.
func (r *repository) Record(snapshot *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.New().New(ErrClosed)
	}

	r.buffer = r.capped(append(r.buffer, snapshot))

	if len(r.buffer) >= r.cfg.BatchSize {
		select {
		case r.flushChan <- struct{}{}:
		default:
		}
	}

	return nil
}

// capped drops the oldest snapshots beyond the pending limit. r.mu must be
// held.
func (r *repository) capped(buf []*Snapshot) []*Snapshot {
	over := len(buf) - r.limit
	if over <= 0 {
		return buf
	}

	var event *logger.LogEvent
	if r.dropped == 0 {
		event = r.logger.Warn()
	} else {
		event = r.logger.Debug()
	}
	r.dropped += over
	event.
		Int("dropped", over).
		Int("dropped_total", r.dropped).
		Msg("History buffer full, dropping oldest snapshots")

	return append(buf[:0], buf[over:]...)
}

// Recent flushes pending snapshots and returns the newest limit rows, newest
// first.
func (r *repository) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	errFactory := errors.New()

	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return nil, errFactory.New(ErrClosed)
	}

	if err := r.flush(); err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx, recentSQL, limit)
	if err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var (
			s                Snapshot
			ts               int64
			red, green, blue int
		)
		if err := rows.Scan(&ts, &s.Mode, &s.Sensitivity,
			&s.Levels.Bass, &s.Levels.Mid, &s.Levels.Treble, &s.Levels.Overall,
			&red, &green, &blue, &s.Method); err != nil {
			return nil, errFactory.Wrap(ErrQueryFailed, err)
		}
		s.Timestamp = time.UnixMilli(ts)
		s.Color = led.Color{R: uint8(red), G: uint8(green), B: uint8(blue)}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errFactory.Wrap(ErrQueryFailed, err)
	}

	return out, nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	close(r.shutdownChan)
	if r.flushTicker != nil {
		r.flushTicker.Stop()
	}
	<-r.flushDoneChan

	if err := r.flush(); err != nil {
		r.logger.Warn().Err(err).Msg("Failed to flush history on close")
	}

	if err := storage.Close(r.db); err != nil {
		return err
	}

	r.logger.Info().Msg("History repository closed gracefully")

	return nil
}

func (r *repository) flusher() {
	defer close(r.flushDoneChan)

	var tick <-chan time.Time
	if r.flushTicker != nil {
		tick = r.flushTicker.C
	}

	for {
		select {
		case <-tick:
		case <-r.flushChan:
		case <-r.shutdownChan:
			return
		}
		r.flush()
	}
}

// flush writes the buffered snapshots in one transaction. When the database
// is busy the batch goes back to the front of the buffer; any other failure
// drops it.
func (r *repository) flush() error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	batch := r.buffer
	r.buffer = make([]*Snapshot, 0, r.cfg.BatchSize)
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	err := r.write(batch)
	if err == nil {
		r.logger.Debug().Int("records", len(batch)).Msg("Flushed history to database")
		return nil
	}

	if busy(err) {
		r.mu.Lock()
		r.buffer = r.capped(append(batch, r.buffer...))
		r.mu.Unlock()
	} else {
		r.logger.Error().Err(err).Int("dropped", len(batch)).Msg("Dropping history batch")
	}

	return errors.New().Wrap(ErrTransactionFailed, err)
}

func (r *repository) write(batch []*Snapshot) error {
	tx, err := r.db.Begin()
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to begin transaction")
		return err
	}

	stmt, err := tx.Prepare(insertSQL)
	if err != nil {
		r.logger.Error().Err(err).Msg("Failed to prepare statement")
		rollback(tx, r.logger)
		return err
	}
	defer stmt.Close()

	for _, s := range batch {
		if _, err := stmt.Exec(
			s.Timestamp.UnixMilli(),
			s.Mode,
			s.Sensitivity,
			s.Levels.Bass,
			s.Levels.Mid,
			s.Levels.Treble,
			s.Levels.Overall,
			int64(s.Color.R),
			int64(s.Color.G),
			int64(s.Color.B),
			s.Method,
		); err != nil {
			r.logger.Error().Err(err).Msg("Failed to execute insert")
			rollback(tx, r.logger)
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		r.logger.Error().Err(err).Msg("Failed to commit transaction")
		return err
	}

	return nil
}

func rollback(tx *sql.Tx, log logger.Logger) {
	if err := tx.Rollback(); err != nil {
		log.Error().Err(err).Msg("Failed to roll back transaction")
	}
}

// busy reports whether err means another connection holds the database.
func busy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
