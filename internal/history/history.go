package history

import (
	"context"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/logger"
)

type service struct {
	repo Repository
	cfg  Config
}

type noopRecorder struct{}

// NewService returns a SQLite backed recorder, or a no-op one when history is
// disabled.
func NewService(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}

	if !cfg.Enabled {
		log.Debug().Msg("History disabled, using no-op recorder")
		return Noop(), nil
	}

	repo, err := NewRepository(cfg, log)
	if err != nil {
		log.Debug().Err(err).Msg("Failed to create history repository")
		return nil, err
	}

	log.Debug().
		Str("db_path", cfg.DBPath).
		Msg("History service initialized successfully")

	return &service{repo: repo, cfg: cfg}, nil
}

func Noop() Recorder {
	return &noopRecorder{}
}

func (s *service) Record(ctx context.Context, snapshot *Snapshot) error {
	errFactory := errors.New()

	if snapshot == nil {
		return errFactory.New(ErrInvalidSnapshot)
	}

	select {
	case <-ctx.Done():
		return errFactory.Wrap(ErrOperationTimeout, ctx.Err())
	default:
		if err := s.repo.Record(snapshot); err != nil {
			return errFactory.Wrap(ErrRecordFailed, err)
		}
	}

	return nil
}

func (s *service) Recent(ctx context.Context, limit int) ([]Snapshot, error) {
	return s.repo.Recent(ctx, limit)
}

func (s *service) Close() error {
	if err := s.repo.Close(); err != nil {
		return errors.New().Wrap(ErrServiceShutdown, err)
	}
	return nil
}

func (*noopRecorder) Record(context.Context, *Snapshot) error { return nil }

func (*noopRecorder) Recent(context.Context, int) ([]Snapshot, error) { return nil, nil }

func (*noopRecorder) Close() error { return nil }
