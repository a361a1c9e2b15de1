package led

import (
	"context"
	"sync"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/logger"
)

// executor runs submitted jobs one at a time on a single worker. The queue is
// bounded; a full queue rejects instead of blocking the caller.
type executor struct {
	jobs    chan func(context.Context)
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.RWMutex
	stopped bool
	logger  logger.Logger
}

func newExecutor(queue int, log logger.Logger) *executor {
	if queue < 1 {
		queue = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &executor{
		jobs:   make(chan func(context.Context), queue),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		logger: log,
	}
	go e.run()

	return e
}

func (e *executor) run() {
	defer close(e.done)

	for job := range e.jobs {
		if e.ctx.Err() != nil {
			continue
		}
		e.safely(job)
	}
}

func (e *executor) safely(job func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error().Interface("panic", r).Msg("Recovered panic in actuator job")
		}
	}()
	job(e.ctx)
}

func (e *executor) submit(job func(context.Context)) error {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.stopped {
		return errors.New().New(ErrExecutorStopped)
	}

	select {
	case e.jobs <- job:
		return nil
	default:
		return errors.New().New(ErrExecutorBusy)
	}
}

// stop rejects new jobs, lets queued jobs finish until ctx is done, and then
// cancels whatever is still pending.
func (e *executor) stop(ctx context.Context) {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		<-e.done
		return
	}
	e.stopped = true
	close(e.jobs)
	e.mu.Unlock()

	select {
	case <-e.done:
	case <-ctx.Done():
		e.cancel()
		<-e.done
	}
	e.cancel()
}
