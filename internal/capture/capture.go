package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/lightsync/internal/analysis"
	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/logger"
)

type State int

const (
	StateIdle State = iota
	StateRecording
)

func (s State) String() string {
	if s == StateRecording {
		return "recording"
	}
	return "idle"
}

type Config struct {
	SampleRate             int
	BufferMultiplier       int
	MinBufferFrames        int
	TickInterval           time.Duration
	MaxConsecutiveFailures int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:             44100,
		BufferMultiplier:       4,
		TickInterval:           16 * time.Millisecond,
		MaxConsecutiveFailures: 3,
	}
}

// Loop owns the input device and publishes one Levels value per tick to every
// subscriber.
type Loop struct {
	cfg    Config
	open   Opener
	logger logger.Logger

	mu       sync.Mutex
	state    State
	cancel   context.CancelFunc
	done     chan struct{}
	closeErr error

	subsMu sync.Mutex
	subs   map[*Subscription]struct{}

	failures chan error
}

func New(cfg Config, open Opener, log logger.Logger) *Loop {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.BufferMultiplier <= 0 {
		cfg.BufferMultiplier = def.BufferMultiplier
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = def.MaxConsecutiveFailures
	}
	if open == nil {
		open = OpenPortAudio
	}
	if log == nil {
		log = logger.Default()
	}

	return &Loop{
		cfg:      cfg,
		open:     open,
		logger:   log.With("capture"),
		subs:     make(map[*Subscription]struct{}),
		failures: make(chan error, 1),
	}
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Failures delivers the error that made the loop give up on the device.
func (l *Loop) Failures() <-chan error {
	return l.failures
}

// Start opens the device and begins the capture cycle. Starting a running loop
// is a no-op.
func (l *Loop) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == StateRecording {
		return nil
	}

	dev, err := l.open(l.cfg)
	if err != nil {
		if errors.HasCode(err, ErrDeviceUnavailable) {
			return err
		}
		return errors.New().Wrap(ErrDeviceUnavailable, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	l.state = StateRecording
	l.cancel = cancel
	l.done = done
	l.closeErr = nil

	go l.run(runCtx, cancel, dev, done)

	l.logger.Info().
		Int("sample_rate", l.cfg.SampleRate).
		Dur("tick", l.cfg.TickInterval).
		Msg("Audio capture started")

	return nil
}

// Stop cancels the cycle and returns once no further Levels can be published
// and the device has been released. Stopping an idle loop is a no-op.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.state != StateRecording || l.cancel == nil {
		l.mu.Unlock()
		return nil
	}
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()
	<-done

	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.closeErr
	l.closeErr = nil

	return err
}

func (l *Loop) run(ctx context.Context, cancel context.CancelFunc, dev Device, done chan struct{}) {
	defer close(done)
	defer l.release(dev, done)
	defer cancel()

	ticker := time.NewTicker(l.cfg.TickInterval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		err := l.tick(ctx, dev)
		if err == nil {
			failures = 0
			continue
		}
		if ctx.Err() != nil {
			return
		}

		failures++
		l.logger.Warn().
			Err(err).
			Int("consecutive", failures).
			Msg("Audio capture iteration failed")

		if failures >= l.cfg.MaxConsecutiveFailures {
			escalated := errors.New().Wrap(ErrDeviceUnavailable, err).
				WithMessage(fmt.Sprintf("%d consecutive capture failures", failures))
			l.logger.ErrorWithCode(escalated).Msg("Stopping audio capture")

			select {
			case l.failures <- escalated:
			default:
			}
			return
		}
	}
}

// release closes the device and moves the loop back to idle, unless a newer
// run has already taken over.
func (l *Loop) release(dev Device, done chan struct{}) {
	err := dev.Close()
	if err != nil {
		l.logger.Warn().Err(err).Msg("Failed to close audio device")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.done != done {
		return
	}
	l.state = StateIdle
	l.cancel = nil
	l.closeErr = err

	l.logger.Info().Msg("Audio capture stopped")
}

func (l *Loop) tick(ctx context.Context, dev Device) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithMessage(ErrTickPanic, fmt.Sprintf("%v", r))
		}
	}()

	pcm, err := dev.Read()
	if err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	levels := analysis.Analyze(analysis.Normalize(pcm), l.cfg.SampleRate)
	l.publish(levels)

	return nil
}

func (l *Loop) publish(levels analysis.Levels) {
	l.subsMu.Lock()
	defer l.subsMu.Unlock()

	for sub := range l.subs {
		sub.offer(levels)
	}
}

// Subscribe registers a new latest-value slot.
func (l *Loop) Subscribe() *Subscription {
	sub := &Subscription{
		loop:   l,
		notify: make(chan struct{}, 1),
	}

	l.subsMu.Lock()
	l.subs[sub] = struct{}{}
	l.subsMu.Unlock()

	return sub
}

func (l *Loop) unsubscribe(sub *Subscription) {
	l.subsMu.Lock()
	delete(l.subs, sub)
	l.subsMu.Unlock()
}

// Subscription holds at most one pending Levels value. A new value replaces an
// unread one.
type Subscription struct {
	loop   *Loop
	notify chan struct{}

	mu      sync.Mutex
	latest  analysis.Levels
	pending bool
	dropped uint64
}

// Ready is signalled when a value is waiting.
func (s *Subscription) Ready() <-chan struct{} {
	return s.notify
}

// Take returns the pending value and clears the slot.
func (s *Subscription) Take() (analysis.Levels, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.pending {
		return analysis.Levels{}, false
	}
	s.pending = false
	return s.latest, true
}

// Dropped counts values overwritten before they were taken.
func (s *Subscription) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Subscription) Close() {
	s.loop.unsubscribe(s)
}

func (s *Subscription) offer(levels analysis.Levels) {
	s.mu.Lock()
	if s.pending {
		s.dropped++
	}
	s.latest = levels
	s.pending = true
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
}
