package reactive

import (
	"context"
	"sync"
	"time"

	"codeberg.org/mutker/lightsync/internal/analysis"
	"codeberg.org/mutker/lightsync/internal/capture"
	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/history"
	"codeberg.org/mutker/lightsync/internal/led"
	"codeberg.org/mutker/lightsync/internal/logger"
	"codeberg.org/mutker/lightsync/internal/visual"
)

// Actuator is the part of led.Driver the controller drives.
type Actuator interface {
	SetColor(ctx context.Context, c led.Color) error
	SetBrightness(ctx context.Context, b led.Brightness) error
	SetPattern(ctx context.Context, p led.Pattern) error
	TurnOff(ctx context.Context) error
	State() led.State
	Cleanup(ctx context.Context) error
	Release(ctx context.Context) error
}

// Source produces audio levels.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	Subscribe() *capture.Subscription
	Failures() <-chan error
}

type Config struct {
	Mode        visual.Mode
	Sensitivity float64
	// MinInterval drops frames that arrive sooner than this after the last
	// actuated one. Zero disables the limit.
	MinInterval time.Duration
}

type Option func(*Controller)

func WithHistory(rec history.Recorder) Option {
	return func(c *Controller) { c.history = rec }
}

func WithLogger(log logger.Logger) Option {
	return func(c *Controller) { c.logger = log }
}

func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

type session struct {
	cancel context.CancelFunc
	done   chan struct{}
	sub    *capture.Subscription
}

func (s *session) running() bool {
	select {
	case <-s.done:
		return false
	default:
		return true
	}
}

// Controller moves the light between reactive mode and manual requests.
// Reactive mode maps every published Levels value to exactly one SetColor,
// issued from a single consumer goroutine.
type Controller struct {
	actuator Actuator
	source   Source
	history  history.Recorder
	logger   logger.Logger
	now      func() time.Time

	minInterval time.Duration

	paramsMu    sync.RWMutex
	mode        visual.Mode
	sensitivity float64

	mu       sync.Mutex
	reactive *session
	effect   *session
	shutdown bool

	errMu sync.RWMutex
	err   error
}

func New(actuator Actuator, source Source, cfg Config, opts ...Option) *Controller {
	c := &Controller{
		actuator:    actuator,
		source:      source,
		history:     history.Noop(),
		logger:      logger.Default(),
		now:         time.Now,
		minInterval: cfg.MinInterval,
		mode:        cfg.Mode,
		sensitivity: visual.ClampSensitivity(cfg.Sensitivity),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("reactive")

	return c
}

func (c *Controller) Mode() visual.Mode {
	c.paramsMu.RLock()
	defer c.paramsMu.RUnlock()
	return c.mode
}

func (c *Controller) Sensitivity() float64 {
	c.paramsMu.RLock()
	defer c.paramsMu.RUnlock()
	return c.sensitivity
}

// SetMode takes effect on the next frame.
func (c *Controller) SetMode(mode visual.Mode) {
	c.paramsMu.Lock()
	c.mode = mode
	c.paramsMu.Unlock()

	c.logger.Info().Str("mode", mode.String()).Msg("Visualization mode changed")
}

// SetSensitivity clamps s to [visual.MinSensitivity, visual.MaxSensitivity].
func (c *Controller) SetSensitivity(s float64) {
	c.paramsMu.Lock()
	c.sensitivity = visual.ClampSensitivity(s)
	c.paramsMu.Unlock()
}

func (c *Controller) params() (visual.Mode, float64) {
	c.paramsMu.RLock()
	defer c.paramsMu.RUnlock()
	return c.mode, c.sensitivity
}

// Err returns the error that ended reactive mode, if any.
func (c *Controller) Err() error {
	c.errMu.RLock()
	defer c.errMu.RUnlock()
	return c.err
}

func (c *Controller) setErr(err error) {
	c.errMu.Lock()
	c.err = err
	c.errMu.Unlock()
}

// IsReactive reports whether the consumer is running.
func (c *Controller) IsReactive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reactive != nil && c.reactive.running()
}

// StartReactiveMode starts capture if needed and begins actuating frames. A
// running effect is cancelled first. Calling it while reactive mode is already
// running only updates mode and sensitivity.
func (c *Controller) StartReactiveMode(ctx context.Context, mode visual.Mode, sensitivity float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return errors.New().New(ErrShutdown)
	}

	c.stopEffectLocked()

	c.paramsMu.Lock()
	c.mode = mode
	c.sensitivity = visual.ClampSensitivity(sensitivity)
	c.paramsMu.Unlock()

	if c.reactive != nil {
		if c.reactive.running() {
			return nil
		}
		c.reactive.sub.Close()
		c.reactive = nil
	}

	drain(c.source.Failures())

	if err := c.source.Start(ctx); err != nil {
		c.setErr(err)
		return err
	}
	c.setErr(nil)

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{
		cancel: cancel,
		done:   make(chan struct{}),
		sub:    c.source.Subscribe(),
	}
	c.reactive = s

	go c.consume(runCtx, s)

	c.logger.Info().
		Str("mode", mode.String()).
		Float64("sensitivity", c.Sensitivity()).
		Msg("Reactive mode started")

	return nil
}

// StopReactiveMode stops consuming frames, stops capture and turns the light
// off.
func (c *Controller) StopReactiveMode(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stopReactiveLocked(ctx, true)
}

func (c *Controller) stopReactiveLocked(ctx context.Context, turnOff bool) error {
	s := c.reactive
	if s == nil {
		return nil
	}
	c.reactive = nil

	s.cancel()
	<-s.done
	s.sub.Close()

	var errs []error
	if err := c.source.Stop(); err != nil {
		errs = append(errs, err)
	}
	if turnOff {
		if err := c.actuator.TurnOff(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.logger.Info().Msg("Reactive mode stopped")

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (c *Controller) stopEffectLocked() {
	s := c.effect
	if s == nil {
		return
	}
	c.effect = nil

	s.cancel()
	<-s.done
}

func (c *Controller) consume(ctx context.Context, s *session) {
	defer close(s.done)

	failures := c.source.Failures()
	var last time.Time

	for {
		select {
		case <-ctx.Done():
			return

		case err := <-failures:
			c.setErr(err)
			c.logger.Error().Err(err).Msg("Audio capture failed, leaving reactive mode")
			s.sub.Close()
			if err := c.actuator.TurnOff(ctx); err != nil {
				c.logger.Debug().Err(err).Msg("Failed to turn light off")
			}
			return

		case <-s.sub.Ready():
			levels, ok := s.sub.Take()
			if !ok {
				continue
			}

			now := c.now()
			if c.minInterval > 0 && !last.IsZero() && now.Sub(last) < c.minInterval {
				continue
			}
			if c.render(ctx, levels, now) {
				last = now
			}
		}
	}
}

// render maps one frame and actuates it. It reports whether the color was
// applied.
func (c *Controller) render(ctx context.Context, levels analysis.Levels, now time.Time) bool {
	mode, sensitivity := c.params()
	color := visual.Map(levels, mode, sensitivity, now)

	if err := c.actuator.SetColor(ctx, color); err != nil {
		if ctx.Err() == nil {
			c.logger.Debug().Err(err).Str("color", color.Hex()).Msg("Failed to apply reactive color")
		}
		return false
	}

	snapshot := &history.Snapshot{
		Timestamp:   now,
		Mode:        mode.String(),
		Sensitivity: sensitivity,
		Levels: history.LevelValues{
			Bass:    levels.Bass,
			Mid:     levels.Mid,
			Treble:  levels.Treble,
			Overall: levels.Overall,
		},
		Color:  color,
		Method: c.actuator.State().LastMethod.String(),
	}
	if err := c.history.Record(ctx, snapshot); err != nil {
		c.logger.Debug().Err(err).Msg("Failed to record history")
	}

	return true
}

// SetStaticColor leaves reactive mode, cancels any effect and applies color.
func (c *Controller) SetStaticColor(ctx context.Context, color led.Color) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.manualLocked(ctx); err != nil {
		return err
	}
	return c.actuator.SetColor(ctx, color)
}

// RunEffect leaves reactive mode and runs pattern until it completes, ctx is
// done or another request supersedes it.
func (c *Controller) RunEffect(ctx context.Context, pattern led.Pattern) error {
	c.mu.Lock()
	if err := c.manualLocked(ctx); err != nil {
		c.mu.Unlock()
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel, done: make(chan struct{})}
	c.effect = s
	c.mu.Unlock()

	c.logger.Info().Str("pattern", pattern.Kind.String()).Msg("Running effect")

	err := c.actuator.SetPattern(runCtx, pattern)
	close(s.done)

	c.mu.Lock()
	if c.effect == s {
		c.effect = nil
	}
	c.mu.Unlock()
	cancel()

	if err != nil && runCtx.Err() != nil && ctx.Err() == nil {
		return errors.New().Wrap(ErrEffectCancelled, err)
	}
	return err
}

func (c *Controller) manualLocked(ctx context.Context) error {
	if c.shutdown {
		return errors.New().New(ErrShutdown)
	}

	c.stopEffectLocked()
	if err := c.stopReactiveLocked(ctx, false); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to stop reactive mode cleanly")
	}
	return nil
}

// SetBrightness applies b without leaving reactive mode.
func (c *Controller) SetBrightness(ctx context.Context, b led.Brightness) error {
	return c.actuator.SetBrightness(ctx, b)
}

// TurnOff leaves reactive mode, cancels any effect and turns the light off.
func (c *Controller) TurnOff(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.manualLocked(ctx); err != nil {
		return err
	}
	return c.actuator.TurnOff(ctx)
}

// Shutdown stops everything and always runs the actuator cleanup. The
// controller rejects further requests afterwards.
func (c *Controller) Shutdown(ctx context.Context) error {
	return c.close(ctx, c.actuator.Cleanup)
}

func (c *Controller) close(ctx context.Context, finish func(context.Context) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil
	}
	c.shutdown = true

	var errs []error

	c.stopEffectLocked()
	if err := c.stopReactiveLocked(ctx, false); err != nil {
		errs = append(errs, err)
	}
	if err := c.history.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := finish(ctx); err != nil {
		errs = append(errs, err)
	}

	c.logger.Info().Msg("Controller shut down")

	if len(errs) > 0 {
		return errors.New().Wrap(errors.ErrShutdownFailed, errors.Join(errs...))
	}
	return nil
}

// Release is Shutdown without turning the light off.
func (c *Controller) Release(ctx context.Context) error {
	return c.close(ctx, c.actuator.Release)
}

func drain(ch <-chan error) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}
