package led

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/logger"
	"codeberg.org/mutker/lightsync/internal/settings"
	"codeberg.org/mutker/lightsync/internal/shell"
)

const (
	defaultCommandTimeout  = 2 * time.Second
	defaultRainbowDuration = 5 * time.Second
	defaultRainbowColors   = 7
	defaultExecutorQueue   = 8

	settingsWriteTimeout = 500 * time.Millisecond
)

// Config configures the actuator driver.
type Config struct {
	TierOrder       []Method
	NativeDevice    string
	SysfsRoot       string
	LEDClassRoot    string
	ProbeRoots      []string
	DebugEnablePath string
	CommandTimeout  time.Duration
	PropertyCommand string
	TopicPrefix     string
	RainbowDuration time.Duration
	RainbowColors   int
	ExecutorQueue   int
}

func DefaultConfig() Config {
	return Config{
		TierOrder:       DefaultTierOrder,
		LEDClassRoot:    "/sys/class/leds",
		DebugEnablePath: "/sys/kernel/debug/led/enable",
		CommandTimeout:  defaultCommandTimeout,
		TopicPrefix:     "lights",
		RainbowDuration: defaultRainbowDuration,
		RainbowColors:   defaultRainbowColors,
		ExecutorQueue:   defaultExecutorQueue,
	}
}

// Option customizes how the driver reaches its collaborators.
type Option func(*Driver)

func WithLogger(log logger.Logger) Option {
	return func(d *Driver) { d.logger = log }
}

func WithRunner(r shell.Runner) Option {
	return func(d *Driver) { d.runner = r }
}

// WithNativeOpener replaces how the vendor control node is bound.
func WithNativeOpener(open func(path string) (NativeAPI, error)) Option {
	return func(d *Driver) { d.openNative = open }
}

// WithBroadcastDialer enables the broadcast tier.
func WithBroadcastDialer(dial func(ctx context.Context) (Broadcaster, error)) Option {
	return func(d *Driver) { d.dialBroadcast = dial }
}

// WithSettingsOpener replaces how the configuration store is opened. When the
// opener fails the driver falls back to an in-memory store.
func WithSettingsOpener(open func() (settings.Store, error)) Option {
	return func(d *Driver) { d.openSettings = open }
}

// Driver commits commands to the light through an ordered list of methods,
// falling through to the next one whenever an attempt fails.
type Driver struct {
	cfg   Config
	order []Method

	logger        logger.Logger
	runner        shell.Runner
	openNative    func(path string) (NativeAPI, error)
	dialBroadcast func(ctx context.Context) (Broadcaster, error)
	openSettings  func() (settings.Store, error)

	// mu serializes whole tier sequences.
	mu          sync.Mutex
	native      NativeAPI
	broadcaster Broadcaster
	sysfs       sysfsNode
	channels    ledChannels
	store       settings.Store
	caps        Capabilities

	// nativeBusy is set while a native call is in flight, including one
	// abandoned after a timeout.
	nativeBusy atomic.Bool

	stateMu sync.RWMutex
	state   State

	exec *executor
}

func New(cfg Config, opts ...Option) *Driver {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}
	if cfg.RainbowDuration <= 0 {
		cfg.RainbowDuration = defaultRainbowDuration
	}
	if cfg.RainbowColors < 1 {
		cfg.RainbowColors = defaultRainbowColors
	}
	if len(cfg.TierOrder) == 0 {
		cfg.TierOrder = DefaultTierOrder
	}

	d := &Driver{
		cfg:        cfg,
		order:      NormalizeOrder(cfg.TierOrder),
		logger:     logger.Default(),
		openNative: OpenNativeNode,
		state:      State{Tier: TierNotProbed},
	}
	for _, opt := range opts {
		opt(d)
	}

	d.exec = newExecutor(cfg.ExecutorQueue, d.logger)

	return d
}

// Initialize probes the machine once and binds every available method. It
// never fails: at worst the driver ends up settings-only.
func (d *Driver) Initialize(ctx context.Context) State {
	d.mu.Lock()
	defer d.mu.Unlock()

	if cur := d.State(); cur.Tier != TierNotProbed {
		return cur
	}

	if slices.Contains(d.order, MethodNative) && d.cfg.NativeDevice != "" && d.openNative != nil {
		api, err := d.openNative(d.cfg.NativeDevice)
		if err != nil {
			d.logger.Info().Err(err).Str("device", d.cfg.NativeDevice).Msg("Native LED API not available")
		} else {
			d.native = api
			d.logger.Info().Str("device", d.cfg.NativeDevice).Msg("Native LED API bound")
		}
	}

	if slices.Contains(d.order, MethodBroadcast) && d.dialBroadcast != nil {
		b, err := d.dialBroadcast(ctx)
		if err != nil {
			d.logger.Info().Err(err).Msg("Hardware service broadcast not available")
		} else {
			d.broadcaster = b
		}
	}

	d.caps = probe(ctx, d.cfg, d.runner, d.logger)
	if slices.Contains(d.order, MethodSysfs) {
		d.sysfs = sysfsNode{root: d.cfg.SysfsRoot}
	}
	if slices.Contains(d.order, MethodChannels) {
		d.channels = ledChannels{
			classRoot: d.cfg.LEDClassRoot,
			names:     d.caps.Channels,
			runner:    d.runner,
			property:  d.cfg.PropertyCommand,
		}
	}

	d.store = d.openStore()

	tier := TierSettingsOnly
	switch {
	case d.native != nil:
		tier = TierNativeAPI
	case d.broadcaster != nil:
		tier = TierBroadcastOnly
	case d.sysfsUsable() || d.channels.available():
		tier = TierSysfsOnly
	}

	d.stateMu.Lock()
	d.state = State{Tier: tier, Interfaces: d.caps.Interfaces}
	d.stateMu.Unlock()

	d.logger.Info().
		Str("tier", tier.String()).
		Int("interfaces", len(d.caps.Interfaces)).
		Strs("order", methodNames(d.order)).
		Msg("LED driver initialized")

	return d.State()
}

func (d *Driver) openStore() settings.Store {
	if d.openSettings == nil {
		return settings.NewMemory()
	}

	store, err := d.openSettings()
	if err != nil {
		d.logger.Warn().Err(err).Msg("Settings store unavailable, keeping settings in memory")
		return settings.NewMemory()
	}
	return store
}

func (d *Driver) sysfsUsable() bool {
	return d.caps.Sysfs && d.sysfs.root != ""
}

// State returns a snapshot of the driver state.
func (d *Driver) State() State {
	d.stateMu.RLock()
	defer d.stateMu.RUnlock()

	s := d.state
	s.Interfaces = slices.Clone(d.state.Interfaces)
	return s
}

// IsReady reports whether Initialize has completed and Cleanup has not run.
func (d *Driver) IsReady() bool {
	return d.State().Ready()
}

// Capabilities returns what the probe found.
func (d *Driver) Capabilities() Capabilities {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.caps
}

func (d *Driver) SetColor(ctx context.Context, c Color) error {
	return d.commit(ctx, SetColorCommand(c))
}

// SetBrightness sets the brightness percentage; values are clamped to [0, 100].
func (d *Driver) SetBrightness(ctx context.Context, b Brightness) error {
	return d.commit(ctx, SetBrightnessCommand(b.Clamp()))
}

// SetPattern starts a pattern. The rainbow sweep is run in software and
// blocks until it completes or ctx is done.
func (d *Driver) SetPattern(ctx context.Context, p Pattern) error {
	if p.Kind == PatternRainbowSweep {
		return d.RainbowSweep(ctx, d.cfg.RainbowDuration, d.cfg.RainbowColors)
	}
	return d.commit(ctx, SetPatternCommand(p))
}

func (d *Driver) TurnOff(ctx context.Context) error {
	return d.SetColor(ctx, Black)
}

// Execute dispatches cmd to the matching operation.
func (d *Driver) Execute(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandSetColor:
		return d.SetColor(ctx, cmd.Color)
	case CommandSetBrightness:
		return d.SetBrightness(ctx, cmd.Brightness)
	case CommandSetPattern:
		return d.SetPattern(ctx, cmd.Pattern)
	case CommandOff:
		return d.TurnOff(ctx)
	default:
		return errors.New().WithData(ErrUnsupported, cmd.Kind.String())
	}
}

// Submit queues cmd on the driver's worker and returns immediately. It fails
// with ErrExecutorBusy when the queue is full.
func (d *Driver) Submit(cmd Command) error {
	return d.exec.submit(func(ctx context.Context) {
		if err := d.Execute(ctx, cmd); err != nil {
			d.logger.Warn().Err(err).Str("command", cmd.Kind.String()).Msg("Queued LED command failed")
		}
	})
}

// RainbowSweep steps through n evenly spaced hues over duration.
func (d *Driver) RainbowSweep(ctx context.Context, duration time.Duration, n int) error {
	if !d.IsReady() {
		return d.notReady()
	}

	colors := RainbowColors(n)
	if len(colors) == 0 {
		return errors.New().WithData(errors.ErrInvalidArgument, n)
	}

	err := sweep(ctx, colors, duration/time.Duration(len(colors)), d.SetColor)
	if err == nil {
		d.logger.Debug().Int("colors", n).Dur("duration", duration).Msg("Rainbow sweep completed")
	}
	return err
}

// TestLED switches the vendor node into its self test mode.
func (d *Driver) TestLED(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.sysfsUsable() {
		return errors.New().WithData(ErrUnsupported, "led_test")
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.CommandTimeout)
	defer cancel()

	if err := d.sysfs.testMode(ctx); err != nil {
		return errors.New().Wrap(ErrTierAttemptFailed, err)
	}
	d.logger.Info().Msg("LED test mode enabled")
	return nil
}

func (d *Driver) notReady() error {
	if d.State().Tier == TierUnusable {
		return errors.New().WithData(ErrAllTiersExhausted, "driver cleaned up")
	}
	return errors.New().WithData(ErrAllTiersExhausted, "driver not initialized")
}

// commit runs the tier sequence for cmd under the driver lock.
func (d *Driver) commit(ctx context.Context, cmd Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.IsReady() {
		return d.notReady()
	}

	for _, m := range d.order {
		if !d.usable(m, cmd) {
			continue
		}

		if err := d.attempt(ctx, m, cmd); err != nil {
			d.logger.Debug().
				Str("error_code", string(ErrTierAttemptFailed)).
				Str("method", m.String()).
				Str("command", cmd.Kind.String()).
				Err(err).
				Msg("Actuation attempt failed")
			continue
		}

		d.stateMu.Lock()
		d.state.LastMethod = m
		d.stateMu.Unlock()

		return nil
	}

	return errors.New().WithData(ErrAllTiersExhausted, cmd.Kind.String())
}

// usable reports whether method m is bound and has an encoding for cmd.
func (d *Driver) usable(m Method, cmd Command) bool {
	switch m {
	case MethodNative:
		return d.native != nil && !d.nativeBusy.Load()
	case MethodBroadcast:
		if d.broadcaster == nil {
			return false
		}
		switch cmd.Kind {
		case CommandSetColor:
			return true
		case CommandSetPattern:
			return patternMessages(cmd.Pattern) != nil
		default:
			return false
		}
	case MethodSysfs:
		if !d.sysfsUsable() {
			return false
		}
		if cmd.Kind == CommandSetPattern {
			switch cmd.Pattern.Kind {
			case PatternBreathing, PatternDance, PatternStrobe:
				return true
			default:
				return false
			}
		}
		return true
	case MethodChannels:
		switch cmd.Kind {
		case CommandSetColor:
			return d.channels.available()
		case CommandSetBrightness:
			return len(d.channels.names) > 0
		default:
			return false
		}
	case MethodSettings:
		return d.store != nil
	default:
		return false
	}
}

// attempt runs one method in isolation. Panics are turned into errors.
func (d *Driver) attempt(ctx context.Context, m Method, cmd Command) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrTierAttemptFailed, fmt.Sprintf("panic: %v", r))
		}
	}()

	if m == MethodSettings {
		return d.attemptSettings(ctx, cmd)
	}

	ctx, cancel := context.WithTimeout(ctx, d.cfg.CommandTimeout)
	defer cancel()

	switch m {
	case MethodNative:
		return d.attemptNative(ctx, cmd)
	case MethodBroadcast:
		return d.attemptBroadcast(ctx, cmd)
	case MethodSysfs:
		return d.attemptSysfs(ctx, cmd)
	case MethodChannels:
		return d.attemptChannels(ctx, cmd)
	default:
		return errors.New().WithData(ErrUnsupported, m.String())
	}
}

// attemptNative runs the vendor call in its own goroutine so a hung node
// costs at most the command timeout. While the call is outstanding the native
// method is skipped.
func (d *Driver) attemptNative(ctx context.Context, cmd Command) error {
	native := d.native

	var call func() error
	switch cmd.Kind {
	case CommandSetColor:
		call = func() error { return native.SetColor(cmd.Color.ARGB()) }
	case CommandSetBrightness:
		call = func() error { return native.SetBrightness(int(cmd.Brightness)) }
	case CommandSetPattern:
		call = func() error { return native.SetPattern(cmd.Pattern.Kind.Code()) }
	default:
		return errors.New().WithData(ErrUnsupported, cmd.Kind.String())
	}

	d.nativeBusy.Store(true)
	done := make(chan error, 1)
	go func() {
		err := callNative(call)
		d.nativeBusy.Store(false)
		done <- err
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		d.logger.Warn().
			Str("command", cmd.Kind.String()).
			Dur("timeout", d.cfg.CommandTimeout).
			Msg("Native call timed out")
		return errors.New().Wrap(ErrWriteTimeout, ctx.Err())
	}
}

func callNative(call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New().WithData(ErrTierAttemptFailed, fmt.Sprintf("panic: %v", r))
		}
	}()
	return call()
}

func (d *Driver) attemptBroadcast(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandSetColor:
		return publishFirst(ctx, d.broadcaster, d.cfg.TopicPrefix, colorMessages(cmd.Color), d.logger)
	case CommandSetPattern:
		return publishFirst(ctx, d.broadcaster, d.cfg.TopicPrefix, patternMessages(cmd.Pattern), d.logger)
	default:
		return errors.New().WithData(ErrUnsupported, cmd.Kind.String())
	}
}

func (d *Driver) attemptSysfs(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandSetColor:
		return d.sysfs.setColor(ctx, cmd.Color)
	case CommandSetBrightness:
		return d.sysfs.setBrightness(ctx, cmd.Brightness)
	case CommandSetPattern:
		return d.sysfs.setPattern(ctx, cmd.Pattern)
	default:
		return errors.New().WithData(ErrUnsupported, cmd.Kind.String())
	}
}

func (d *Driver) attemptChannels(ctx context.Context, cmd Command) error {
	switch cmd.Kind {
	case CommandSetColor:
		return d.channels.setColor(ctx, cmd.Color)
	case CommandSetBrightness:
		return d.channels.setBrightness(ctx, cmd.Brightness)
	default:
		return errors.New().WithData(ErrUnsupported, cmd.Kind.String())
	}
}

// attemptSettings is the last method and does not fail for a supported
// command: when the store rejects a write the driver switches to an in-memory
// store for the rest of its life.
func (d *Driver) attemptSettings(ctx context.Context, cmd Command) error {
	var (
		key   string
		value int
	)
	switch cmd.Kind {
	case CommandSetColor:
		key, value = settings.KeyColor, int(cmd.Color.ARGB())
	case CommandSetBrightness:
		key, value = settings.KeyBrightness, int(cmd.Brightness)
	case CommandSetPattern:
		key, value = settings.KeyPattern, cmd.Pattern.Kind.Code()
	default:
		return errors.New().WithData(ErrUnsupported, cmd.Kind.String())
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), settingsWriteTimeout)
	defer cancel()

	err := d.store.PutInt(ctx, key, value)
	if err == nil {
		return nil
	}

	d.logger.Warn().
		Err(err).
		Str("key", key).
		Msg("Settings store write failed, keeping settings in memory")

	if cerr := d.store.Close(); cerr != nil {
		d.logger.Debug().Err(cerr).Msg("Failed to close settings store")
	}
	d.store = settings.NewMemory()

	return d.store.PutInt(ctx, key, value)
}

// StatusReport describes the driver for humans.
func (d *Driver) StatusReport() string {
	st := d.State()

	d.mu.Lock()
	caps := d.caps
	nativeBound := d.native != nil
	broadcastBound := d.broadcaster != nil
	sysfsBound := d.sysfsUsable()
	channels := d.channels
	d.mu.Unlock()

	var b strings.Builder
	fmt.Fprintf(&b, "State: %s\n", readiness(st))
	fmt.Fprintf(&b, "Tier: %s\n", st.Tier)
	fmt.Fprintf(&b, "Native API: %s\n", availability(nativeBound))
	fmt.Fprintf(&b, "Broadcast: %s\n", availability(broadcastBound))
	fmt.Fprintf(&b, "Sysfs node: %s\n", availability(sysfsBound))
	fmt.Fprintf(&b, "LED channels: %s\n", availability(channels.available()))
	fmt.Fprintf(&b, "Last method: %s\n", st.LastMethod)

	keys := make([]string, 0, len(caps.HardwareInfo))
	for k := range caps.HardwareInfo {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "Hardware %s: %s\n", k, caps.HardwareInfo[k])
	}

	fmt.Fprintf(&b, "LED interfaces: %d found", len(st.Interfaces))
	for _, iface := range st.Interfaces {
		fmt.Fprintf(&b, "\n- %s", iface)
	}

	return b.String()
}

func readiness(s State) string {
	switch s.Tier {
	case TierNotProbed:
		return "not initialized"
	case TierUnusable:
		return "shut down"
	default:
		return "initialized"
	}
}

func availability(ok bool) string {
	if ok {
		return "available"
	}
	return "unavailable"
}

func methodNames(ms []Method) []string {
	out := make([]string, len(ms))
	for i, m := range ms {
		out[i] = m.String()
	}
	return out
}

// Cleanup drains queued commands, turns the light off and releases every
// bound method. The driver is unusable afterwards.
func (d *Driver) Cleanup(ctx context.Context) error {
	d.exec.stop(ctx)

	var errs []error
	if d.IsReady() {
		if err := d.TurnOff(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return d.release(errs)
}

// Release drains queued commands and releases every bound method, leaving the
// light as it is. The driver is unusable afterwards.
func (d *Driver) Release(ctx context.Context) error {
	d.exec.stop(ctx)
	return d.release(nil)
}

func (d *Driver) release(errs []error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stateMu.Lock()
	d.state.Tier = TierUnusable
	d.stateMu.Unlock()

	if d.native != nil {
		if err := closeWithin(d.native.Close, d.cfg.CommandTimeout); err != nil {
			errs = append(errs, err)
		}
		d.native = nil
	}
	if d.broadcaster != nil {
		if err := d.broadcaster.Close(); err != nil {
			errs = append(errs, err)
		}
		d.broadcaster = nil
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			errs = append(errs, err)
		}
		d.store = nil
	}

	d.logger.Info().Msg("LED driver released")

	if len(errs) > 0 {
		return errors.New().Wrap(errors.ErrShutdownFailed, errors.Join(errs...))
	}
	return nil
}

// closeWithin runs closeFn but gives up after timeout. A vendor node with a
// hung write may not close until the write returns.
func closeWithin(closeFn func() error, timeout time.Duration) error {
	done := make(chan error, 1)
	go func() { done <- closeFn() }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return errors.New().WithData(ErrWriteTimeout, "close native node")
	}
}
