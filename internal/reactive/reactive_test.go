package reactive_test

import (
	"context"
	stderrors "errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"codeberg.org/mutker/lightsync/internal/analysis"
	"codeberg.org/mutker/lightsync/internal/capture"
	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/history"
	"codeberg.org/mutker/lightsync/internal/led"
	"codeberg.org/mutker/lightsync/internal/logger"
	"codeberg.org/mutker/lightsync/internal/reactive"
	"codeberg.org/mutker/lightsync/internal/visual"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var block = func() []int16 {
	out := make([]int16, 1024)
	for i := range out {
		out[i] = int16(0.4 * 32767 * math.Sin(2*math.Pi*440*float64(i)/44100))
	}
	return out
}()

type fakeDevice struct {
	fail bool
}

func (d *fakeDevice) Read() ([]int16, error) {
	if d.fail {
		return nil, stderrors.New("overrun")
	}
	return block, nil
}

func (*fakeDevice) Close() error { return nil }

func newSource(dev *fakeDevice) *capture.Loop {
	cfg := capture.Config{SampleRate: 44100, TickInterval: time.Millisecond, MaxConsecutiveFailures: 3}
	return capture.New(cfg, func(capture.Config) (capture.Device, error) { return dev, nil }, logger.Nop())
}

type fakeActuator struct {
	mu       sync.Mutex
	colors   []led.Color
	offs     int
	patterns []led.Pattern
	cleanups int
	releases int

	active    atomic.Int32
	maxActive atomic.Int32

	blockPattern bool
	entered      chan struct{}
	cleanupErr   error
}

func newActuator() *fakeActuator {
	return &fakeActuator{entered: make(chan struct{}, 1)}
}

func (f *fakeActuator) SetColor(_ context.Context, c led.Color) error {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(200 * time.Microsecond)

	f.mu.Lock()
	f.colors = append(f.colors, c)
	f.mu.Unlock()
	return nil
}

func (*fakeActuator) SetBrightness(context.Context, led.Brightness) error { return nil }

func (f *fakeActuator) SetPattern(ctx context.Context, p led.Pattern) error {
	f.mu.Lock()
	f.patterns = append(f.patterns, p)
	f.mu.Unlock()

	if f.blockPattern {
		f.entered <- struct{}{}
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeActuator) TurnOff(ctx context.Context) error {
	f.mu.Lock()
	f.offs++
	f.mu.Unlock()
	return nil
}

func (*fakeActuator) State() led.State {
	return led.State{Tier: led.TierSysfsOnly, LastMethod: led.MethodSysfs}
}

func (f *fakeActuator) Cleanup(context.Context) error {
	f.mu.Lock()
	f.cleanups++
	f.mu.Unlock()
	return f.cleanupErr
}

func (f *fakeActuator) Release(context.Context) error {
	f.mu.Lock()
	f.releases++
	f.mu.Unlock()
	return nil
}

func (f *fakeActuator) colorCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.colors)
}

func (f *fakeActuator) lastColor() led.Color {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.colors[len(f.colors)-1]
}

func (f *fakeActuator) offCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offs
}

type fakeRecorder struct {
	mu        sync.Mutex
	snapshots []history.Snapshot
	closed    bool
}

func (r *fakeRecorder) Record(_ context.Context, s *history.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshots = append(r.snapshots, *s)
	return nil
}

func (*fakeRecorder) Recent(context.Context, int) ([]history.Snapshot, error) { return nil, nil }

func (r *fakeRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func newController(act *fakeActuator, src reactive.Source, cfg reactive.Config, opts ...reactive.Option) *reactive.Controller {
	opts = append([]reactive.Option{reactive.WithLogger(logger.Nop())}, opts...)
	return reactive.New(act, src, cfg, opts...)
}

func TestReactiveModeActuatesFrames(t *testing.T) {
	act := newActuator()
	rec := &fakeRecorder{}
	src := newSource(&fakeDevice{})
	ctrl := newController(act, src, reactive.Config{}, reactive.WithHistory(rec))

	require.NoError(t, ctrl.StartReactiveMode(context.Background(), visual.ModeSpectrum, 1))
	assert.True(t, ctrl.IsReactive())

	require.Eventually(t, func() bool { return act.colorCount() >= 10 }, 2*time.Second, time.Millisecond)
	require.NoError(t, ctrl.StopReactiveMode(context.Background()))

	levels := analysis.Analyze(analysis.Normalize(block), 44100)
	want := visual.Map(levels, visual.ModeSpectrum, 1, time.Now())
	assert.Equal(t, want, act.lastColor())
	assert.Equal(t, int32(1), act.maxActive.Load())

	rec.mu.Lock()
	require.NotEmpty(t, rec.snapshots)
	assert.Equal(t, "spectrum", rec.snapshots[0].Mode)
	assert.Equal(t, "sysfs", rec.snapshots[0].Method)
	rec.mu.Unlock()
}

func TestStopReactiveModeTurnsOffAndHalts(t *testing.T) {
	act := newActuator()
	src := newSource(&fakeDevice{})
	ctrl := newController(act, src, reactive.Config{})

	require.NoError(t, ctrl.StartReactiveMode(context.Background(), visual.ModeBassOnly, 1))
	require.Eventually(t, func() bool { return act.colorCount() > 0 }, 2*time.Second, time.Millisecond)

	require.NoError(t, ctrl.StopReactiveMode(context.Background()))
	assert.False(t, ctrl.IsReactive())
	assert.Equal(t, capture.StateIdle, src.State())
	assert.Equal(t, 1, act.offCount())

	n := act.colorCount()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, act.colorCount())

	require.NoError(t, ctrl.StopReactiveMode(context.Background()))
}

func TestStaticColorLeavesReactiveMode(t *testing.T) {
	act := newActuator()
	src := newSource(&fakeDevice{})
	ctrl := newController(act, src, reactive.Config{})

	require.NoError(t, ctrl.StartReactiveMode(context.Background(), visual.ModeRainbow, 2))
	require.Eventually(t, func() bool { return act.colorCount() > 0 }, 2*time.Second, time.Millisecond)

	red := led.Color{R: 255}
	require.NoError(t, ctrl.SetStaticColor(context.Background(), red))
	assert.False(t, ctrl.IsReactive())
	assert.Equal(t, capture.StateIdle, src.State())

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, red, act.lastColor())
}

func TestStartReactiveCancelsEffect(t *testing.T) {
	act := newActuator()
	act.blockPattern = true
	ctrl := newController(act, newSource(&fakeDevice{}), reactive.Config{})

	result := make(chan error, 1)
	go func() {
		result <- ctrl.RunEffect(context.Background(), led.Pattern{Kind: led.PatternRainbowSweep})
	}()
	<-act.entered

	require.NoError(t, ctrl.StartReactiveMode(context.Background(), visual.ModeSpectrum, 1))
	defer ctrl.StopReactiveMode(context.Background())

	select {
	case err := <-result:
		assert.True(t, errors.HasCode(err, reactive.ErrEffectCancelled))
	case <-time.After(2 * time.Second):
		t.Fatal("effect was not cancelled")
	}
}

func TestRunEffectStopsReactiveMode(t *testing.T) {
	act := newActuator()
	ctrl := newController(act, newSource(&fakeDevice{}), reactive.Config{})

	require.NoError(t, ctrl.StartReactiveMode(context.Background(), visual.ModeSpectrum, 1))
	require.NoError(t, ctrl.RunEffect(context.Background(), led.Pattern{Kind: led.PatternBreathing}))
	assert.False(t, ctrl.IsReactive())

	act.mu.Lock()
	defer act.mu.Unlock()
	require.Len(t, act.patterns, 1)
	assert.Equal(t, led.PatternBreathing, act.patterns[0].Kind)
}

func TestSensitivityClamped(t *testing.T) {
	ctrl := newController(newActuator(), newSource(&fakeDevice{}), reactive.Config{Sensitivity: 50})
	assert.Equal(t, visual.MaxSensitivity, ctrl.Sensitivity())

	ctrl.SetSensitivity(0)
	assert.Equal(t, visual.MinSensitivity, ctrl.Sensitivity())

	ctrl.SetSensitivity(1.5)
	assert.Equal(t, 1.5, ctrl.Sensitivity())

	ctrl.SetMode(visual.ModeBreathing)
	assert.Equal(t, visual.ModeBreathing, ctrl.Mode())
}

func TestCaptureFailureEndsReactiveMode(t *testing.T) {
	act := newActuator()
	ctrl := newController(act, newSource(&fakeDevice{fail: true}), reactive.Config{})

	require.NoError(t, ctrl.StartReactiveMode(context.Background(), visual.ModeSpectrum, 1))
	require.Eventually(t, func() bool { return !ctrl.IsReactive() }, 2*time.Second, time.Millisecond)

	assert.True(t, errors.HasCode(ctrl.Err(), capture.ErrDeviceUnavailable))
	assert.Equal(t, 1, act.offCount())
	assert.Zero(t, act.colorCount())
}

func TestStartFailsWhenDeviceUnavailable(t *testing.T) {
	src := capture.New(capture.Config{}, func(capture.Config) (capture.Device, error) {
		return nil, stderrors.New("no microphone")
	}, logger.Nop())
	ctrl := newController(newActuator(), src, reactive.Config{})

	err := ctrl.StartReactiveMode(context.Background(), visual.ModeSpectrum, 1)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, capture.ErrDeviceUnavailable))
	assert.Equal(t, err, ctrl.Err())
	assert.False(t, ctrl.IsReactive())
}

func TestMinIntervalDropsFrames(t *testing.T) {
	act := newActuator()
	src := newSource(&fakeDevice{})
	sub := src.Subscribe()
	defer sub.Close()

	ctrl := newController(act, src, reactive.Config{MinInterval: time.Hour})
	require.NoError(t, ctrl.StartReactiveMode(context.Background(), visual.ModeSpectrum, 1))
	require.Eventually(t, func() bool { return act.colorCount() == 1 }, 2*time.Second, time.Millisecond)

	for i := 0; i < 5; i++ {
		select {
		case <-sub.Ready():
			sub.Take()
		case <-time.After(2 * time.Second):
			t.Fatal("no frames published")
		}
	}
	require.NoError(t, ctrl.StopReactiveMode(context.Background()))

	assert.Equal(t, 1, act.colorCount())
}

func TestShutdown(t *testing.T) {
	act := newActuator()
	act.cleanupErr = stderrors.New("node gone")
	rec := &fakeRecorder{}
	ctrl := newController(act, newSource(&fakeDevice{}), reactive.Config{}, reactive.WithHistory(rec))

	require.NoError(t, ctrl.StartReactiveMode(context.Background(), visual.ModeSpectrum, 1))

	err := ctrl.Shutdown(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrShutdownFailed))
	assert.False(t, ctrl.IsReactive())
	assert.Equal(t, 1, act.cleanups)
	assert.True(t, rec.closed)

	require.NoError(t, ctrl.Shutdown(context.Background()))
	assert.Equal(t, 1, act.cleanups)

	err = ctrl.SetStaticColor(context.Background(), led.White)
	assert.True(t, errors.HasCode(err, reactive.ErrShutdown))
	err = ctrl.StartReactiveMode(context.Background(), visual.ModeSpectrum, 1)
	assert.True(t, errors.HasCode(err, reactive.ErrShutdown))
}

func TestReleaseKeepsLightOn(t *testing.T) {
	act := newActuator()
	ctrl := newController(act, newSource(&fakeDevice{}), reactive.Config{})

	orange, _ := led.LookupPreset("orange")
	require.NoError(t, ctrl.SetStaticColor(context.Background(), orange))
	require.NoError(t, ctrl.Release(context.Background()))

	assert.Equal(t, 1, act.releases)
	assert.Zero(t, act.cleanups)
	assert.Zero(t, act.offCount())
	assert.Equal(t, orange, act.lastColor())

	require.NoError(t, ctrl.Shutdown(context.Background()))
	assert.Zero(t, act.cleanups)
}
