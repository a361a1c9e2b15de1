package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"codeberg.org/mutker/lightsync/internal/capture"
	"codeberg.org/mutker/lightsync/internal/config"
	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/history"
	"codeberg.org/mutker/lightsync/internal/led"
	"codeberg.org/mutker/lightsync/internal/logger"
	"codeberg.org/mutker/lightsync/internal/pid"
	"codeberg.org/mutker/lightsync/internal/reactive"
	"codeberg.org/mutker/lightsync/internal/settings"
	"codeberg.org/mutker/lightsync/internal/shell"
	"codeberg.org/mutker/lightsync/internal/visual"
)

const (
	cleanupTimeout = 5 * time.Second
	statusInterval = 10 * time.Second
)

var (
	cfg        *config.Config
	driver     *led.Driver
	ctrl       *reactive.Controller
	pidWritten bool
)

func main() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		printError(err.Error())
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	if !cfg.Debug && !cfg.Verbose {
		if level, ok := logger.ParseLevel(cfg.LogLevel); ok {
			logger.SetLogLevel(level)
		}
	}
	logger.Debug().Msg("Config loaded")

	if cfg.Action.List {
		printList()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
		cleanup()
		os.Exit(1)
	}
	cleanup()
}

func run(ctx context.Context) error {
	if !cfg.Action.Status {
		if err := pid.Write(cfg.PIDFile); err != nil {
			return err
		}
		pidWritten = true
	}

	driver = newDriver()
	state := driver.Initialize(ctx)
	logger.Info().
		Str("tier", state.Tier.String()).
		Strs("interfaces", state.Interfaces).
		Msg("LED driver initialized")

	ctrl = reactive.New(driver, newCapture(), reactiveConfig(),
		reactive.WithHistory(newHistory()),
		reactive.WithLogger(logger.Default()),
	)

	if cfg.Action.Reactive() {
		return loop(ctx)
	}
	return runAction(ctx, cfg.Action)
}

func newDriver() *led.Driver {
	log := logger.Default()

	ledCfg := led.DefaultConfig()
	ledCfg.TierOrder = tierOrder(cfg.LED.TierOrder)
	ledCfg.NativeDevice = cfg.LED.NativeDevice
	ledCfg.SysfsRoot = cfg.LED.SysfsRoot
	ledCfg.LEDClassRoot = cfg.LED.LEDClassRoot
	ledCfg.ProbeRoots = cfg.LED.ProbeRoots
	ledCfg.CommandTimeout = cfg.LED.CommandTimeout
	ledCfg.PropertyCommand = cfg.LED.PropertyCommand
	ledCfg.TopicPrefix = cfg.Broadcast.TopicPrefix
	ledCfg.RainbowDuration = cfg.LED.RainbowDuration
	ledCfg.RainbowColors = cfg.LED.RainbowColors
	ledCfg.ExecutorQueue = cfg.LED.ExecutorQueue

	opts := []led.Option{
		led.WithLogger(log),
		led.WithRunner(shell.NewExec(cfg.LED.CommandTimeout)),
		led.WithSettingsOpener(func() (settings.Store, error) {
			return settings.Open(cfg.Settings.DBPath, log)
		}),
	}

	if cfg.Broadcast.Enabled {
		bc := led.BroadcastConfig{
			Broker:         cfg.Broadcast.Broker,
			ClientID:       cfg.Broadcast.ClientID,
			ConnectTimeout: cfg.Broadcast.ConnectTimeout,
		}
		opts = append(opts, led.WithBroadcastDialer(func(ctx context.Context) (led.Broadcaster, error) {
			return led.DialMQTT(ctx, bc, log)
		}))
	}

	return led.New(ledCfg, opts...)
}

func tierOrder(names []string) []led.Method {
	order := make([]led.Method, 0, len(names))
	for _, name := range names {
		if m, ok := led.ParseMethod(name); ok {
			order = append(order, m)
		}
	}
	return order
}

func newCapture() *capture.Loop {
	return capture.New(capture.Config{
		SampleRate:             cfg.Audio.SampleRate,
		BufferMultiplier:       cfg.Audio.BufferMultiplier,
		MinBufferFrames:        cfg.Audio.MinBufferFrames,
		TickInterval:           cfg.Audio.TickInterval,
		MaxConsecutiveFailures: cfg.Audio.MaxConsecutiveFailures,
	}, capture.OpenPortAudio, logger.Default())
}

func newHistory() history.Recorder {
	rec, err := history.NewService(history.Config{
		Enabled:      cfg.History.Enabled && cfg.Action.Reactive(),
		DBPath:       cfg.History.DBPath,
		BatchSize:    cfg.History.BatchSize,
		BatchTimeout: cfg.History.BatchTimeout,
	}, logger.Default())
	if err != nil {
		logger.Warn().Err(err).Msg("History unavailable, continuing without it")
		return history.Noop()
	}
	return rec
}

func reactiveConfig() reactive.Config {
	mode, _ := visual.ParseMode(cfg.Reactive.Mode)
	return reactive.Config{
		Mode:        mode,
		Sensitivity: cfg.Reactive.Sensitivity,
		MinInterval: cfg.Reactive.MinInterval,
	}
}

func loop(ctx context.Context) error {
	rc := reactiveConfig()
	if err := ctrl.StartReactiveMode(ctx, rc.Mode, rc.Sensitivity); err != nil {
		return err
	}

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !ctrl.IsReactive() {
				if err := ctrl.Err(); err != nil {
					return err
				}
				return errors.New().New(errors.ErrMainLoop)
			}

			st := driver.State()
			logger.Info().
				Str("mode", ctrl.Mode().String()).
				Float64("sensitivity", ctrl.Sensitivity()).
				Str("tier", st.Tier.String()).
				Str("method", st.LastMethod.String()).
				Msg("")
		}
	}
}

// runAction performs the one-shot request described by action.
func runAction(ctx context.Context, action config.Action) error {
	if action.Status {
		printStatus(driver.StatusReport())
		return nil
	}

	if action.Test {
		return driver.TestLED(ctx)
	}

	if action.Brightness >= 0 {
		if err := ctrl.SetBrightness(ctx, led.Brightness(action.Brightness)); err != nil {
			return err
		}
	}

	if action.Off {
		return ctrl.TurnOff(ctx)
	}

	var color *led.Color
	if action.Color != "" {
		c, err := parseColor(action.Color)
		if err != nil {
			return err
		}
		color = &c
	}

	if action.Effect != "" {
		kind, _ := led.ParsePattern(action.Effect)
		return ctrl.RunEffect(ctx, led.Pattern{Kind: kind, Color: color})
	}

	if color != nil {
		return ctrl.SetStaticColor(ctx, *color)
	}

	return nil
}

// parseColor accepts a preset name or a hex triplet.
func parseColor(s string) (led.Color, error) {
	if c, ok := led.LookupPreset(strings.ToLower(s)); ok {
		return c, nil
	}
	return led.ParseColor(s)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	if ctrl != nil {
		var err error
		if cfg.Action.Reactive() {
			err = ctrl.Shutdown(ctx)
		} else {
			err = ctrl.Release(ctx)
		}
		if err != nil {
			logger.Error().Err(err).Msg("failed to release LED controller")
		}
	}

	if pidWritten {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}

	logger.Info().Msg("Exiting...")
}

func printError(msg string) {
	fmt.Fprintf(os.Stderr, "%s %s\n", errorStyle.Render("Error:"), msg)
}
