package config

import (
	"codeberg.org/mutker/lightsync/internal/errors"
	"codeberg.org/mutker/lightsync/internal/led"
	"codeberg.org/mutker/lightsync/internal/visual"
)

// LogLevel represents valid logging levels
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warning"
	LogLevelError   LogLevel = "error"
)

// IsValid returns whether the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError:
		return true
	default:
		return false
	}
}

// String implements the Stringer interface
func (l LogLevel) String() string {
	return string(l)
}

// FieldError describes which configuration key was rejected and why.
type FieldError struct {
	Field  string
	Value  any
	Reason string
}

// Validate checks ranges and enumerations. Sensitivity is not rejected here;
// it is clamped when it is applied.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, FieldError{
			Field: "log_level", Value: c.LogLevel, Reason: "unknown level",
		})
	}

	if c.Audio.SampleRate <= 0 {
		return invalid("audio.sample_rate", c.Audio.SampleRate, "must be positive")
	}
	if c.Audio.BufferMultiplier < 1 {
		return invalid("audio.buffer_multiplier", c.Audio.BufferMultiplier, "must be at least 1")
	}
	if c.Audio.MinBufferFrames < 0 {
		return invalid("audio.min_buffer_frames", c.Audio.MinBufferFrames, "must not be negative")
	}
	if c.Audio.TickInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, FieldError{
			Field: "audio.tick_interval", Value: c.Audio.TickInterval, Reason: "must be positive",
		})
	}
	if c.Audio.MaxConsecutiveFailures < 1 {
		return invalid("audio.max_consecutive_failures", c.Audio.MaxConsecutiveFailures, "must be at least 1")
	}

	if _, ok := visual.ParseMode(c.Reactive.Mode); !ok {
		return invalid("reactive.mode", c.Reactive.Mode, "unknown mode")
	}
	if c.Reactive.MinInterval < 0 {
		return invalid("reactive.min_interval", c.Reactive.MinInterval, "must not be negative")
	}

	for _, name := range c.LED.TierOrder {
		if _, ok := led.ParseMethod(name); !ok {
			return invalid("led.tier_order", name, "unknown method")
		}
	}
	if c.LED.CommandTimeout <= 0 {
		return invalid("led.command_timeout", c.LED.CommandTimeout, "must be positive")
	}
	if c.LED.RainbowColors < 1 {
		return invalid("led.rainbow_colors", c.LED.RainbowColors, "must be at least 1")
	}
	if c.LED.ExecutorQueue < 1 {
		return invalid("led.executor_queue", c.LED.ExecutorQueue, "must be at least 1")
	}

	if c.Broadcast.Enabled && c.Broadcast.Broker == "" {
		return errFactory.WithData(errors.ErrMissingConfig, FieldError{
			Field: "broadcast.broker", Reason: "required when broadcast is enabled",
		})
	}

	if c.History.Enabled && c.History.DBPath == "" {
		return errFactory.WithData(errors.ErrMissingConfig, FieldError{
			Field: "history.db_path", Reason: "required when history is enabled",
		})
	}

	if c.Action.Effect != "" {
		if _, ok := led.ParsePattern(c.Action.Effect); !ok {
			return invalid("effect", c.Action.Effect, "unknown effect")
		}
	}
	// -1 means no brightness request.
	if c.Action.Brightness < -1 || c.Action.Brightness > 100 {
		return invalid("brightness", c.Action.Brightness, "must be between 0 and 100")
	}

	return nil
}

func invalid(field string, value any, reason string) error {
	return errors.New().WithData(errors.ErrInvalidConfig, FieldError{
		Field: field, Value: value, Reason: reason,
	})
}
