package logger

import (
	"io"
	"os"
	"syscall"
	"time"

	"codeberg.org/mutker/lightsync/internal/errors"
	"github.com/rs/zerolog"
)

var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Init initializes the logger based on the given configuration
func Init(debug, verbose, isService bool) {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if isService {
		output.TimeFormat = ""
		output.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	log = zerolog.New(output).With().Timestamp().Logger()

	SetLogLevel(WarnLevel) // Default log level

	if debug {
		SetLogLevel(DebugLevel)
	} else if verbose {
		SetLogLevel(InfoLevel)
	}
}

// ParseLevel maps a configured level name onto a LogLevel
func ParseLevel(level string) (LogLevel, bool) {
	switch level {
	case "debug":
		return DebugLevel, true
	case "info":
		return InfoLevel, true
	case "warning", "warn":
		return WarnLevel, true
	case "error":
		return ErrorLevel, true
	default:
		return WarnLevel, false
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error message with a specific error code
func ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err errors.Error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(ev *zerolog.Event, err errors.Error) *LogEvent {
	return &LogEvent{ev.
		Str("error_code", string(err.Code())).
		Str("error_message", err.Error()).
		AnErr("error", err.Unwrap())}
}

// instance is a Logger bound to a zerolog.Logger, used where components take
// an injected logger instead of the package-level one.
type instance struct {
	zl *zerolog.Logger
}

// Default returns a Logger backed by the package-level logger. It resolves the
// global on every call so that a later Init is honored.
func Default() Logger {
	return &instance{}
}

// New returns a Logger writing JSON lines to w.
func New(w io.Writer) Logger {
	zl := zerolog.New(w).With().Timestamp().Logger()
	return &instance{zl: &zl}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	zl := zerolog.Nop()
	return &instance{zl: &zl}
}

func (l *instance) logger() *zerolog.Logger {
	if l.zl == nil {
		return &log
	}
	return l.zl
}

func (l *instance) Debug() *LogEvent { return &LogEvent{l.logger().Debug()} }
func (l *instance) Info() *LogEvent  { return &LogEvent{l.logger().Info()} }
func (l *instance) Warn() *LogEvent  { return &LogEvent{l.logger().Warn()} }
func (l *instance) Error() *LogEvent { return &LogEvent{l.logger().Error()} }

func (l *instance) ErrorWithCode(err errors.Error) *LogEvent {
	return withCode(l.logger().Error(), err)
}

func (l *instance) ErrorWithContext(err errors.Error, component, operation string) *LogEvent {
	ev := withCode(l.logger().Error(), err)
	ev.Str("component", component).Str("operation", operation)
	return ev
}

func (l *instance) With(component string) Logger {
	zl := l.logger().With().Str("component", component).Logger()
	return &instance{zl: &zl}
}
