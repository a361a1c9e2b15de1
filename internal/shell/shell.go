package shell

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"codeberg.org/mutker/lightsync/internal/errors"
)

const (
	ErrCommandFailed  = errors.ErrorCode("shell_command_failed")
	ErrCommandTimeout = errors.ErrorCode("shell_command_timeout")
	ErrEmptyCommand   = errors.ErrorCode("shell_empty_command")

	// DefaultTimeout bounds a command when the caller's context has no deadline.
	DefaultTimeout = 2 * time.Second
)

// Runner executes an external program and returns its trimmed combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// Exec runs programs with os/exec. Every run is bounded by Timeout.
type Exec struct {
	Timeout time.Duration
}

func NewExec(timeout time.Duration) *Exec {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Exec{Timeout: timeout}
}

func (e *Exec) Run(ctx context.Context, name string, args ...string) (string, error) {
	errFactory := errors.New()

	if name == "" {
		return "", errFactory.New(ErrEmptyCommand)
	}

	ctx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	output := strings.TrimSpace(out.String())

	if ctx.Err() == context.DeadlineExceeded {
		return output, errFactory.WithData(ErrCommandTimeout, struct {
			Command string
			Timeout time.Duration
		}{
			Command: name,
			Timeout: e.Timeout,
		})
	}
	if err != nil {
		return output, errFactory.Wrap(ErrCommandFailed, err).WithMessage(name + ": " + output)
	}

	return output, nil
}

// RunLine splits line on whitespace and runs it. No shell is involved, so
// quoting and redirection are not interpreted.
func RunLine(ctx context.Context, r Runner, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", errors.New().New(ErrEmptyCommand)
	}
	return r.Run(ctx, fields[0], fields[1:]...)
}
