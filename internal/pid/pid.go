package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/lightsync/internal/errors"
)

const (
	DefaultName = "lightsync.pid"
	filePerm    = 0o600
	dirPerm     = 0o755
)

// Write records the current process ID in path. It fails with
// errors.ErrAlreadyRunning when path names a live process. An empty path uses
// DefaultName in the temp directory.
func Write(path string) error {
	errFactory := errors.New()
	path = resolve(path)

	if running, err := alive(path); err != nil {
		return err
	} else if running {
		return errFactory.WithData(errors.ErrAlreadyRunning, path)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), filePerm); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

// Remove removes the PID file.
func Remove(path string) error {
	path = resolve(path)

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}

	return nil
}

func resolve(path string) string {
	if path == "" {
		return filepath.Join(os.TempDir(), DefaultName)
	}
	return path
}

// alive reports whether the PID file at path names another running process.
// Unreadable PIDs count as stale.
func alive(path string) (bool, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, errors.New().Wrap(errors.ErrInternal, err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 || pid == os.Getpid() {
		return false, nil
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false, nil
	}

	return process.Signal(syscall.Signal(0)) == nil, nil
}
