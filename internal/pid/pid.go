// Package pid guards against two daemons sharing one journal.
package pid

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"codeberg.org/mutker/embedids/internal/errors"
)

// DefaultFile is used when Write gets an empty path.
const DefaultFile = "embedids.pid"

func resolve(path string) string {
	if path == "" {
		return filepath.Join(os.TempDir(), DefaultFile)
	}
	return path
}

// Write records the current process ID at path. It fails with
// ErrAlreadyRunning when the file names a live process; stale files are
// overwritten.
func Write(path string) error {
	errFactory := errors.New()
	path = resolve(path)

	if data, err := os.ReadFile(path); err == nil {
		if running(strings.TrimSpace(string(data))) {
			return errFactory.WithData(errors.ErrAlreadyRunning, path)
		}
	} else if !os.IsNotExist(err) {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o600); err != nil {
		return errFactory.Wrap(errors.ErrInternal, err)
	}

	return nil
}

func running(raw string) bool {
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return false
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	return process.Signal(syscall.Signal(0)) == nil
}

// Remove deletes the PID file at path. A missing file is not an error.
func Remove(path string) error {
	if err := os.Remove(resolve(path)); err != nil && !os.IsNotExist(err) {
		return errors.New().Wrap(errors.ErrInternal, err)
	}
	return nil
}
