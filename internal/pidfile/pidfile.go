// Package pidfile writes, reads and liveness-checks the daemon's PID
// file. x/sys/unix.Kill(pid, 0) is the standard systems-programming way
// to probe whether a PID is still alive without sending a real signal;
// no pack repo carries a dedicated pidfile library to ground a richer
// implementation on.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrStaleProcess is returned by CheckLive when the file names a PID
// that is no longer running; callers should treat this as "safe to
// overwrite" rather than a fatal startup error.
var ErrStaleProcess = errors.New("pidfile names a process that is no longer running")

// ErrAlreadyRunning is returned by CheckLive when the file names a PID
// of a process that is still alive.
var ErrAlreadyRunning = errors.New("another opsipxeconfd process is already running")

// Write atomically creates path containing the current process's PID.
func Write(path string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		return fmt.Errorf("write pidfile %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename pidfile %s: %w", path, err)
	}
	return nil
}

// Remove deletes path, ignoring a not-exist error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove pidfile %s: %w", path, err)
	}
	return nil
}

// Read returns the PID recorded in path.
func Read(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("read pidfile %s: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(raw)))
	if err != nil {
		return 0, fmt.Errorf("parse pidfile %s: %w", path, err)
	}
	return pid, nil
}

// CheckLive reads path and probes whether the PID it names is still
// alive via a signal-0 kill. A missing pidfile is not an error: it
// means nothing is running. A live match returns ErrAlreadyRunning; a
// stale match returns ErrStaleProcess so the caller can remove it and
// proceed.
func CheckLive(path string) error {
	pid, err := Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	if err := unix.Kill(pid, 0); err != nil {
		if errors.Is(err, unix.ESRCH) {
			return ErrStaleProcess
		}
		// Any other errno (e.g. EPERM: pid exists but is owned by
		// another user) is treated conservatively as "still running".
		return fmt.Errorf("%w (pid %d): %v", ErrAlreadyRunning, pid, err)
	}
	return fmt.Errorf("%w (pid %d)", ErrAlreadyRunning, pid)
}
