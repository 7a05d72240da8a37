//go:build !windows

// Package process implements the imperative actions on tracked entities:
// terminating a process and opening its working directory.
package process

import (
	"errors"
	"fmt"
	"strings"
	"syscall"
)

// errNoSuchProcess is returned when the target process does not exist.
var errNoSuchProcess = errors.New("no such process")

// Terminate sends SIGTERM for graceful shutdown of a tracked process.
func Terminate(pid int) error {
	return sendSignal(pid, syscall.SIGTERM)
}

// Kill sends SIGKILL when graceful shutdown is not enough.
func Kill(pid int) error {
	return sendSignal(pid, syscall.SIGKILL)
}

// sendSignal delivers sig to the process group of pid so child workers
// (bundler watchers, forked dev servers) go down with their parent. If
// the process is not a group leader the signal falls back to the
// individual pid.
func sendSignal(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}

	pgErr := syscall.Kill(-pid, sig)
	if pgErr == nil {
		return nil
	}

	if errors.Is(pgErr, syscall.ESRCH) || errors.Is(pgErr, syscall.EPERM) {
		pidErr := syscall.Kill(pid, sig)
		if pidErr == nil {
			return nil
		}
		if isProcessGone(pidErr) {
			return errNoSuchProcess
		}
		return fmt.Errorf("sending signal to PID %d: %w", pid, pidErr)
	}

	return fmt.Errorf("sending signal to process group %d: %w", pid, pgErr)
}

// IsNoSuchProcess reports whether the error means the process already
// exited.
func IsNoSuchProcess(err error) bool {
	return errors.Is(err, errNoSuchProcess)
}

func isProcessGone(err error) bool {
	if err == nil {
		return false
	}
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno == syscall.ESRCH
	}
	return strings.Contains(err.Error(), "process already finished") ||
		strings.Contains(err.Error(), "no such process")
}
