//go:build windows

package process

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

var errNoSuchProcess = errors.New("no such process")

// Terminate has no graceful SIGTERM equivalent on Windows; it behaves
// like Kill.
func Terminate(pid int) error {
	return Kill(pid)
}

func Kill(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid PID: %d", pid)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return errNoSuchProcess
	}
	if err := proc.Kill(); err != nil {
		if strings.Contains(err.Error(), "process already finished") {
			return errNoSuchProcess
		}
		return fmt.Errorf("killing PID %d: %w", pid, err)
	}
	return nil
}

func IsNoSuchProcess(err error) bool {
	return errors.Is(err, errNoSuchProcess)
}
