package process

import (
	"fmt"
	"os/exec"
	"runtime"
)

// OpenPath reveals a directory in the platform's file manager.
func OpenPath(path string) error {
	if path == "" {
		return fmt.Errorf("no path to open")
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("xdg-open", path)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	return nil
}
