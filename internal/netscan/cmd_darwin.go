//go:build darwin

package netscan

import (
	"context"
	"fmt"
	"os/exec"
)

// listCommandSource runs lsof restricted to listening TCP sockets.
func listCommandSource(ctx context.Context) ([]Listener, error) {
	out, err := exec.CommandContext(ctx, "lsof", "-nP", "-iTCP", "-sTCP:LISTEN").Output()
	if err != nil {
		return nil, fmt.Errorf("lsof: %w", err)
	}
	return parseLsof(string(out)), nil
}
