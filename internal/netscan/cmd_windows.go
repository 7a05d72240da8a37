//go:build windows

package netscan

import (
	"context"
	"fmt"
	"os/exec"
)

// listCommandSource runs `netstat -ano` and parses its LISTENING lines.
func listCommandSource(ctx context.Context) ([]Listener, error) {
	out, err := exec.CommandContext(ctx, "netstat", "-ano").Output()
	if err != nil {
		return nil, fmt.Errorf("netstat -ano: %w", err)
	}
	return parseNetstat(string(out)), nil
}
