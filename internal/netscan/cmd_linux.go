//go:build linux

package netscan

import (
	"context"
	"fmt"
	"os/exec"
)

// listCommandSource runs `ss -tlnp` and parses its listening lines.
// ss only reports owning pids for the current user's sockets unless
// running as root; entries without a pid are skipped by the parser.
func listCommandSource(ctx context.Context) ([]Listener, error) {
	out, err := exec.CommandContext(ctx, "ss", "-tlnp").Output()
	if err != nil {
		return nil, fmt.Errorf("ss -tlnp: %w", err)
	}
	return parseSS(string(out)), nil
}
