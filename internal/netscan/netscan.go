// Package netscan enumerates the listening TCP sockets on the local host.
//
// Two independent sources are merged: the gopsutil connection table
// (primary) and the platform's command-line socket listing (secondary).
// Neither source is complete on every system, so the union deduplicated
// by pid:port is more accurate than either alone.
package netscan

import (
	"context"
	"fmt"

	gopsnet "github.com/shirou/gopsutil/v4/net"
)

// Listener is one observed (pid, port, protocol) listening socket.
type Listener struct {
	PID      int32
	Port     int
	Protocol string
}

// Key returns the dedup identity for a listener.
func (l Listener) Key() string {
	return fmt.Sprintf("%d:%d", l.PID, l.Port)
}

// Merge deduplicates two source listings by pid:port. Entries from the
// secondary source are inserted only when the primary did not report the
// key, so the primary's protocol label wins on conflicts. Order of the
// primary listing is preserved; secondary fills follow.
func Merge(primary, secondary []Listener) []Listener {
	seen := make(map[string]bool, len(primary))
	merged := make([]Listener, 0, len(primary)+len(secondary))

	for _, l := range primary {
		key := l.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, l)
	}
	for _, l := range secondary {
		key := l.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		merged = append(merged, l)
	}
	return merged
}

// commandSource lists listeners via the platform's command-line tool.
// It is a var so tests can stub it out.
var commandSource = listCommandSource

// Enumerator produces the current set of listening sockets.
type Enumerator struct{}

func NewEnumerator() *Enumerator {
	return &Enumerator{}
}

// Enumerate queries both sources and merges the results. A single source
// failing degrades to the other; both failing is a cycle error.
func (e *Enumerator) Enumerate(ctx context.Context) ([]Listener, error) {
	primary, perr := gopsutilSource(ctx)
	secondary, serr := commandSource(ctx)

	if perr != nil && serr != nil {
		return nil, fmt.Errorf("all socket sources failed: %v; %v", perr, serr)
	}
	return Merge(primary, secondary), nil
}

// gopsutilSource reads the kernel connection table and keeps LISTEN
// entries with a known owning pid.
func gopsutilSource(ctx context.Context) ([]Listener, error) {
	conns, err := gopsnet.ConnectionsWithContext(ctx, "tcp")
	if err != nil {
		return nil, fmt.Errorf("connection table: %w", err)
	}

	var listeners []Listener
	for _, c := range conns {
		if c.Status != "LISTEN" || c.Pid == 0 {
			continue
		}
		proto := "tcp"
		if c.Family == 10 {
			proto = "tcp6"
		}
		listeners = append(listeners, Listener{
			PID:      c.Pid,
			Port:     int(c.Laddr.Port),
			Protocol: proto,
		})
	}
	return listeners, nil
}
