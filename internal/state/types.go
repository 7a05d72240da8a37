// Package state defines the tracked-entity model shared by the
// reconciliation engines and their consumers. Engines own the live maps;
// everything handed to consumers is a deep copy.
package state

import (
	"fmt"
	"time"

	"devscope/internal/metrics"
)

// Class distinguishes the two tracked-entity kinds, each reconciled by
// its own engine instance.
type Class string

const (
	ClassServer Class = "server"
	ClassScript Class = "script"
)

// Entity is one tracked process/port (server) or process/script (script)
// pairing. Identity is stable across polling cycles for as long as the OS
// reports the same pid (and port).
type Entity struct {
	Key      string
	Class    Class
	PID      int32
	Port     int    // servers only
	Protocol string // servers only

	Name    string
	Cmdline string
	Exe     string
	CWD     string // servers only

	Framework  string // servers only, derived
	ScriptName string // scripts only, basename of the script path

	FirstSeen time.Time
	LastSeen  time.Time

	CPUPercent float64
	MemoryRSS  uint64
	CPUHistory *metrics.History
	MemHistory *metrics.History
}

// ServerKey is the composite identity of a server entity. Pid alone is
// not enough: one process may listen on several ports, each tracked
// separately.
func ServerKey(pid int32, port int) string {
	return fmt.Sprintf("%d:%d", pid, port)
}

// ScriptKey is the identity of a script entity.
func ScriptKey(pid int32) string {
	return fmt.Sprintf("%d", pid)
}

// Snapshot returns a deep copy safe to hand outside the engine lock.
func (e *Entity) Snapshot() Entity {
	cp := *e
	if e.CPUHistory != nil {
		cp.CPUHistory = e.CPUHistory.Clone()
	}
	if e.MemHistory != nil {
		cp.MemHistory = e.MemHistory.Clone()
	}
	return cp
}
