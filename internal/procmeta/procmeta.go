// Package procmeta resolves display metadata for batches of process IDs:
// name, command line, executable path and a best-effort working directory.
//
// Working-directory resolution is the most expensive lookup of a scan
// cycle (it spawns a subprocess on some platforms) and rarely changes for
// a long-lived dev server, so results are cached per pid with a short TTL.
package procmeta

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// Metadata is the resolved per-pid display information. Fields that could
// not be determined are left empty; that is not an error.
type Metadata struct {
	PID     int32
	Name    string
	Cmdline string
	Exe     string
	CWD     string
}

// Resolver resolves process metadata. It exclusively owns the cwd cache;
// no other component reads or writes it.
type Resolver struct {
	cache *cwdCache

	// osCwd queries the OS for a process working directory. Swappable
	// in tests.
	osCwd func(ctx context.Context, pid int32) (string, error)
}

func NewResolver() *Resolver {
	return &Resolver{
		cache: newCwdCache(cwdCacheTTL),
		osCwd: gopsutilCwd,
	}
}

// Resolve returns metadata for each pid that still exists. Pids that
// vanished between enumeration and resolution are simply absent from the
// result. withCWD enables the working-directory chain (servers only).
func (r *Resolver) Resolve(ctx context.Context, pids []int32, withCWD bool) map[int32]Metadata {
	result := make(map[int32]Metadata, len(pids))

	for _, pid := range pids {
		proc, err := process.NewProcessWithContext(ctx, pid)
		if err != nil {
			continue
		}

		meta := Metadata{PID: pid}
		meta.Name, _ = proc.NameWithContext(ctx)
		meta.Cmdline, _ = proc.CmdlineWithContext(ctx)
		meta.Exe, _ = proc.ExeWithContext(ctx)
		if withCWD {
			meta.CWD = r.resolveCWD(ctx, pid, meta.Cmdline)
		}
		result[pid] = meta
	}

	r.cache.sweep()
	return result
}

// resolveCWD runs the ordered fallback chain: cache hit short-circuits
// everything; otherwise direct OS query, then command-line extraction.
// An unresolved directory is cached too, so dead ends are not retried
// every cycle.
func (r *Resolver) resolveCWD(ctx context.Context, pid int32, cmdline string) string {
	if dir, ok := r.cache.get(pid); ok {
		return dir
	}

	dir, err := r.osCwd(ctx, pid)
	if err != nil || dir == "" {
		if extracted, ok := ExtractCwd(cmdline); ok {
			dir = extracted
		} else {
			dir = ""
		}
	}

	r.cache.put(pid, dir)
	return dir
}

func gopsutilCwd(ctx context.Context, pid int32) (string, error) {
	proc, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return "", err
	}
	return proc.CwdWithContext(ctx)
}

// cwdCacheTTL bounds how long a resolved (or confirmed-absent) working
// directory is reused before the chain runs again.
const cwdCacheTTL = 30 * time.Second
