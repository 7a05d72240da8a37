package procmeta

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// Script is a discovered script-style process: an interpreter runtime
// executing a script file.
type Script struct {
	PID        int32
	Name       string
	Cmdline    string
	Exe        string
	ScriptPath string
	ScriptName string
}

// interpreters are the runtimes whose invocations count as script-style
// processes.
var interpreters = map[string]bool{
	"node":    true,
	"bun":     true,
	"deno":    true,
	"python":  true,
	"python3": true,
	"ruby":    true,
	"php":     true,
	"bash":    true,
	"sh":      true,
}

// scriptExts are the file extensions recognized as script paths.
var scriptExts = map[string]bool{
	".js":  true,
	".mjs": true,
	".cjs": true,
	".ts":  true,
	".tsx": true,
	".py":  true,
	".rb":  true,
	".php": true,
	".sh":  true,
}

// ListScripts scans the process table for interpreter invocations that
// carry a script-path argument.
func ListScripts(ctx context.Context) ([]Script, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var scripts []Script
	for _, proc := range procs {
		name, err := proc.NameWithContext(ctx)
		if err != nil {
			continue // vanished mid-scan
		}
		if !interpreters[normalizeRuntime(name)] {
			continue
		}

		args, err := proc.CmdlineSliceWithContext(ctx)
		if err != nil || len(args) < 2 {
			continue
		}
		scriptPath, ok := scriptPathFromArgs(args[1:])
		if !ok {
			continue
		}

		cmdline := strings.Join(args, " ")
		exe, _ := proc.ExeWithContext(ctx)
		scripts = append(scripts, Script{
			PID:        proc.Pid,
			Name:       name,
			Cmdline:    cmdline,
			Exe:        exe,
			ScriptPath: scriptPath,
			ScriptName: filepath.Base(scriptPath),
		})
	}
	return scripts, nil
}

// normalizeRuntime strips a Windows .exe suffix and version suffixes like
// python3.12 down to the bare runtime name.
func normalizeRuntime(name string) string {
	name = strings.ToLower(strings.TrimSuffix(name, ".exe"))
	if strings.HasPrefix(name, "python3.") {
		return "python3"
	}
	return name
}

// scriptPathFromArgs returns the first non-flag argument that looks like
// a script file.
func scriptPathFromArgs(args []string) (string, bool) {
	for _, arg := range args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		if scriptExts[strings.ToLower(filepath.Ext(arg))] {
			return arg, true
		}
	}
	return "", false
}
