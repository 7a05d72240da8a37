package procmeta

import "regexp"

// cwdPattern is one step of the command-line extraction chain. The
// pattern's first capture group is the candidate directory.
type cwdPattern struct {
	name string
	re   *regexp.Regexp
}

// cwdPatterns is evaluated in order; the first match wins. The order is
// deliberate: a node_modules path is the strongest project-root signal,
// a known project config file the next, a conventional source directory
// name the weakest.
var cwdPatterns = []cwdPattern{
	{
		name: "node_modules",
		re:   regexp.MustCompile(`([^\s"']+)[/\\]node_modules[/\\]`),
	},
	{
		name: "project config",
		re:   regexp.MustCompile(`([^\s"']+)[/\\](?:vite\.config\.\w+|next\.config\.\w+|nuxt\.config\.\w+|angular\.json|package\.json)`),
	},
	{
		name: "source dir",
		re:   regexp.MustCompile(`([^\s"']+)[/\\](?:src|app|pages|components)(?:[/\\]|$|\s)`),
	},
}

// ExtractCwd guesses a project working directory from a full command
// line. Returns false when no pattern matches; that is the expected
// outcome for most non-dev-server processes.
func ExtractCwd(cmdline string) (string, bool) {
	if cmdline == "" {
		return "", false
	}
	for _, p := range cwdPatterns {
		if m := p.re.FindStringSubmatch(cmdline); m != nil && m[1] != "" {
			return m[1], true
		}
	}
	return "", false
}
