// Package classify derives a framework label from a process's command
// line and name.
package classify

import "strings"

// rule is one (pattern, label) pair of the classifier table.
type rule struct {
	pattern string
	label   string
}

// rules is matched in order against the lower-cased command line plus
// process name; the first substring hit wins. The order is significant:
// several patterns are substrings of other tools' tokens (for example
// "node" would shadow every node-based framework if tried first), so the
// table goes from most to least specific and must not be reordered.
var rules = []rule{
	{"vite", "Vite"},
	{"next", "Next.js"},
	{"nuxt", "Nuxt"},
	{"angular", "Angular"},
	{"ng ", "Angular"},
	{"react-scripts", "Create React App"},
	{"webpack-dev-server", "Webpack"},
	{"uvicorn", "FastAPI/Uvicorn"},
	{"gunicorn", "Gunicorn"},
	{"django", "Django"},
	{"flask", "Flask"},
	{"rails", "Rails"},
	{"dotnet", ".NET"},
	{"php", "PHP"},
	{"deno", "Deno"},
	{"go ", "Go"},
	{"go.exe", "Go"},
	{"bun", "Bun"},
	{"node", "Node.js"},
}

// Classify returns the framework label for a process, or ("", false) when
// nothing matches.
func Classify(cmdline, name string) (string, bool) {
	haystack := strings.ToLower(cmdline + " " + name)
	for _, r := range rules {
		if strings.Contains(haystack, r.pattern) {
			return r.label, true
		}
	}
	return "", false
}

// Rules exposes the table for exhaustive tests.
func Rules() []struct{ Pattern, Label string } {
	out := make([]struct{ Pattern, Label string }, len(rules))
	for i, r := range rules {
		out[i] = struct{ Pattern, Label string }{r.pattern, r.label}
	}
	return out
}
