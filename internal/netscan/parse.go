package netscan

import (
	"regexp"
	"strconv"
	"strings"
)

// The command-line listings are parsed with one regular expression per
// format, applied line by line to listening-state lines only. Parsing is
// kept separate from command execution so the parsers are testable on any
// platform.

// ssLineRE matches `ss -tlnp` output, e.g.
//
//	LISTEN 0 511 0.0.0.0:5173 0.0.0.0:* users:(("node",pid=4821,fd=23))
var ssLineRE = regexp.MustCompile(`^LISTEN\s+\S+\s+\S+\s+\S*:(\d+)\s+\S+\s+users:\(\("[^"]*",pid=(\d+),`)

func parseSS(output string) []Listener {
	var listeners []Listener
	for _, line := range strings.Split(output, "\n") {
		m := ssLineRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		port, _ := strconv.Atoi(m[1])
		pid, _ := strconv.Atoi(m[2])
		if port > 0 && pid > 0 {
			listeners = append(listeners, Listener{PID: int32(pid), Port: port, Protocol: "tcp"})
		}
	}
	return listeners
}

// lsofLineRE matches `lsof -nP -iTCP -sTCP:LISTEN` output, e.g.
//
//	node  4821 dev  23u  IPv4 0x1a2b  0t0  TCP *:5173 (LISTEN)
var lsofLineRE = regexp.MustCompile(`^\S+\s+(\d+)\s+.*TCP\s+\S*:(\d+)\s+\(LISTEN\)`)

func parseLsof(output string) []Listener {
	var listeners []Listener
	for _, line := range strings.Split(output, "\n") {
		m := lsofLineRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		pid, _ := strconv.Atoi(m[1])
		port, _ := strconv.Atoi(m[2])
		if port > 0 && pid > 0 {
			listeners = append(listeners, Listener{PID: int32(pid), Port: port, Protocol: "tcp"})
		}
	}
	return listeners
}

// netstatLineRE matches `netstat -ano` output, e.g.
//
//	TCP  0.0.0.0:3000  0.0.0.0:0  LISTENING  4821
var netstatLineRE = regexp.MustCompile(`^TCP\s+\S*:(\d+)\s+\S+\s+LISTENING\s+(\d+)`)

func parseNetstat(output string) []Listener {
	var listeners []Listener
	for _, line := range strings.Split(output, "\n") {
		m := netstatLineRE.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		port, _ := strconv.Atoi(m[1])
		pid, _ := strconv.Atoi(m[2])
		if port > 0 && pid > 0 {
			listeners = append(listeners, Listener{PID: int32(pid), Port: port, Protocol: "tcp"})
		}
	}
	return listeners
}
