package server

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"
	"sync/atomic"
)

// remoteAdminPattern matches the line the server prints once its remote
// administration port accepts connections, with any number of bracketed
// prefixes such as "[12:00:00] [Info]".
var remoteAdminPattern = regexp.MustCompile(`^\s*(?:\[[^\]]*\]\s*)*Remote Administration interface is listening on port (?:\S+:)?(\d+)`)

const maxLineSize = 1024 * 1024

// LogScanner forwards server output lines and fires once when the remote
// administration port comes up.
type LogScanner struct {
	onLine    func(line string)
	onTrigger func(port int)
	fired     atomic.Bool
}

// NewLogScanner creates a scanner for one process lifetime.
func NewLogScanner(onLine func(string), onTrigger func(int)) *LogScanner {
	return &LogScanner{onLine: onLine, onTrigger: onTrigger}
}

// Feed handles a single output line. Blank lines are dropped.
func (s *LogScanner) Feed(line string) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return
	}

	if s.onLine != nil {
		s.onLine(line)
	}

	if s.fired.Load() {
		return
	}
	match := remoteAdminPattern.FindStringSubmatch(line)
	if match == nil {
		return
	}
	if !s.fired.CompareAndSwap(false, true) {
		return
	}

	port, _ := strconv.Atoi(match[1])
	if s.onTrigger != nil {
		s.onTrigger(port)
	}
}

// Triggered reports whether the trigger line has been seen.
func (s *LogScanner) Triggered() bool {
	return s.fired.Load()
}

// Run feeds every line of r until EOF or a read error.
func (s *LogScanner) Run(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		s.Feed(scanner.Text())
	}
	return scanner.Err()
}
