package logging

import (
	"bufio"
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"sync"
)

const (
	// MaxLineLength is the maximum length of a single log line before truncation.
	MaxLineLength = 4096

	// MaxBufferedLines is the number of recent lines kept for inspection.
	MaxBufferedLines = 100
)

// OutputHandler replays the stderr of finished runc commands into the log.
// Each line is logged at the level runc itself gave it and kept in a ring
// buffer of recent lines.
type OutputHandler struct {
	logger  *slog.Logger
	verbose bool

	// Circular buffer for recent lines
	buffer []string
	bufIdx int
	levels map[string]int
	mu     sync.Mutex
}

// NewOutputHandler creates an OutputHandler. Without verbose, lines runc
// logged below warning are dropped.
func NewOutputHandler(logger *slog.Logger, verbose bool) *OutputHandler {
	return &OutputHandler{
		logger:  logger,
		verbose: verbose,
		buffer:  make([]string, MaxBufferedLines),
		levels:  make(map[string]int),
	}
}

// HandleOutput processes the captured stderr of one command.
func (h *OutputHandler) HandleOutput(verb string, data []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	buf := make([]byte, MaxLineLength)
	scanner.Buffer(buf, MaxLineLength)
	scanner.Split(scanLinesTruncated)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			h.HandleLine(verb, line)
		}
	}
}

// HandleLine processes a single line of runc output.
func (h *OutputHandler) HandleLine(verb, line string) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength] + "...(truncated)"
	}

	name, level := classifyLine(line)

	h.mu.Lock()
	h.buffer[h.bufIdx] = line
	h.bufIdx = (h.bufIdx + 1) % MaxBufferedLines
	h.levels[name]++
	h.mu.Unlock()

	if !h.verbose && level < slog.LevelWarn {
		return
	}
	h.logger.Log(nil, level, "runc_output",
		"verb", verb,
		"runc_level", name,
		"line", line,
	)
}

var (
	textLevel   = regexp.MustCompile(`(?:^|\s)level=("?)(\w+)`)
	jsonLevel   = regexp.MustCompile(`"level"\s*:\s*"(\w+)"`)
	prefixLevel = regexp.MustCompile(`^(DEBU|INFO|WARN|ERRO|FATA|PANI)\[`)
)

// classifyLine extracts runc's own level from a logrus text, JSON or
// terminal-formatted line. Unmarked lines are treated as errors, since
// runc only writes bare text to stderr when it fails.
func classifyLine(line string) (string, slog.Level) {
	var name string
	if m := jsonLevel.FindStringSubmatch(line); m != nil {
		name = m[1]
	} else if m := textLevel.FindStringSubmatch(line); m != nil {
		name = m[2]
	} else if m := prefixLevel.FindStringSubmatch(line); m != nil {
		name = m[1]
	}

	switch strings.ToLower(name) {
	case "debug", "debu", "trace":
		return "debug", slog.LevelDebug
	case "info":
		return "info", slog.LevelInfo
	case "warning", "warn":
		return "warning", slog.LevelWarn
	case "error", "erro", "fatal", "fata", "panic", "pani":
		return "error", slog.LevelError
	default:
		return "unknown", slog.LevelError
	}
}

// RecentLines returns the most recent lines from the buffer.
func (h *OutputHandler) RecentLines(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n > MaxBufferedLines {
		n = MaxBufferedLines
	}

	lines := make([]string, 0, n)

	// Read from circular buffer in order
	for i := 0; i < n; i++ {
		idx := (h.bufIdx - n + i + MaxBufferedLines) % MaxBufferedLines
		if h.buffer[idx] != "" {
			lines = append(lines, h.buffer[idx])
		}
	}

	return lines
}

// LevelCounts returns how many lines were seen per runc level.
func (h *OutputHandler) LevelCounts() map[string]int {
	h.mu.Lock()
	defer h.mu.Unlock()

	counts := make(map[string]int, len(h.levels))
	for k, v := range h.levels {
		counts[k] = v
	}
	return counts
}

// scanLinesTruncated is bufio.ScanLines that cuts over-long lines instead
// of failing with bufio.ErrTooLong.
func scanLinesTruncated(data []byte, atEOF bool) (int, []byte, error) {
	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= MaxLineLength {
		return MaxLineLength, data[:MaxLineLength], nil
	}
	return advance, token, err
}
