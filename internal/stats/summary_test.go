package stats

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Formatting helpers
// =============================================================================

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"duration zero", FormatDuration(0), "00:00:00"},
		{"duration mixed", FormatDuration(2*time.Hour + 30*time.Minute + 45*time.Second), "02:30:45"},
		{"duration sub-second", FormatDuration(500 * time.Millisecond), "00:00:00"},
		{"number small", FormatNumber(999), "999"},
		{"number K", FormatNumber(1500), "1.5K"},
		{"number M", FormatNumber(1_500_000), "1.5M"},
		{"bytes", FormatBytes(123), "123 B"},
		{"bytes KB", FormatBytes(1500), "1.50 KB"},
		{"bytes MB", FormatBytes(1_048_576), "1.05 MB"},
		{"bytes GB", FormatBytes(1_500_000_000), "1.50 GB"},
		{"ms", FormatMs(100 * time.Millisecond), "100 ms"},
		{"ms sub", FormatMs(500 * time.Microsecond), "500 µs"},
		{"ms zero", FormatMs(0), "0 ms"},
		{"rate slow", FormatRate(0.5), "0.50/s"},
		{"rate", FormatRate(10), "10.0/s"},
		{"rate K", FormatRate(1500), "1.5K/s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestExitCodeLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "(clean)"},
		{1, "(error)"},
		{137, "(SIGKILL)"},
		{143, "(SIGTERM)"},
		{2, ""},
		{130, ""},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, exitCodeLabel(tt.code))
		})
	}
}

// =============================================================================
// FormatExitSummary
// =============================================================================

func TestFormatExitSummary_Empty(t *testing.T) {
	out := FormatExitSummary(nil, SummaryConfig{Duration: 90 * time.Second})

	assert.Contains(t, out, "runcmon Exit Summary")
	assert.Contains(t, out, "00:01:30")
	assert.NotContains(t, out, "Command Latency")
	assert.NotContains(t, out, "Exit Codes")
	assert.NotContains(t, out, "Spawn Errors")
	assert.NotContains(t, out, "Metrics endpoint")
}

func TestFormatExitSummary_Full(t *testing.T) {
	verbs := []VerbStats{
		{Verb: "create", Count: 10, P50: 20 * time.Millisecond, P99: 40 * time.Millisecond, Max: 41 * time.Millisecond},
		{Verb: "state", Count: 2000, Errors: 3, P50: 800 * time.Microsecond},
	}
	cfg := SummaryConfig{
		Duration:     10 * time.Second,
		MetricsAddr:  "127.0.0.1:17092",
		TotalStarts:  2010,
		SpawnErrors:  1,
		PeakInFlight: 16,
		ExitCodes:    map[int]int64{137: 1, 0: 2006, 1: 3},
	}

	out := FormatExitSummary(verbs, cfg)

	assert.Contains(t, out, "Processes Started:      2010")
	assert.Contains(t, out, "Peak In Flight:         16")
	assert.Contains(t, out, "Spawn Errors:           1")
	assert.Contains(t, out, "Command Latency")
	assert.Contains(t, out, "2.0K")
	assert.Contains(t, out, "200.0/s")
	assert.Contains(t, out, "800 µs")
	assert.Contains(t, out, "(SIGKILL)")
	assert.Contains(t, out, "http://127.0.0.1:17092/metrics")

	// Exit codes are printed in ascending order.
	clean := strings.Index(out, "(clean)")
	errored := strings.Index(out, "(error)")
	killed := strings.Index(out, "(SIGKILL)")
	assert.True(t, clean < errored && errored < killed, "exit codes out of order:\n%s", out)
}

func TestFormatVerbTable_NoElapsed(t *testing.T) {
	out := FormatVerbTable([]VerbStats{{Verb: "kill", Count: 1}}, 0)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.Contains(t, lines[0], "Verb")
	assert.Contains(t, lines[2], "kill")
	assert.Contains(t, lines[2], " - ")
}
