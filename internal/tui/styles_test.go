package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
	"github.com/randomizedcoder/go-runc-monitor/internal/stats"
)

func TestStatusStyle(t *testing.T) {
	tests := []struct {
		status string
		want   lipgloss.TerminalColor
	}{
		{"running", colorSuccess},
		{"paused", colorWarning},
		{"pausing", colorWarning},
		{"created", colorInfo},
		{"stopped", colorTextMuted},
		{"unknown", colorError},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			if got := StatusStyle(tt.status).GetForeground(); got != tt.want {
				t.Errorf("StatusStyle(%q) foreground = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

func TestErrorRateStyle(t *testing.T) {
	tests := []struct {
		rate float64
		want lipgloss.TerminalColor
	}{
		{0, colorSuccess},
		{0.005, colorWarning},
		{0.5, colorError},
	}

	for _, tt := range tests {
		if got := ErrorRateStyle(tt.rate).GetForeground(); got != tt.want {
			t.Errorf("ErrorRateStyle(%v) foreground = %v, want %v", tt.rate, got, tt.want)
		}
	}
}

func TestFormatAge(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{-1, "-"},
		{0, "0s"},
		{59, "59s"},
		{60, "1m"},
		{3599, "59m"},
		{3600, "1h"},
		{86399, "23h"},
		{86400 * 3, "3d"},
	}

	for _, tt := range tests {
		if got := formatAge(tt.seconds); got != tt.want {
			t.Errorf("formatAge(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestContainerTable(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	out := ContainerTable([]runc.Container{
		{ID: "zeta", Pid: 2, Status: "running", Bundle: "/b/zeta", Created: now.Add(-2 * time.Hour)},
		{ID: "a-much-longer-id", Pid: 1, Status: "created", Bundle: "/b/a"},
	}, now)

	lines := strings.Split(out, "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want header + 2:\n%s", len(lines), out)
	}
	if !strings.Contains(lines[0], "BUNDLE") {
		t.Errorf("header = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "a-much-longer-id") {
		t.Errorf("rows not sorted by ID: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], "zeta            ") {
		t.Errorf("ID column not padded to the widest ID: %q", lines[2])
	}
	if !strings.Contains(lines[2], "2h") || !strings.Contains(lines[1], " - ") {
		t.Errorf("ages wrong:\n%s", out)
	}
}

func TestVerbTable(t *testing.T) {
	out := VerbTable([]stats.VerbStats{
		{Verb: "create", Count: 1500, Errors: 0, P50: 12 * time.Millisecond},
		{Verb: "kill", Count: 4, Errors: 1},
	})

	for _, want := range []string{"VERB", "create", "1.5K", "12 ms", "kill"} {
		if !strings.Contains(out, want) {
			t.Errorf("VerbTable missing %q:\n%s", want, out)
		}
	}
}

func TestRenderKeyValue(t *testing.T) {
	out := RenderKeyValue("Status", "running")
	if !strings.Contains(out, "Status:") || !strings.Contains(out, "running") {
		t.Errorf("RenderKeyValue = %q", out)
	}
}
