package stats

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

const (
	ruleHeavy = "═══════════════════════════════════════════════════════════════════════════════\n"
	ruleLight = "───────────────────────────────────────────────────────────────────────────────\n"
)

// SummaryConfig holds the process totals shown alongside command stats.
type SummaryConfig struct {
	// Duration is the total run duration
	Duration time.Duration

	// MetricsAddr is the Prometheus metrics endpoint address
	MetricsAddr string

	// TotalStarts, SpawnErrors and PeakInFlight come from metrics.Collector
	TotalStarts  int64
	SpawnErrors  int64
	PeakInFlight int

	// ExitCodes maps shell-style exit codes (128+signal for signal exits)
	// to counts
	ExitCodes map[int]int64
}

// FormatExitSummary formats command and process statistics for display
// when runcmon exits.
func FormatExitSummary(verbs []VerbStats, cfg SummaryConfig) string {
	var b strings.Builder

	b.WriteString("\n")
	b.WriteString(ruleHeavy)
	b.WriteString("                            runcmon Exit Summary\n")
	b.WriteString(ruleHeavy + "\n")

	fmt.Fprintf(&b, "Run Duration:           %s\n", FormatDuration(cfg.Duration))
	fmt.Fprintf(&b, "Processes Started:      %d\n", cfg.TotalStarts)
	fmt.Fprintf(&b, "Peak In Flight:         %d\n", cfg.PeakInFlight)
	if cfg.SpawnErrors > 0 {
		fmt.Fprintf(&b, "Spawn Errors:           %d\n", cfg.SpawnErrors)
	}
	b.WriteString("\n")

	if len(verbs) > 0 {
		section(&b, "Command Latency")
		b.WriteString(FormatVerbTable(verbs, cfg.Duration))
		b.WriteString("\n")
	}

	if len(cfg.ExitCodes) > 0 {
		section(&b, "Exit Codes")

		codes := make([]int, 0, len(cfg.ExitCodes))
		for code := range cfg.ExitCodes {
			codes = append(codes, code)
		}
		sort.Ints(codes)

		for _, code := range codes {
			fmt.Fprintf(&b, "  %3d %-16s %d\n", code, exitCodeLabel(code), cfg.ExitCodes[code])
		}
		b.WriteString("\n")
	}

	if cfg.MetricsAddr != "" {
		fmt.Fprintf(&b, "Metrics endpoint was: http://%s/metrics\n", cfg.MetricsAddr)
	}

	b.WriteString(ruleHeavy)
	return b.String()
}

// FormatVerbTable renders one row per verb. The rate column is omitted
// when elapsed is zero.
func FormatVerbTable(verbs []VerbStats, elapsed time.Duration) string {
	var b strings.Builder

	fmt.Fprintf(&b, "  %-12s %8s %8s %10s %10s %10s %10s %10s\n",
		"Verb", "Count", "Errors", "Rate", "P50", "P95", "P99", "Max")
	b.WriteString("  " + strings.Repeat("─", 84) + "\n")

	for _, v := range verbs {
		rate := "-"
		if elapsed > 0 {
			rate = FormatRate(float64(v.Count) / elapsed.Seconds())
		}
		fmt.Fprintf(&b, "  %-12s %8s %8d %10s %10s %10s %10s %10s\n",
			v.Verb,
			FormatNumber(v.Count),
			v.Errors,
			rate,
			FormatMs(v.P50),
			FormatMs(v.P95),
			FormatMs(v.P99),
			FormatMs(v.Max),
		)
	}
	return b.String()
}

func section(b *strings.Builder, title string) {
	b.WriteString(ruleLight)
	pad := (79 - len(title)) / 2
	if pad < 0 {
		pad = 0
	}
	b.WriteString(strings.Repeat(" ", pad) + title + "\n")
	b.WriteString(ruleLight + "\n")
}

// exitCodeLabel returns a human-readable label for common exit codes.
func exitCodeLabel(code int) string {
	switch code {
	case 0:
		return "(clean)"
	case 1:
		return "(error)"
	case 137:
		return "(SIGKILL)"
	case 143:
		return "(SIGTERM)"
	default:
		return ""
	}
}

// =============================================================================
// Formatting Helper Functions (exported for reuse)
// =============================================================================

// FormatDuration formats a duration as HH:MM:SS.
func FormatDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatNumber formats a number with K/M suffixes for readability.
func FormatNumber(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatBytes formats bytes with KB/MB/GB suffixes.
func FormatBytes(n uint64) string {
	if n >= 1_000_000_000 {
		return fmt.Sprintf("%.2f GB", float64(n)/1_000_000_000)
	}
	if n >= 1_000_000 {
		return fmt.Sprintf("%.2f MB", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.2f KB", float64(n)/1_000)
	}
	return fmt.Sprintf("%d B", n)
}

// FormatMs formats a duration as milliseconds.
func FormatMs(d time.Duration) string {
	ms := d.Milliseconds()
	if ms == 0 && d > 0 {
		// Sub-millisecond, show microseconds
		return fmt.Sprintf("%d µs", d.Microseconds())
	}
	return fmt.Sprintf("%d ms", ms)
}

// FormatRate formats a rate with appropriate precision.
func FormatRate(rate float64) string {
	if rate >= 1000 {
		return fmt.Sprintf("%.1fK/s", rate/1000)
	}
	if rate >= 1 {
		return fmt.Sprintf("%.1f/s", rate)
	}
	return fmt.Sprintf("%.2f/s", rate)
}
