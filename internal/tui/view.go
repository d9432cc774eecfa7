package tui

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
	"github.com/randomizedcoder/go-runc-monitor/internal/stats"
)

// =============================================================================
// Main View Rendering
// =============================================================================

// renderSummaryView renders the container dashboard.
func (m Model) renderSummaryView() string {
	sections := []string{
		m.renderHeader(),
		m.renderContainers(),
	}
	if m.lastErr != nil {
		sections = append(sections, statusError.Render("✗ list failed: "+m.lastErr.Error()))
	}
	sections = append(sections, m.renderFooter())

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// renderDetailedView renders per-verb command latency.
func (m Model) renderDetailedView() string {
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderHeader(),
		m.renderCommandStats(),
		m.renderFooter(),
	)
}

// =============================================================================
// Header
// =============================================================================

func (m Model) renderHeader() string {
	counts := m.StatusCounts()

	header := fmt.Sprintf(
		" runcmon │ Containers: %d │ Running: %d │ Paused: %d │ Elapsed: %s ",
		len(m.containers),
		counts["running"],
		counts["paused"],
		stats.FormatDuration(m.Elapsed()),
	)
	if m.inFlight != nil {
		header += fmt.Sprintf("│ In flight: %d ", m.inFlight.InFlight())
	}
	if m.rates != nil {
		header += fmt.Sprintf("│ Cmds: %s ", stats.FormatRate(m.rates.GetRates().Avg10s))
	}

	return headerStyle.Width(m.width).Render(header)
}

// =============================================================================
// Containers
// =============================================================================

func (m Model) renderContainers() string {
	var body string
	switch {
	case m.polls == 0:
		body = dimStyle.Render("loading...")
	case len(m.containers) == 0:
		body = dimStyle.Render("no containers")
	default:
		body = ContainerTable(m.containers, time.Now())
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		sectionHeaderStyle.Render("Containers"),
		body,
	)
	return boxStyle.Width(m.width - 2).Render(content)
}

// ContainerTable renders containers sorted by ID, one per row, with ages
// measured against now.
func ContainerTable(containers []runc.Container, now time.Time) string {
	sorted := make([]runc.Container, len(containers))
	copy(sorted, containers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	idWidth := len("ID")
	for _, c := range sorted {
		if len(c.ID) > idWidth {
			idWidth = len(c.ID)
		}
	}

	var b strings.Builder
	b.WriteString(tableHeaderStyle.Render(fmt.Sprintf("%-*s  %8s  %-8s  %5s  %s",
		idWidth, "ID", "PID", "STATUS", "AGE", "BUNDLE")))
	b.WriteString("\n")

	for _, c := range sorted {
		age := "-"
		if !c.Created.IsZero() {
			age = formatAge(now.Sub(c.Created).Seconds())
		}
		status := StatusStyle(c.Status).Render(fmt.Sprintf("%-8s", c.Status))
		fmt.Fprintf(&b, "%-*s  %8d  %s  %5s  %s\n", idWidth, c.ID, c.Pid, status, age, c.Bundle)
	}
	return strings.TrimRight(b.String(), "\n")
}

// =============================================================================
// Command Statistics
// =============================================================================

func (m Model) renderCommandStats() string {
	verbs := m.stats.Snapshot()

	var body string
	if len(verbs) == 0 {
		body = dimStyle.Render("no commands yet")
	} else {
		body = VerbTable(verbs)
	}

	parts := []string{sectionHeaderStyle.Render("Command Latency"), body}
	if m.rates != nil {
		r := m.rates.GetRates()
		parts = append(parts, "", RenderKeyValue("Throughput", fmt.Sprintf("%s (10s)  %s (1m)  %s (5m)",
			stats.FormatRate(r.Avg10s), stats.FormatRate(r.Avg60s), stats.FormatRate(r.Avg300s))))
	}

	content := lipgloss.JoinVertical(lipgloss.Left, parts...)
	return boxStyle.Width(m.width - 2).Render(content)
}

// VerbTable renders per-verb counts and percentiles, colouring the error
// column by rate.
func VerbTable(verbs []stats.VerbStats) string {
	var b strings.Builder
	b.WriteString(tableHeaderStyle.Render(fmt.Sprintf("%-10s  %8s  %8s  %9s  %9s  %9s",
		"VERB", "COUNT", "ERRORS", "P50", "P95", "P99")))
	b.WriteString("\n")

	for _, v := range verbs {
		errs := ErrorRateStyle(v.ErrorRate()).Render(fmt.Sprintf("%8d", v.Errors))
		fmt.Fprintf(&b, "%-10s  %8s  %s  %9s  %9s  %9s\n",
			v.Verb,
			stats.FormatNumber(v.Count),
			errs,
			stats.FormatMs(v.P50),
			stats.FormatMs(v.P95),
			stats.FormatMs(v.P99),
		)
	}
	return strings.TrimRight(b.String(), "\n")
}

// =============================================================================
// Footer
// =============================================================================

func (m Model) renderFooter() string {
	var parts []string

	if !m.lastUpdate.IsZero() {
		parts = append(parts, fmt.Sprintf("updated %s ago (took %s)",
			time.Since(m.lastUpdate).Truncate(time.Second), stats.FormatMs(m.lastTook)))
	}
	if m.metricsAddr != "" {
		parts = append(parts, "metrics: http://"+m.metricsAddr+"/metrics")
	}

	keys := "q: quit │ r: refresh"
	if m.stats != nil {
		keys += " │ d: toggle latency"
	}
	parts = append(parts, keys)

	return footerStyle.Render(strings.Join(parts, " │ "))
}
