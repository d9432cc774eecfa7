package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
	"github.com/randomizedcoder/go-runc-monitor/internal/stats"
	"github.com/randomizedcoder/go-runc-monitor/internal/timeseries"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent when the refresh interval elapses.
type TickMsg time.Time

// ContainersMsg carries the result of one list poll.
type ContainersMsg struct {
	Containers []runc.Container
	Err        error
	Took       time.Duration
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Sources
// =============================================================================

// Lister lists containers. *runc.Client and *runc.AsyncClient satisfy it.
type Lister interface {
	List(ctx context.Context) ([]runc.Container, error)
}

// StatsSource provides per-verb command statistics. *stats.Recorder
// satisfies it.
type StatsSource interface {
	Snapshot() []stats.VerbStats
}

// RateSource tracks command throughput. *timeseries.RateTracker satisfies
// it; the model records one sample per poll.
type RateSource interface {
	RecordSample()
	GetRates() timeseries.Rates
}

// InFlightSource reports spawned-but-unreaped processes. *process.Monitor
// satisfies it.
type InFlightSource interface {
	InFlight() int
}

// =============================================================================
// Model
// =============================================================================

// Config holds TUI configuration.
type Config struct {
	Lister      Lister
	Stats       StatsSource    // optional
	Rates       RateSource     // optional
	InFlight    InFlightSource // optional
	Interval    time.Duration
	Timeout     time.Duration // per poll; defaults to Interval
	MetricsAddr string
}

// Model is the watch view: it polls Lister every Interval and renders the
// container table.
type Model struct {
	lister      Lister
	stats       StatsSource
	rates       RateSource
	inFlight    InFlightSource
	backoff     *pollBackoff
	interval    time.Duration
	timeout     time.Duration
	metricsAddr string

	containers []runc.Container
	lastErr    error
	lastTook   time.Duration
	polls      int
	polling    bool

	startTime    time.Time
	lastUpdate   time.Time
	detailedView bool

	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Second
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = interval
	}

	return Model{
		lister:      cfg.Lister,
		stats:       cfg.Stats,
		rates:       cfg.Rates,
		inFlight:    cfg.InFlight,
		backoff:     newPollBackoff(interval),
		interval:    interval,
		timeout:     timeout,
		metricsAddr: cfg.MetricsAddr,
		startTime:   time.Now(),
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init starts the first poll.
func (m Model) Init() tea.Cmd {
	return m.pollCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "d":
			m.detailedView = !m.detailedView
			return m, nil
		case "r":
			if m.polling {
				return m, nil
			}
			m.polling = true
			return m, m.pollCmd()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		if m.polling {
			return m, nil
		}
		m.polling = true
		return m, m.pollCmd()

	case ContainersMsg:
		m.polling = false
		m.polls++
		m.lastTook = msg.Took
		m.lastUpdate = time.Now()
		m.lastErr = msg.Err
		if m.rates != nil {
			m.rates.RecordSample()
		}
		if msg.Err != nil {
			return m, tickCmd(m.backoff.Next())
		}
		m.backoff.Reset()
		m.containers = msg.Containers
		return m, tickCmd(m.interval)

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	if m.detailedView && m.stats != nil {
		return m.renderDetailedView()
	}
	return m.renderSummaryView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after d.
func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// pollCmd lists containers off the update loop.
func (m Model) pollCmd() tea.Cmd {
	lister, timeout := m.lister, m.timeout
	return func() tea.Msg {
		if lister == nil {
			return ContainersMsg{Err: errNoLister}
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		start := time.Now()
		cs, err := lister.List(ctx)
		return ContainersMsg{Containers: cs, Err: err, Took: time.Since(start)}
	}
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the watch started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Containers returns the containers from the last successful poll.
func (m Model) Containers() []runc.Container {
	return m.containers
}

// LastError returns the error of the last poll, if it failed.
func (m Model) LastError() error {
	return m.lastErr
}

// StatusCounts counts containers by status.
func (m Model) StatusCounts() map[string]int {
	counts := make(map[string]int)
	for _, c := range m.containers {
		counts[c.Status]++
	}
	return counts
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}
