// Package metrics provides Prometheus metrics for runcmon.
//
// Two groups of series are exported:
//   - Process metrics, fed by the monitor callbacks (starts, exits, in-flight)
//   - Command metrics, fed as a runc.Observer (per-verb counts and latency)
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/go-runc-monitor/internal/process"
	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
)

const namespace = "runcmon"

// Command results used for the "result" label.
const (
	ResultOK      = "ok"
	ResultFailed  = "failed"
	ResultTimeout = "timeout"
	ResultError   = "error"
)

// Exit outcomes used for the "outcome" label.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeSignal  = "signal"
)

// Collector owns every runcmon series. Each Collector registers its own
// metric instances, so several can coexist on separate registries.
type Collector struct {
	info *prometheus.GaugeVec

	// Process metrics
	processStarts   prometheus.Counter
	processExits    *prometheus.CounterVec
	spawnErrors     prometheus.Counter
	inFlight        prometheus.Gauge
	processLifetime prometheus.Histogram

	// Command metrics
	commands        *prometheus.CounterVec
	commandDuration *prometheus.HistogramVec

	startTime time.Time

	mu               sync.Mutex
	active           int
	peakInFlight     int
	totalStarts      int64
	totalSpawnErrors int64
	exitCodes        map[int]int64
}

// CollectorConfig holds configuration for the collector.
type CollectorConfig struct {
	Version     string
	RuncCommand string
}

// NewCollector creates a collector on the default registry.
func NewCollector(cfg CollectorConfig) *Collector {
	return NewCollectorWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector with a custom registry.
// Useful for testing.
func NewCollectorWithRegistry(cfg CollectorConfig, registry prometheus.Registerer) *Collector {
	c := &Collector{
		info: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "info",
				Help:      "Information about the running monitor (value always 1)",
			},
			[]string{"version", "runc"},
		),
		processStarts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "process_starts_total",
			Help:      "Processes spawned through the monitor",
		}),
		processExits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "process_exits_total",
				Help:      "Processes reaped by the monitor, by outcome",
			},
			[]string{"outcome"},
		),
		spawnErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawn_errors_total",
			Help:      "Processes the OS refused to create",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "processes_in_flight",
			Help:      "Processes started but not yet reaped",
		}),
		processLifetime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_lifetime_seconds",
			Help:      "Time from spawn to reap",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		}),
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runc_commands_total",
				Help:      "Completed runc commands, by verb and result",
			},
			[]string{"verb", "result"},
		),
		commandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "runc_command_duration_seconds",
				Help:      "Wall time of runc commands, by verb",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"verb"},
		),
		startTime: time.Now(),
		exitCodes: make(map[int]int64),
	}

	registry.MustRegister(
		c.info,
		c.processStarts,
		c.processExits,
		c.spawnErrors,
		c.inFlight,
		c.processLifetime,
		c.commands,
		c.commandDuration,
	)

	c.info.WithLabelValues(cfg.Version, cfg.RuncCommand).Set(1)

	return c
}

// =============================================================================
// Process events
// =============================================================================

// Callbacks returns monitor callbacks that feed this collector.
// next, if set, is chained after each metric update.
func (c *Collector) Callbacks(next process.Callbacks) process.Callbacks {
	return process.Callbacks{
		OnStart: func(pid int) {
			c.ProcessStarted()
			if next.OnStart != nil {
				next.OnStart(pid)
			}
		},
		OnExit: func(exit process.Exit, uptime time.Duration) {
			c.RecordExit(exit.Status, uptime)
			if next.OnExit != nil {
				next.OnExit(exit, uptime)
			}
		},
		OnSpawnError: func(err error) {
			c.SpawnFailed()
			if next.OnSpawnError != nil {
				next.OnSpawnError(err)
			}
		},
	}
}

// ProcessStarted records a spawn.
func (c *Collector) ProcessStarted() {
	c.processStarts.Inc()
	c.inFlight.Inc()

	c.mu.Lock()
	c.totalStarts++
	c.active++
	if c.active > c.peakInFlight {
		c.peakInFlight = c.active
	}
	c.mu.Unlock()
}

// RecordExit records a reaped process.
func (c *Collector) RecordExit(status process.ExitStatus, uptime time.Duration) {
	c.processExits.WithLabelValues(ExitOutcome(status)).Inc()
	c.processLifetime.Observe(uptime.Seconds())
	c.inFlight.Dec()

	c.mu.Lock()
	c.exitCodes[status.ShellCode()]++
	// May briefly go negative when a fast exit is reaped before OnStart runs.
	c.active--
	c.mu.Unlock()
}

// SpawnFailed records a process the OS refused to create.
func (c *Collector) SpawnFailed() {
	c.spawnErrors.Inc()

	c.mu.Lock()
	c.totalSpawnErrors++
	c.mu.Unlock()
}

// ExitOutcome categorizes an exit status for the "outcome" label.
func ExitOutcome(s process.ExitStatus) string {
	switch {
	case s.Success():
		return OutcomeSuccess
	case s.Signaled():
		return OutcomeSignal
	default:
		return OutcomeError
	}
}

// =============================================================================
// Command events
// =============================================================================

// ObserveCommand implements runc.Observer.
func (c *Collector) ObserveCommand(verb string, d time.Duration, err error) {
	c.commands.WithLabelValues(verb, CommandResult(err)).Inc()
	c.commandDuration.WithLabelValues(verb).Observe(d.Seconds())
}

// CommandResult categorizes a command error for the "result" label.
func CommandResult(err error) string {
	var failed *runc.CommandFailedError
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ResultTimeout
	case errors.As(err, &failed):
		return ResultFailed
	default:
		return ResultError
	}
}

var _ runc.Observer = (*Collector)(nil)

// =============================================================================
// Summary Generation
// =============================================================================

// Summary holds the process totals printed when the monitor stops.
type Summary struct {
	Duration     time.Duration
	TotalStarts  int64
	SpawnErrors  int64
	PeakInFlight int
	InFlight     int
	ExitCodes    map[int]int64
}

// GenerateSummary creates a summary of the run.
func (c *Collector) GenerateSummary() *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := &Summary{
		Duration:     time.Since(c.startTime),
		TotalStarts:  c.totalStarts,
		SpawnErrors:  c.totalSpawnErrors,
		PeakInFlight: c.peakInFlight,
		InFlight:     c.active,
		ExitCodes:    make(map[int]int64, len(c.exitCodes)),
	}
	for code, count := range c.exitCodes {
		s.ExitCodes[code] = count
	}
	return s
}

// PeakInFlight returns the highest number of concurrently live processes.
func (c *Collector) PeakInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peakInFlight
}

// TotalStarts returns the total number of spawned processes.
func (c *Collector) TotalStarts() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalStarts
}
