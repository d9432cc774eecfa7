// Package orchestrator assembles runcmon's components from a Config: the
// process monitor, the runc client, metrics, command statistics and the
// watch view.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/randomizedcoder/go-runc-monitor/internal/config"
	"github.com/randomizedcoder/go-runc-monitor/internal/logging"
	"github.com/randomizedcoder/go-runc-monitor/internal/metrics"
	"github.com/randomizedcoder/go-runc-monitor/internal/preflight"
	"github.com/randomizedcoder/go-runc-monitor/internal/process"
	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
	"github.com/randomizedcoder/go-runc-monitor/internal/stats"
	"github.com/randomizedcoder/go-runc-monitor/internal/timeseries"
	"github.com/randomizedcoder/go-runc-monitor/internal/tui"
)

// Runtime is the verb surface shared by runc.Client and runc.AsyncClient.
type Runtime interface {
	Create(ctx context.Context, id, bundle string, opts *runc.CreateOpts) (runc.Response, error)
	Start(ctx context.Context, id string) (runc.Response, error)
	Run(ctx context.Context, id, bundle string, opts *runc.CreateOpts) (runc.Response, error)
	Delete(ctx context.Context, id string, opts *runc.DeleteOpts) error
	Kill(ctx context.Context, id string, sig syscall.Signal, opts *runc.KillOpts) error
	Pause(ctx context.Context, id string) error
	Resume(ctx context.Context, id string) error
	Exec(ctx context.Context, id string, spec *specs.Process, opts *runc.ExecOpts) error
	Update(ctx context.Context, id string, resources *specs.LinuxResources) error
	List(ctx context.Context) ([]runc.Container, error)
	Ps(ctx context.Context, id string) ([]int, error)
	State(ctx context.Context, id string) (*runc.Container, error)
	Stats(ctx context.Context, id string) (*runc.Stats, error)
	Version(ctx context.Context) (runc.Version, error)
	CommandString(args ...string) string
}

var (
	_ Runtime = (*runc.Client)(nil)
	_ Runtime = (*runc.AsyncClient)(nil)
)

// Orchestrator owns every long-lived component of one runcmon invocation.
type Orchestrator struct {
	config *config.Config
	logger *slog.Logger

	monitor       *process.Monitor // nil with Sync
	runtime       Runtime
	registry      *prometheus.Registry
	metrics       *metrics.Collector
	metricsServer *metrics.Server // nil when MetricsAddr is empty
	recorder      *stats.Recorder
	rates         *timeseries.RateTracker
	output        *logging.OutputHandler

	startTime time.Time
}

// New builds the components described by cfg. The runc binary must be
// resolvable; nothing is started until Start.
func New(cfg *config.Config, logger *slog.Logger, version string) (*Orchestrator, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	collector := metrics.NewCollectorWithRegistry(metrics.CollectorConfig{
		Version:     version,
		RuncCommand: cfg.Runc.Command,
	}, registry)
	recorder := stats.NewRecorder()
	rates := timeseries.NewRateTracker()
	output := logging.NewOutputHandler(logger, cfg.Log.Verbose)

	o := &Orchestrator{
		config:    cfg,
		logger:    logger,
		registry:  registry,
		metrics:   collector,
		recorder:  recorder,
		rates:     rates,
		output:    output,
		startTime: time.Now(),
	}

	rcfg := &runc.Config{
		Command:       cfg.Runc.Command,
		Root:          cfg.Runc.Root,
		Debug:         cfg.Runc.Debug,
		Log:           cfg.Runc.Log,
		LogFormat:     runc.LogFormat(cfg.Runc.LogFormat),
		SystemdCgroup: cfg.Runc.SystemdCgroup,
		Rootless:      cfg.Runc.RootlessMode(),
		SetPgid:       cfg.Runc.SetPgid,
		Timeout:       cfg.Runc.Timeout,
		WaitDelay:     cfg.Runc.WaitDelay,
		Logger:        logger,
		Output:        output,
		Observer:      runc.Observers{collector, recorder, rates},
	}

	if cfg.Sync {
		client, err := runc.NewClient(rcfg)
		if err != nil {
			return nil, err
		}
		o.runtime = client
	} else {
		o.monitor = process.NewMonitor(process.Config{
			Logger:    logger,
			Callbacks: collector.Callbacks(process.Callbacks{}),
		})
		client, err := runc.NewAsyncClient(rcfg, o.monitor)
		if err != nil {
			_ = o.monitor.Shutdown(context.Background())
			return nil, err
		}
		o.runtime = client
	}

	if cfg.MetricsAddr != "" {
		o.metricsServer = metrics.NewServerWithGatherer(cfg.MetricsAddr, registry, logger)
	}

	return o, nil
}

// Start starts the metrics server, if one is configured.
func (o *Orchestrator) Start() error {
	if o.metricsServer == nil {
		return nil
	}
	if err := o.metricsServer.Start(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}
	return nil
}

// Shutdown stops the monitor and the metrics server.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	var errs []error

	if o.monitor != nil {
		if err := o.monitor.Shutdown(ctx); err != nil {
			o.logger.Warn("monitor_shutdown_incomplete", "error", err)
			errs = append(errs, err)
		}
	}

	if o.metricsServer != nil {
		if err := o.metricsServer.Shutdown(ctx); err != nil {
			o.logger.Warn("metrics_server_shutdown_error", "error", err)
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Preflight runs the startup checks against this orchestrator's runtime.
func (o *Orchestrator) Preflight(ctx context.Context, concurrency int) *preflight.Result {
	return preflight.RunAll(ctx, preflight.Options{
		Runc:        o.runtime,
		Root:        o.config.Runc.Root,
		Concurrency: concurrency,
	})
}

// Watch runs the live container view until the user quits or ctx ends.
func (o *Orchestrator) Watch(ctx context.Context, opts ...tea.ProgramOption) error {
	cfg := tui.Config{
		Lister:      o.runtime,
		Stats:       o.recorder,
		Rates:       o.rates,
		Interval:    o.config.WatchInterval,
		Timeout:     o.config.Runc.Timeout,
		MetricsAddr: o.config.MetricsAddr,
	}
	if o.monitor != nil {
		cfg.InFlight = o.monitor
	}

	opts = append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)
	p := tea.NewProgram(tui.New(cfg), opts...)

	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Summary renders the exit summary of everything run so far.
func (o *Orchestrator) Summary() string {
	s := o.metrics.GenerateSummary()
	return stats.FormatExitSummary(o.recorder.Snapshot(), stats.SummaryConfig{
		Duration:     time.Since(o.startTime),
		MetricsAddr:  o.config.MetricsAddr,
		TotalStarts:  s.TotalStarts,
		SpawnErrors:  s.SpawnErrors,
		PeakInFlight: s.PeakInFlight,
		ExitCodes:    s.ExitCodes,
	})
}

// Runtime returns the runc client.
func (o *Orchestrator) Runtime() Runtime {
	return o.runtime
}

// Monitor returns the process monitor, or nil with Sync.
func (o *Orchestrator) Monitor() *process.Monitor {
	return o.monitor
}

// Metrics returns the metrics collector.
func (o *Orchestrator) Metrics() *metrics.Collector {
	return o.metrics
}

// Registry returns the Prometheus registry holding every runcmon series.
func (o *Orchestrator) Registry() *prometheus.Registry {
	return o.registry
}

// Recorder returns the command statistics recorder.
func (o *Orchestrator) Recorder() *stats.Recorder {
	return o.recorder
}

// Rates returns the command throughput tracker.
func (o *Orchestrator) Rates() *timeseries.RateTracker {
	return o.rates
}

// Output returns the runc output handler.
func (o *Orchestrator) Output() *logging.OutputHandler {
	return o.output
}
