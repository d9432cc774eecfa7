// Package main provides the runcmon CLI entry point.
//
// runcmon drives the runc container runtime. By default every runc command
// is spawned through one shared process monitor, so many commands may be in
// flight at once; --sync switches to plain blocking execution.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-runc-monitor/internal/config"
	"github.com/randomizedcoder/go-runc-monitor/internal/logging"
	"github.com/randomizedcoder/go-runc-monitor/internal/orchestrator"
	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
)

// version is set at build time via ldflags:
//
//	go build -ldflags "-X main.version=1.0.0" ./cmd/runcmon
var version = "dev"

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root, a := newRootCommand()
	defer func() {
		if err := a.teardown(); err != nil {
			fmt.Fprintf(stderr, "Error: shutdown: %v\n", err)
		}
	}()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return 0
}

// exitCode maps a failed runc command to runc's own status, everything
// else to 1.
func exitCode(err error) int {
	var failed *runc.CommandFailedError
	if errors.As(err, &failed) && failed.Status.ShellCode() > 0 {
		return failed.Status.ShellCode()
	}
	return 1
}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	configPath string

	cfg    *config.Config
	logger *slog.Logger
	closer io.Closer
	orch   *orchestrator.Orchestrator
}

func (a *app) runtime() orchestrator.Runtime {
	return a.orch.Runtime()
}

func newRootCommand() (*cobra.Command, *app) {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "runcmon",
		Short: "runcmon - concurrent runc driver",
		Long: `runcmon invokes the runc container runtime for container lifecycle
operations. Commands run through a shared process monitor that reaps every
runc child exactly once, so status queries and lifecycle verbs may be issued
concurrently. Use --sync for plain blocking execution.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	config.RegisterFlags(cmd.PersistentFlags())
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "path to a YAML config file")

	cmd.AddCommand(
		newCreateCmd(a),
		newStartCmd(a),
		newRunCmd(a),
		newDeleteCmd(a),
		newKillCmd(a),
		newPauseCmd(a),
		newResumeCmd(a),
		newExecCmd(a),
		newUpdateCmd(a),
		newListCmd(a),
		newPsCmd(a),
		newStateCmd(a),
		newStatsCmd(a),
		newVersionCmd(a),
		newWatchCmd(a),
		newPreflightCmd(a),
	)

	return cmd, a
}

// setup loads the configuration and builds the orchestrator.
func (a *app) setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(a.configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}
	a.cfg = cfg

	opts := logging.Options{
		Format:     cfg.Log.Format,
		Level:      cfg.Log.Level,
		Verbose:    cfg.Log.Verbose,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAge,
	}
	if cmd.Name() == "watch" && cfg.Log.File == "" {
		// Log lines would tear the full-screen view.
		a.logger = logging.NewLoggerWithWriter(io.Discard, cfg.Log.Format, cfg.Log.Level)
	} else {
		a.logger, a.closer = logging.NewLoggerWithOptions(opts)
	}
	logging.SetDefault(a.logger)

	orch, err := orchestrator.New(cfg, a.logger, version)
	if err != nil {
		return err
	}
	a.orch = orch

	if err := orch.Start(); err != nil {
		return err
	}

	a.logger.Debug("runcmon_ready",
		"version", version,
		"command", cmd.Name(),
		"sync", cfg.Sync,
		"metrics_addr", cfg.MetricsAddr,
	)
	return nil
}

// teardown stops the orchestrator and closes the log file. It runs after
// every invocation, including failed ones.
func (a *app) teardown() error {
	var errs []error
	if a.orch != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		errs = append(errs, a.orch.Shutdown(ctx))
	}
	if a.closer != nil {
		errs = append(errs, a.closer.Close())
	}
	return errors.Join(errs...)
}
