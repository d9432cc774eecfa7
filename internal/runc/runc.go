// Package runc drives the runc binary through the process package.
//
// Client runs every verb synchronously with process.Launcher. AsyncClient
// runs them through a shared process.Monitor with a default timeout.
// Both classify completions the same way.
package runc

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/randomizedcoder/go-runc-monitor/internal/logging"
	"github.com/randomizedcoder/go-runc-monitor/internal/process"
)

// LogFormat is the format of runc's own log output.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// DefaultCommand is the runc binary looked up in PATH when none is configured.
const DefaultCommand = "runc"

// DefaultTimeout bounds each AsyncClient command.
const DefaultTimeout = 5 * time.Second

// DefaultWaitDelay bounds how long output capture outlives runc. A container
// started with captured stdio inherits the pipes and never closes them.
const DefaultWaitDelay = time.Second

// notifySocketEnv makes runc talk to systemd; it must only be set when runc
// is started by systemd itself.
const notifySocketEnv = "NOTIFY_SOCKET"

// Config holds the global runc options applied to every verb.
type Config struct {
	// Command is the runc binary name or path.
	Command string

	// Root is the runc state directory (--root).
	Root string

	// Debug enables runc debug logging (--debug).
	Debug bool

	// Log is the runc log file (--log).
	Log string

	// LogFormat is the runc log format (--log-format). Always passed.
	LogFormat LogFormat

	// SystemdCgroup enables the systemd cgroup driver (--systemd-cgroup).
	SystemdCgroup bool

	// Rootless sets --rootless; nil lets runc auto-detect.
	Rootless *bool

	// SetPgid starts runc in its own process group.
	SetPgid bool

	// Timeout bounds each command. Zero means no timeout.
	Timeout time.Duration

	// WaitDelay bounds output capture after runc exits. Zero means
	// DefaultWaitDelay, negative waits for EOF.
	WaitDelay time.Duration

	// Logger receives command events. Defaults to slog.Default().
	Logger *slog.Logger

	// Output replays runc's stderr into the log. Optional.
	Output *logging.OutputHandler

	// Observer is told the outcome and duration of every command. Optional.
	Observer Observer
}

// DefaultConfig returns a Config with runc's defaults.
func DefaultConfig() *Config {
	return &Config{
		Command:   DefaultCommand,
		LogFormat: LogFormatText,
		Timeout:   DefaultTimeout,
	}
}

// core holds what both facades share: the resolved binary, the global
// arguments and the runner that reaps the child.
type core struct {
	path      string
	args      []string
	setPgid   bool
	timeout   time.Duration
	waitDelay time.Duration
	runner    process.Runner
	logger    *slog.Logger
	output    *logging.OutputHandler
	observer  Observer
}

func newCore(cfg *Config, runner process.Runner, timeout time.Duration) (*core, error) {
	command := cfg.Command
	if command == "" {
		command = DefaultCommand
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, command, err)
	}

	args, err := buildArgs(cfg)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	waitDelay := cfg.WaitDelay
	switch {
	case waitDelay == 0:
		waitDelay = DefaultWaitDelay
	case waitDelay < 0:
		waitDelay = 0
	}

	return &core{
		path:      path,
		args:      args,
		setPgid:   cfg.SetPgid,
		timeout:   timeout,
		waitDelay: waitDelay,
		runner:    runner,
		logger:    logger,
		output:    cfg.Output,
		observer:  cfg.Observer,
	}, nil
}

// buildArgs constructs the global runc arguments.
func buildArgs(cfg *Config) ([]string, error) {
	var args []string

	if cfg.Root != "" {
		root, err := absPath(cfg.Root)
		if err != nil {
			return nil, err
		}
		args = append(args, "--root", root)
	}

	if cfg.Debug {
		args = append(args, "--debug")
	}

	if cfg.Log != "" {
		log, err := absPath(cfg.Log)
		if err != nil {
			return nil, err
		}
		args = append(args, "--log", log)
	}

	format := cfg.LogFormat
	if format == "" {
		format = LogFormatText
	}
	if format != LogFormatText && format != LogFormatJSON {
		return nil, fmt.Errorf("runc: unknown log format %q", format)
	}
	args = append(args, "--log-format", string(format))

	if cfg.SystemdCgroup {
		args = append(args, "--systemd-cgroup")
	}

	if cfg.Rootless != nil {
		args = append(args, "--rootless="+strconv.FormatBool(*cfg.Rootless))
	}

	return args, nil
}

// command returns a not-yet-started runc command for the verb args.
func (c *core) command(args ...string) *exec.Cmd {
	full := make([]string, 0, len(c.args)+len(args))
	full = append(full, c.args...)
	full = append(full, args...)

	cmd := exec.Command(c.path, full...)
	cmd.Env = withoutEnv(os.Environ(), notifySocketEnv)
	cmd.WaitDelay = c.waitDelay
	if c.setPgid {
		cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	}
	return cmd
}

// CommandString returns the command line that would run for args (for debugging).
func (c *core) CommandString(args ...string) string {
	full := append([]string{c.path}, c.args...)
	return strings.Join(append(full, args...), " ")
}

// Path returns the resolved runc binary.
func (c *core) Path() string {
	return c.path
}

// terminate kills a runc child whose caller gave up on it. A child that
// has already been reaped is left alone: its pid, and its group id, may
// have been reused.
func (c *core) terminate(cmd *exec.Cmd) error {
	if cmd.Process == nil || cmd.ProcessState != nil {
		return nil
	}

	var err error
	if m, ok := c.runner.(*process.Monitor); ok {
		pid := cmd.Process.Pid
		if c.setPgid {
			if err = m.Signal(pid, syscall.SIGKILL, true); err == nil {
				return nil
			}
		}
		err = m.Signal(pid, syscall.SIGKILL, false)
	} else {
		if c.setPgid {
			if err = syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err == nil {
				return nil
			}
		}
		err = cmd.Process.Kill()
	}
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func withoutEnv(env []string, key string) []string {
	prefix := key + "="
	out := env[:0:0]
	for _, kv := range env {
		if !strings.HasPrefix(kv, prefix) {
			out = append(out, kv)
		}
	}
	return out
}
