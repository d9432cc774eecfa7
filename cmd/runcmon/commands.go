package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"syscall"

	specs "github.com/opencontainers/runtime-spec/specs-go"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
)

// =============================================================================
// create / run
// =============================================================================

// createFlags are shared by create and run.
type createFlags struct {
	bundle        string
	pidFile       string
	consoleSocket string
	detach        bool
	noPivot       bool
	noNewKeyring  bool
	nullIO        bool
}

func (f *createFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.bundle, "bundle", "b", ".", "path to the OCI bundle")
	cmd.Flags().StringVar(&f.pidFile, "pid-file", "", "file to write the container process id to")
	cmd.Flags().StringVar(&f.consoleSocket, "console-socket", "", "unix socket receiving the console pty master")
	cmd.Flags().BoolVar(&f.noPivot, "no-pivot", false, "do not use pivot_root")
	cmd.Flags().BoolVar(&f.noNewKeyring, "no-new-keyring", false, "do not create a new session keyring")
	cmd.Flags().BoolVar(&f.nullIO, "null-io", true, "connect the container's stdio to /dev/null (ignored with --console-socket)")
}

func (f *createFlags) opts() *runc.CreateOpts {
	opts := &runc.CreateOpts{
		PidFile:       f.pidFile,
		ConsoleSocket: f.consoleSocket,
		Detach:        f.detach,
		NoPivot:       f.noPivot,
		NoNewKeyring:  f.noNewKeyring,
	}
	// Otherwise the container inherits runc's captured stdout and stderr.
	if f.nullIO && f.consoleSocket == "" {
		opts.IO = &runc.NullIO{}
	}
	return opts
}

func newCreateCmd(a *app) *cobra.Command {
	var f createFlags

	cmd := &cobra.Command{
		Use:   "create <container-id>",
		Short: "Create a container from a bundle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.runtime().Create(cmd.Context(), args[0], f.bundle, f.opts())
			if err != nil {
				return err
			}
			writeOutput(cmd.OutOrStdout(), resp.Output)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func newRunCmd(a *app) *cobra.Command {
	var f createFlags

	cmd := &cobra.Command{
		Use:   "run <container-id>",
		Short: "Create and start a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.runtime().Run(cmd.Context(), args[0], f.bundle, f.opts())
			if err != nil {
				return err
			}
			writeOutput(cmd.OutOrStdout(), resp.Output)
			return nil
		},
	}
	f.register(cmd)
	cmd.Flags().BoolVarP(&f.detach, "detach", "d", false, "detach from the container's process")
	return cmd
}

// =============================================================================
// Lifecycle verbs
// =============================================================================

func newStartCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "start <container-id>",
		Short: "Start a created container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.runtime().Start(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			writeOutput(cmd.OutOrStdout(), resp.Output)
			return nil
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "delete <container-id>",
		Short: "Delete a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runtime().Delete(cmd.Context(), args[0], &runc.DeleteOpts{Force: force})
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "kill the container first if it is running")
	return cmd
}

func newKillCmd(a *app) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "kill <container-id> [signal]",
		Short: "Send a signal to a container's init process",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sig := unix.SIGTERM
			if len(args) == 2 {
				var err error
				if sig, err = parseSignal(args[1]); err != nil {
					return err
				}
			}
			return a.runtime().Kill(cmd.Context(), args[0], sig, &runc.KillOpts{All: all})
		},
	}
	cmd.Flags().BoolVarP(&all, "all", "a", false, "send the signal to every process in the container")
	return cmd
}

// parseSignal accepts "9", "KILL" or "SIGKILL".
func parseSignal(s string) (syscall.Signal, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("invalid signal %q", s)
		}
		return syscall.Signal(n), nil
	}

	name := strings.ToUpper(s)
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig := unix.SignalNum(name)
	if sig == 0 {
		return 0, fmt.Errorf("unknown signal %q", s)
	}
	return sig, nil
}

func newPauseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "pause <container-id>",
		Short: "Suspend every process in a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runtime().Pause(cmd.Context(), args[0])
		},
	}
}

func newResumeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resume <container-id>",
		Short: "Resume a paused container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runtime().Resume(cmd.Context(), args[0])
		},
	}
}

// =============================================================================
// exec / update
// =============================================================================

func newExecCmd(a *app) *cobra.Command {
	var (
		processFile string
		cwd         string
		env         []string
		tty         bool
		detach      bool
		pidFile     string
	)

	cmd := &cobra.Command{
		Use:   "exec <container-id> [-- command args...]",
		Short: "Run an additional process in a container",
		Long: `Run an additional process in a running container. The process is
described either by a runtime-spec process JSON file (--process) or by the
command given after "--".`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec *specs.Process
			switch {
			case processFile != "":
				p, err := readJSONFile[specs.Process](processFile)
				if err != nil {
					return err
				}
				spec = p
			case len(args) > 1:
				spec = &specs.Process{
					Terminal: tty,
					Args:     args[1:],
					Env:      env,
					Cwd:      cwd,
				}
			default:
				return fmt.Errorf("exec needs --process or a command after --")
			}

			return a.runtime().Exec(cmd.Context(), args[0], spec, &runc.ExecOpts{
				PidFile: pidFile,
				Detach:  detach,
			})
		},
	}
	cmd.Flags().StringVarP(&processFile, "process", "p", "", "runtime-spec process JSON file")
	cmd.Flags().StringVar(&cwd, "cwd", "/", "working directory inside the container")
	cmd.Flags().StringArrayVarP(&env, "env", "e", nil, "environment variable KEY=VALUE (repeatable)")
	cmd.Flags().BoolVarP(&tty, "tty", "t", false, "allocate a pseudo-TTY")
	cmd.Flags().BoolVarP(&detach, "detach", "d", false, "detach from the process")
	cmd.Flags().StringVar(&pidFile, "pid-file", "", "file to write the process id to")
	return cmd
}

func newUpdateCmd(a *app) *cobra.Command {
	var (
		resourcesFile string
		memory        int64
		cpuShares     uint64
		pidsLimit     int64
	)

	cmd := &cobra.Command{
		Use:   "update <container-id>",
		Short: "Update a container's resource limits",
		Long: `Update a container's resource limits, either from a runtime-spec
LinuxResources JSON file (--resources, "-" reads stdin) or from the
individual limit flags.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var res *specs.LinuxResources
			if resourcesFile != "" {
				r, err := readJSONFile[specs.LinuxResources](resourcesFile, cmd.InOrStdin())
				if err != nil {
					return err
				}
				res = r
			} else {
				res = &specs.LinuxResources{}
				if cmd.Flags().Changed("memory") {
					res.Memory = &specs.LinuxMemory{Limit: &memory}
				}
				if cmd.Flags().Changed("cpu-shares") {
					res.CPU = &specs.LinuxCPU{Shares: &cpuShares}
				}
				if cmd.Flags().Changed("pids-limit") {
					res.Pids = &specs.LinuxPids{Limit: pidsLimit}
				}
				if res.Memory == nil && res.CPU == nil && res.Pids == nil {
					return fmt.Errorf("update needs --resources or at least one limit flag")
				}
			}
			return a.runtime().Update(cmd.Context(), args[0], res)
		},
	}
	cmd.Flags().StringVarP(&resourcesFile, "resources", "r", "", `LinuxResources JSON file ("-" for stdin)`)
	cmd.Flags().Int64Var(&memory, "memory", 0, "memory limit in bytes")
	cmd.Flags().Uint64Var(&cpuShares, "cpu-shares", 0, "CPU shares (relative weight)")
	cmd.Flags().Int64Var(&pidsLimit, "pids-limit", 0, "maximum number of pids")
	return cmd
}

// readJSONFile decodes path into a new T. "-" reads the first of stdin.
func readJSONFile[T any](path string, stdin ...io.Reader) (*T, error) {
	var r io.Reader
	if path == "-" && len(stdin) > 0 {
		r = stdin[0]
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var v T
	if err := json.NewDecoder(r).Decode(&v); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return &v, nil
}

// writeOutput prints runc's captured output, if any.
func writeOutput(w io.Writer, out string) {
	if out == "" {
		return
	}
	fmt.Fprint(w, out)
	if !strings.HasSuffix(out, "\n") {
		fmt.Fprintln(w)
	}
}
