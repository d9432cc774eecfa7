package runc

import (
	"context"
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	specs "github.com/opencontainers/runtime-spec/specs-go"
)

// invocation is one verb ready to run.
type invocation struct {
	verb       string
	args       []string
	io         IO
	extraFiles []*os.File
	combined   bool
	cleanup    func()
}

// run executes inv and classifies the completion.
func (c *core) run(ctx context.Context, inv invocation) (Response, error) {
	if inv.cleanup != nil {
		defer inv.cleanup()
	}

	cmd := c.command(inv.args...)
	cmd.ExtraFiles = inv.extraFiles
	if inv.io != nil {
		if err := inv.io.Set(cmd); err != nil {
			return Response{}, &IOError{Err: err}
		}
	}
	afterStart := func() {
		if inv.io != nil {
			if err := inv.io.CloseAfterStart(); err != nil {
				c.logger.Warn("io_close_after_start_failed", "verb", inv.verb, "error", err)
			}
		}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	begin := time.Now()
	comp, err := c.runner.Run(ctx, cmd, afterStart)
	elapsed := time.Since(begin)
	if err != nil {
		if cmd.Process == nil && inv.io != nil {
			// Never started, so CloseAfterStart did not run.
			if closeErr := inv.io.Close(); closeErr != nil {
				c.logger.Warn("io_close_failed", "verb", inv.verb, "error", closeErr)
			}
		}
		if ctx.Err() != nil && cmd.Process != nil {
			killErr := c.terminate(cmd)
			c.logger.Warn("command_timeout_killed",
				"verb", inv.verb,
				"pid", cmd.Process.Pid,
				"elapsed", elapsed.String(),
				"kill_error", killErr,
			)
		}
		c.observe(inv.verb, elapsed, err)
		return Response{}, err
	}

	if c.output != nil && len(comp.Stderr) > 0 {
		c.output.HandleOutput(inv.verb, comp.Stderr)
	}

	resp, err := classify(inv.verb, comp, inv.combined)
	if err != nil {
		c.logger.Warn("command_failed",
			"verb", inv.verb,
			"pid", comp.Pid,
			"status", comp.Status.String(),
			"stderr", strings.TrimSpace(string(comp.Stderr)),
		)
	} else {
		c.logger.Debug("command_completed",
			"verb", inv.verb,
			"pid", comp.Pid,
			"elapsed", elapsed.String(),
		)
	}
	c.observe(inv.verb, elapsed, err)
	return resp, err
}

func (c *core) observe(verb string, d time.Duration, err error) {
	if c.observer != nil {
		c.observer.ObserveCommand(verb, d, err)
	}
}

// =============================================================================
// Lifecycle verbs
// =============================================================================

// Create creates a container from the bundle without starting its process.
func (c *core) Create(ctx context.Context, id, bundle string, opts *CreateOpts) (Response, error) {
	bundle, err := absPath(bundle)
	if err != nil {
		return Response{}, err
	}
	optArgs, err := opts.args()
	if err != nil {
		return Response{}, err
	}

	args := append([]string{"create", "--bundle", bundle}, optArgs...)
	return c.run(ctx, invocation{
		verb:       "create",
		args:       append(args, id),
		io:         opts.io(),
		extraFiles: opts.extraFiles(),
		combined:   true,
	})
}

// Start starts a created container.
func (c *core) Start(ctx context.Context, id string) (Response, error) {
	return c.run(ctx, invocation{verb: "start", args: []string{"start", id}, combined: true})
}

// Run creates and starts a container and, unless detached, waits for it.
func (c *core) Run(ctx context.Context, id, bundle string, opts *CreateOpts) (Response, error) {
	bundle, err := absPath(bundle)
	if err != nil {
		return Response{}, err
	}
	optArgs, err := opts.args()
	if err != nil {
		return Response{}, err
	}

	args := append([]string{"run", "--bundle", bundle}, optArgs...)
	return c.run(ctx, invocation{
		verb:       "run",
		args:       append(args, id),
		io:         opts.io(),
		extraFiles: opts.extraFiles(),
		combined:   true,
	})
}

// Delete deletes a container.
func (c *core) Delete(ctx context.Context, id string, opts *DeleteOpts) error {
	args := append([]string{"delete"}, opts.args()...)
	_, err := c.run(ctx, invocation{verb: "delete", args: append(args, id), combined: true})
	return err
}

// Kill sends sig to the container's init process, or every process with
// KillOpts.All.
func (c *core) Kill(ctx context.Context, id string, sig syscall.Signal, opts *KillOpts) error {
	args := append([]string{"kill"}, opts.args()...)
	args = append(args, id, strconv.Itoa(int(sig)))
	_, err := c.run(ctx, invocation{verb: "kill", args: args, combined: true})
	return err
}

// Pause freezes every process in the container.
func (c *core) Pause(ctx context.Context, id string) error {
	_, err := c.run(ctx, invocation{verb: "pause", args: []string{"pause", id}, combined: true})
	return err
}

// Resume thaws a paused container.
func (c *core) Resume(ctx context.Context, id string) error {
	_, err := c.run(ctx, invocation{verb: "resume", args: []string{"resume", id}, combined: true})
	return err
}

// Exec runs an additional process inside the container. The process spec
// is written to a temporary file that lives until runc exits.
func (c *core) Exec(ctx context.Context, id string, spec *specs.Process, opts *ExecOpts) error {
	path, remove, err := writeSpecFile("encode process spec", spec)
	if err != nil {
		return err
	}
	optArgs, err := opts.args()
	if err != nil {
		remove()
		return err
	}

	args := append([]string{"exec", "--process", path}, optArgs...)
	_, err = c.run(ctx, invocation{
		verb:     "exec",
		args:     append(args, id),
		io:       opts.io(),
		combined: true,
		cleanup:  remove,
	})
	return err
}

// Update applies new cgroup resource limits to a running container.
func (c *core) Update(ctx context.Context, id string, resources *specs.LinuxResources) error {
	path, remove, err := writeSpecFile("encode resources", resources)
	if err != nil {
		return err
	}
	_, err = c.run(ctx, invocation{
		verb:     "update",
		args:     []string{"update", "--resources", path, id},
		combined: true,
		cleanup:  remove,
	})
	return err
}

// =============================================================================
// Queries
// =============================================================================

// List returns every container known to this runc root.
func (c *core) List(ctx context.Context) ([]Container, error) {
	resp, err := c.run(ctx, invocation{verb: "list", args: []string{"list", "--format-json"}})
	if err != nil {
		return nil, err
	}
	return decodeList[Container]("decode list", resp.Output)
}

// Ps returns the pids of the processes running inside the container.
func (c *core) Ps(ctx context.Context, id string) ([]int, error) {
	resp, err := c.run(ctx, invocation{verb: "ps", args: []string{"ps", "--format-json", id}})
	if err != nil {
		return nil, err
	}
	return decodeList[int]("decode ps", resp.Output)
}

// State returns the state of one container.
func (c *core) State(ctx context.Context, id string) (*Container, error) {
	resp, err := c.run(ctx, invocation{verb: "state", args: []string{"state", id}})
	if err != nil {
		return nil, err
	}
	var ct Container
	if err := json.Unmarshal([]byte(resp.Output), &ct); err != nil {
		return nil, &JSONError{Op: "decode state", Err: err}
	}
	return &ct, nil
}

// Stats returns one snapshot of the container's cgroup statistics.
func (c *core) Stats(ctx context.Context, id string) (*Stats, error) {
	resp, err := c.run(ctx, invocation{verb: "stats", args: []string{"events", "--stats", id}})
	if err != nil {
		return nil, err
	}
	var ev Event
	if err := json.Unmarshal([]byte(resp.Output), &ev); err != nil {
		return nil, &JSONError{Op: "decode stats", Err: err}
	}
	if ev.Stats == nil {
		return nil, ErrMissingStats
	}
	return ev.Stats, nil
}

// Version returns the runc version.
func (c *core) Version(ctx context.Context) (Version, error) {
	resp, err := c.run(ctx, invocation{verb: "version", args: []string{"--version"}})
	if err != nil {
		return Version{}, err
	}
	return parseVersion(resp.Output), nil
}

// =============================================================================
// Unimplemented
// =============================================================================

// Checkpoint is not implemented.
func (c *core) Checkpoint(ctx context.Context) error {
	return &UnimplementedError{Verb: "checkpoint"}
}

// Restore is not implemented.
func (c *core) Restore(ctx context.Context) error {
	return &UnimplementedError{Verb: "restore"}
}

// Events would stream events for the container every interval. Streaming
// does not fit one bounded command, so it is not implemented.
func (c *core) Events(ctx context.Context, id string, interval time.Duration) error {
	return &UnimplementedError{Verb: "events"}
}
