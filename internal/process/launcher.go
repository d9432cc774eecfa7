package process

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"syscall"
)

// Launcher is the synchronous Runner. Each call owns its child for the
// whole of its lifetime and shares nothing with other calls.
type Launcher struct{}

// Run implements Runner.
func (Launcher) Run(ctx context.Context, cmd *exec.Cmd, afterStart func()) (Completion, error) {
	return Launch(ctx, cmd, afterStart)
}

// Launch spawns cmd, blocks until it exits and returns its captured output.
// Stdout and stderr left nil by the caller are captured; anything else is
// left as the caller wired it. If ctx ends before the process does, the
// process is killed and ctx.Err() is returned with whatever was captured.
// A positive cmd.WaitDelay bounds how long capture outlives the process.
func Launch(ctx context.Context, cmd *exec.Cmd, afterStart func()) (Completion, error) {
	var stdout, stderr bytes.Buffer
	if cmd.Stdout == nil {
		cmd.Stdout = &stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = &stderr
	}

	if err := cmd.Start(); err != nil {
		return Completion{}, &SpawnError{Path: cmd.Path, Err: err}
	}
	if afterStart != nil {
		afterStart()
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			cmd.Process.Kill()
		case <-done:
		}
	}()

	waitErr := cmd.Wait()

	comp := Completion{
		Pid:    cmd.Process.Pid,
		Stdout: stdout.Bytes(),
		Stderr: stderr.Bytes(),
	}
	if cmd.ProcessState != nil {
		if ws, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok {
			comp.Status = statusFrom(ws)
		}
	}

	if err := ctx.Err(); err != nil {
		return comp, err
	}

	// A non-zero exit is reported through Status, not as an error.
	// ErrWaitDelay means a descendant kept the output pipes open after a
	// successful exit; what was read before the cut is kept.
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && !errors.Is(waitErr, exec.ErrWaitDelay) {
		return comp, waitErr
	}
	return comp, nil
}
