// Package process spawns external commands and observes their completion.
//
// Two runners share one completion contract: Launcher blocks the calling
// goroutine on exec.Cmd.Wait, and Monitor tracks many children at once with
// a single reaper goroutine.
package process

import (
	"context"
	"os/exec"
)

// Runner runs a prepared command to completion.
// This interface allows client facades to be agnostic of how the child is
// reaped.
type Runner interface {
	// Run starts cmd, calls afterStart (if non-nil) once the process exists,
	// and returns its Completion once it has exited and its captured streams
	// are drained. A *SpawnError is returned if the process never started.
	// A positive cmd.WaitDelay bounds the drain after the exit.
	Run(ctx context.Context, cmd *exec.Cmd, afterStart func()) (Completion, error)
}

var (
	_ Runner = Launcher{}
	_ Runner = (*Monitor)(nil)
)
