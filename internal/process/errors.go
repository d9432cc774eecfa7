package process

import (
	"errors"
	"fmt"
)

var (
	// ErrWaiterInUse is returned when a Waiter is passed to Start while it is
	// already bound to a process.
	ErrWaiterInUse = errors.New("process: waiter already registered")

	// ErrWaiterNotRegistered is returned by Wait for a Waiter that was never
	// bound to a process by this monitor.
	ErrWaiterNotRegistered = errors.New("process: waiter not registered")

	// ErrNilWaiter is returned by Start and Wait when no Waiter is given.
	ErrNilWaiter = errors.New("process: nil waiter")

	// ErrWaiterConsumed is returned when a Waiter is waited on more than once.
	ErrWaiterConsumed = errors.New("process: waiter already consumed")

	// ErrNoExitStatus is returned when the reaper lost track of a registered
	// process and could not produce its exit status.
	ErrNoExitStatus = errors.New("process: exit status unavailable")

	// ErrMonitorClosed is returned by Start after Shutdown.
	ErrMonitorClosed = errors.New("process: monitor closed")

	// ErrCancelHook is returned by Start for commands built with
	// exec.CommandContext. Their cancellation goroutine only ends in
	// Cmd.Wait, which the monitor never calls.
	ErrCancelHook = errors.New("process: commands with a Cancel hook are not supported")
)

// SpawnError reports that the OS refused to create the process.
type SpawnError struct {
	Path string
	Err  error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("spawn %s: %v", e.Path, e.Err)
}

func (e *SpawnError) Unwrap() error {
	return e.Err
}
