package process

import (
	"fmt"
	"syscall"
	"time"
)

// ExitStatus is the terminal status of a reaped process.
// Code is -1 when the process was terminated by a signal.
type ExitStatus struct {
	Code   int
	Signal syscall.Signal
}

// Success reports whether the process exited normally with code 0.
func (s ExitStatus) Success() bool {
	return s.Code == 0 && s.Signal == 0
}

// Exited reports whether the process exited normally (not by a signal).
func (s ExitStatus) Exited() bool {
	return s.Signal == 0
}

// Signaled reports whether the process was terminated by a signal.
func (s ExitStatus) Signaled() bool {
	return s.Signal != 0
}

// ShellCode returns the status the way a shell reports it:
// the exit code, or 128 + signal number for signal exits.
func (s ExitStatus) ShellCode() int {
	if s.Signaled() {
		return 128 + int(s.Signal)
	}
	return s.Code
}

func (s ExitStatus) String() string {
	if s.Signaled() {
		return fmt.Sprintf("signal: %s", s.Signal)
	}
	return fmt.Sprintf("exit status %d", s.Code)
}

// waitStatus is satisfied by both syscall.WaitStatus and unix.WaitStatus.
type waitStatus interface {
	Exited() bool
	ExitStatus() int
	Signaled() bool
	Signal() syscall.Signal
}

func statusFrom(ws waitStatus) ExitStatus {
	if ws.Signaled() {
		return ExitStatus{Code: -1, Signal: ws.Signal()}
	}
	return ExitStatus{Code: ws.ExitStatus()}
}

// Exit is the notification delivered to a Waiter once its process is reaped.
type Exit struct {
	Pid       int
	Status    ExitStatus
	Timestamp time.Time
}

// Completion is the outcome of one spawned process: its exit status and
// everything it wrote to the captured streams.
type Completion struct {
	Pid    int
	Status ExitStatus
	Stdout []byte
	Stderr []byte
}

// Success reports whether the process exited with status 0.
func (c Completion) Success() bool {
	return c.Status.Success()
}
