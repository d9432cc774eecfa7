package runc

import (
	"github.com/randomizedcoder/go-runc-monitor/internal/process"
)

// Response is the result of a successful runc invocation.
type Response struct {
	Pid    int
	Status process.ExitStatus

	// Output is stdout, followed by stderr when the verb combines them.
	Output string
}

// classify turns a completion into a Response, or a *CommandFailedError
// carrying both streams verbatim.
func classify(verb string, comp process.Completion, combined bool) (Response, error) {
	stdout := string(comp.Stdout)
	stderr := string(comp.Stderr)

	if !comp.Success() {
		return Response{}, &CommandFailedError{
			Verb:   verb,
			Pid:    comp.Pid,
			Status: comp.Status,
			Stdout: stdout,
			Stderr: stderr,
		}
	}

	output := stdout
	if combined {
		output += stderr
	}
	return Response{Pid: comp.Pid, Status: comp.Status, Output: output}, nil
}
