package runc

import (
	"errors"
	"fmt"
	"strings"

	"github.com/randomizedcoder/go-runc-monitor/internal/process"
)

var (
	// ErrNotFound is returned when the runc binary cannot be located.
	ErrNotFound = errors.New("runc: executable not found")

	// ErrMissingStats is returned when a stats event carries no statistics.
	ErrMissingStats = errors.New("runc: stats event carried no statistics")
)

// CommandFailedError is returned when runc ran and exited non-zero or was
// killed by a signal. Stdout and Stderr hold the complete captured streams.
type CommandFailedError struct {
	Verb   string
	Pid    int
	Status process.ExitStatus
	Stdout string
	Stderr string
}

func (e *CommandFailedError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		msg = strings.TrimSpace(e.Stdout)
	}
	if msg == "" {
		return fmt.Sprintf("runc %s: %s", e.Verb, e.Status)
	}
	return fmt.Sprintf("runc %s: %s: %s", e.Verb, e.Status, msg)
}

// JSONError wraps a failure to encode a request or decode a response.
type JSONError struct {
	Op  string
	Err error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("runc: %s: %v", e.Op, e.Err)
}

func (e *JSONError) Unwrap() error {
	return e.Err
}

// IOError wraps a failure to attach the caller's IO to the command.
type IOError struct {
	Err error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("runc: attach io: %v", e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}

// SpecFileError wraps a failure to write a temporary spec file.
type SpecFileError struct {
	Path string
	Err  error
}

func (e *SpecFileError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("runc: create spec file: %v", e.Err)
	}
	return fmt.Sprintf("runc: write spec file %s: %v", e.Path, e.Err)
}

func (e *SpecFileError) Unwrap() error {
	return e.Err
}

// UnimplementedError is returned for verbs that do not map to a single
// runc invocation.
type UnimplementedError struct {
	Verb string
}

func (e *UnimplementedError) Error() string {
	return fmt.Sprintf("runc: %s is not implemented", e.Verb)
}
