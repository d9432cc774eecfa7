package runc

import (
	"os"
	"strconv"
)

// CreateOpts are the options for create and run.
type CreateOpts struct {
	IO IO

	// PidFile is where runc writes the container's init pid.
	PidFile string

	// ConsoleSocket receives the pty master when the container config requests a terminal.
	ConsoleSocket string

	// Detach returns once the container has started (run only).
	Detach bool

	NoPivot      bool
	NoNewKeyring bool

	// ExtraFiles are passed to the container after stdio as --preserve-fds.
	ExtraFiles []*os.File
}

func (o *CreateOpts) args() ([]string, error) {
	if o == nil {
		return nil, nil
	}
	var args []string
	if o.PidFile != "" {
		p, err := absPath(o.PidFile)
		if err != nil {
			return nil, err
		}
		args = append(args, "--pid-file", p)
	}
	if o.ConsoleSocket != "" {
		p, err := absPath(o.ConsoleSocket)
		if err != nil {
			return nil, err
		}
		args = append(args, "--console-socket", p)
	}
	if o.NoPivot {
		args = append(args, "--no-pivot")
	}
	if o.NoNewKeyring {
		args = append(args, "--no-new-keyring")
	}
	if o.Detach {
		args = append(args, "--detach")
	}
	if len(o.ExtraFiles) > 0 {
		args = append(args, "--preserve-fds", strconv.Itoa(len(o.ExtraFiles)))
	}
	return args, nil
}

func (o *CreateOpts) io() IO {
	if o == nil {
		return nil
	}
	return o.IO
}

func (o *CreateOpts) extraFiles() []*os.File {
	if o == nil {
		return nil
	}
	return o.ExtraFiles
}

// ExecOpts are the options for exec.
type ExecOpts struct {
	IO            IO
	PidFile       string
	ConsoleSocket string
	Detach        bool
}

func (o *ExecOpts) args() ([]string, error) {
	if o == nil {
		return nil, nil
	}
	var args []string
	if o.PidFile != "" {
		p, err := absPath(o.PidFile)
		if err != nil {
			return nil, err
		}
		args = append(args, "--pid-file", p)
	}
	if o.ConsoleSocket != "" {
		p, err := absPath(o.ConsoleSocket)
		if err != nil {
			return nil, err
		}
		args = append(args, "--console-socket", p)
	}
	if o.Detach {
		args = append(args, "--detach")
	}
	return args, nil
}

func (o *ExecOpts) io() IO {
	if o == nil {
		return nil
	}
	return o.IO
}

// DeleteOpts are the options for delete.
type DeleteOpts struct {
	// Force kills a running container before deleting it.
	Force bool
}

func (o *DeleteOpts) args() []string {
	if o == nil || !o.Force {
		return nil
	}
	return []string{"--force"}
}

// KillOpts are the options for kill.
type KillOpts struct {
	// All sends the signal to every process in the container.
	All bool
}

func (o *KillOpts) args() []string {
	if o == nil || !o.All {
		return nil
	}
	return []string{"--all"}
}
