package runc

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
)

// IO is the stdio attachment for a runc command. Set wires it into the
// command just before spawn; CloseAfterStart releases the child's ends
// once the process exists.
type IO interface {
	io.Closer
	Stdin() io.WriteCloser
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	Set(cmd *exec.Cmd) error
	CloseAfterStart() error
}

var errIOClosed = errors.New("io already closed")

// NullIO connects every stream of the command to /dev/null.
type NullIO struct {
	mu      sync.Mutex
	devNull *os.File
}

// Stdin implements IO. It is always nil.
func (n *NullIO) Stdin() io.WriteCloser { return nil }

// Stdout implements IO. It is always nil.
func (n *NullIO) Stdout() io.ReadCloser { return nil }

// Stderr implements IO. It is always nil.
func (n *NullIO) Stderr() io.ReadCloser { return nil }

// Set opens /dev/null and attaches it to all three streams.
func (n *NullIO) Set(cmd *exec.Cmd) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	f, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	n.devNull = f
	cmd.Stdin = f
	cmd.Stdout = f
	cmd.Stderr = f
	return nil
}

// CloseAfterStart closes the parent's handle on /dev/null.
func (n *NullIO) CloseAfterStart() error {
	return n.Close()
}

// Close implements io.Closer.
func (n *NullIO) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.devNull == nil {
		return nil
	}
	err := n.devNull.Close()
	n.devNull = nil
	return err
}

type pipe struct {
	r *os.File
	w *os.File
}

func newPipe() (*pipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &pipe{r: r, w: w}, nil
}

func (p *pipe) Close() error {
	return errors.Join(p.r.Close(), p.w.Close())
}

// PipeIO gives the caller the parent ends of three OS pipes.
// The child ends are closed after start so EOF follows the child's exit.
type PipeIO struct {
	in, out, errp *pipe

	mu      sync.Mutex
	started bool
	closed  bool
}

// NewPipeIO creates the stdin, stdout and stderr pipes.
func NewPipeIO() (*PipeIO, error) {
	var pipes [3]*pipe
	for i := range pipes {
		p, err := newPipe()
		if err != nil {
			for _, made := range pipes[:i] {
				made.Close()
			}
			return nil, err
		}
		pipes[i] = p
	}
	return &PipeIO{in: pipes[0], out: pipes[1], errp: pipes[2]}, nil
}

// Stdin returns the write end of the child's stdin.
func (p *PipeIO) Stdin() io.WriteCloser { return p.in.w }

// Stdout returns the read end of the child's stdout.
func (p *PipeIO) Stdout() io.ReadCloser { return p.out.r }

// Stderr returns the read end of the child's stderr.
func (p *PipeIO) Stderr() io.ReadCloser { return p.errp.r }

// Set attaches the child ends of the pipes to cmd.
func (p *PipeIO) Set(cmd *exec.Cmd) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.started {
		return errIOClosed
	}
	cmd.Stdin = p.in.r
	cmd.Stdout = p.out.w
	cmd.Stderr = p.errp.w
	return nil
}

// CloseAfterStart closes the child ends held by the parent.
func (p *PipeIO) CloseAfterStart() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.started {
		return nil
	}
	p.started = true
	return errors.Join(p.in.r.Close(), p.out.w.Close(), p.errp.w.Close())
}

// Close closes every pipe end still open.
func (p *PipeIO) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	if p.started {
		return errors.Join(p.in.w.Close(), p.out.r.Close(), p.errp.r.Close())
	}
	return errors.Join(p.in.Close(), p.out.Close(), p.errp.Close())
}
