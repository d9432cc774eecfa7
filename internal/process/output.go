package process

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Output resolves to the captured stdout and stderr of a started process
// once both streams have reached EOF.
type Output struct {
	done   chan struct{}
	stdout bytes.Buffer
	stderr bytes.Buffer
	err    error

	cutOnce sync.Once
	cut     func()
	wasCut  atomic.Bool
}

// Wait blocks until capture completes or ctx is done.
// Streams the caller attached as *os.File are not captured and come back empty.
func (o *Output) Wait(ctx context.Context) (stdout, stderr []byte, err error) {
	select {
	case <-o.done:
		return o.stdout.Bytes(), o.stderr.Bytes(), o.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

// Done is closed once capture has completed.
func (o *Output) Done() <-chan struct{} {
	return o.done
}

// Cut stops capturing: the read ends are closed, so Wait resolves with
// whatever was read so far. Used when a descendant of the process still
// holds the write ends after the process itself has exited.
func (o *Output) Cut() {
	o.cutOnce.Do(func() {
		o.wasCut.Store(true)
		if o.cut != nil {
			o.cut()
		}
	})
}

// Truncated reports whether Cut ended capture before EOF. Only meaningful
// once Done is closed.
func (o *Output) Truncated() bool {
	select {
	case <-o.done:
	default:
		return false
	}
	return o.wasCut.Load()
}

// capture owns the parent side of the pipes wired into a command.
type capture struct {
	out *Output

	readers    []func() error
	childEnds  []*os.File
	parentEnds []*os.File
	stdin      io.Reader
	stdinW     *os.File
}

// attach wires pipes into cmd for every stream the caller left open.
//
// A nil Stdout/Stderr is captured into the Output. An *os.File is passed to
// the child untouched. Any other writer gets its own pipe drained into it,
// so os/exec never starts copy goroutines that only Cmd.Wait would reap.
func attach(cmd *exec.Cmd) (*capture, error) {
	c := &capture{out: &Output{done: make(chan struct{})}}

	shared := cmd.Stdout != nil && cmd.Stdout == cmd.Stderr
	if _, isFile := cmd.Stdout.(*os.File); isFile {
		shared = false
	}

	stdoutDst := cmd.Stdout
	if stdoutDst == nil {
		stdoutDst = &c.out.stdout
	}
	w, err := c.pipeTo(cmd.Stdout, stdoutDst)
	if err != nil {
		c.closeAll()
		return nil, err
	}
	if w != nil {
		cmd.Stdout = w
	}

	if shared {
		cmd.Stderr = cmd.Stdout
	} else {
		stderrDst := cmd.Stderr
		if stderrDst == nil {
			stderrDst = &c.out.stderr
		}
		w, err := c.pipeTo(cmd.Stderr, stderrDst)
		if err != nil {
			c.closeAll()
			return nil, err
		}
		if w != nil {
			cmd.Stderr = w
		}
	}

	if cmd.Stdin != nil {
		if _, isFile := cmd.Stdin.(*os.File); !isFile {
			r, w, err := os.Pipe()
			if err != nil {
				c.closeAll()
				return nil, err
			}
			c.stdin = cmd.Stdin
			c.stdinW = w
			c.childEnds = append(c.childEnds, r)
			cmd.Stdin = r
		}
	}

	return c, nil
}

// pipeTo returns the child end of a new pipe drained into dst, or nil when
// the current writer is a file the child can use directly.
func (c *capture) pipeTo(current io.Writer, dst io.Writer) (*os.File, error) {
	if _, isFile := current.(*os.File); isFile {
		return nil, nil
	}
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	c.childEnds = append(c.childEnds, w)
	c.parentEnds = append(c.parentEnds, r)
	c.readers = append(c.readers, func() error {
		defer r.Close()
		_, err := io.Copy(dst, r)
		if errors.Is(err, os.ErrClosed) {
			// Cut closed the read end.
			return nil
		}
		return err
	})
	return w, nil
}

// started closes the child ends and begins draining the parent ends.
func (c *capture) started() *Output {
	for _, f := range c.childEnds {
		f.Close()
	}
	c.childEnds = nil

	if c.stdinW != nil {
		go func() {
			defer c.stdinW.Close()
			io.Copy(c.stdinW, c.stdin)
		}()
	}

	parents := c.parentEnds
	c.out.cut = func() {
		for _, f := range parents {
			f.Close()
		}
	}

	var g errgroup.Group
	for _, read := range c.readers {
		g.Go(read)
	}
	go func() {
		c.out.err = g.Wait()
		close(c.out.done)
	}()
	return c.out
}

// failed releases every pipe after a spawn failure.
func (c *capture) failed() {
	c.closeAll()
}

func (c *capture) closeAll() {
	for _, f := range c.childEnds {
		f.Close()
	}
	for _, f := range c.parentEnds {
		f.Close()
	}
	if c.stdinW != nil {
		c.stdinW.Close()
	}
	c.childEnds = nil
	c.parentEnds = nil
}
