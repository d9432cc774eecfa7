package process

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// Callbacks contains optional callback functions for monitor events.
// They run on the goroutine that observed the event and must not block.
type Callbacks struct {
	// OnStart is called after a process has been spawned and registered.
	OnStart func(pid int)

	// OnExit is called after a process has been reaped.
	OnExit func(exit Exit, uptime time.Duration)

	// OnSpawnError is called when the OS refused to create a process.
	OnSpawnError func(err error)
}

// Config holds Monitor configuration.
type Config struct {
	Logger    *slog.Logger
	Callbacks Callbacks
}

// tracked is one entry of the reaper table.
type tracked struct {
	waiter  *Waiter
	process *os.Process
	started time.Time
}

// Monitor spawns child processes and delivers each one's exit status to the
// Waiter supplied at Start. A single reaper goroutine owns reaping for every
// process spawned through the monitor.
//
// The reaper only waits on pids it registered, so it never races with
// exec.Cmd.Wait callers elsewhere in the program.
type Monitor struct {
	logger    *slog.Logger
	callbacks Callbacks

	mu      sync.Mutex
	table   map[int]*tracked
	pending int // Start calls between the closed check and registration
	closed  bool

	sigs chan os.Signal
	kick chan struct{}
	done chan struct{}
}

// NewMonitor creates a Monitor and starts its reaper.
func NewMonitor(cfg Config) *Monitor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Monitor{
		logger:    logger,
		callbacks: cfg.Callbacks,
		table:     make(map[int]*tracked),
		sigs:      make(chan os.Signal, 1),
		kick:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
	signal.Notify(m.sigs, syscall.SIGCHLD)
	go m.reap()
	return m
}

// Start spawns cmd and binds its pid to w.
//
// The returned Output resolves to the captured stdout/stderr. Exit status is
// delivered separately through Wait; the two may be awaited in any order.
// If the OS refuses to spawn the process a *SpawnError is returned and
// nothing is registered.
func (m *Monitor) Start(cmd *exec.Cmd, w *Waiter) (*Output, error) {
	if w == nil {
		return nil, ErrNilWaiter
	}
	if cmd.Cancel != nil {
		return nil, ErrCancelHook
	}

	if !w.bind(m) {
		return nil, ErrWaiterInUse
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		w.unbind(m)
		return nil, ErrMonitorClosed
	}
	m.pending++
	m.mu.Unlock()

	c, err := attach(cmd)
	if err != nil {
		m.release()
		w.unbind(m)
		return nil, &SpawnError{Path: cmd.Path, Err: err}
	}

	started := time.Now()
	if err := cmd.Start(); err != nil {
		c.failed()
		m.release()
		w.unbind(m)
		spawnErr := &SpawnError{Path: cmd.Path, Err: err}
		m.logger.Error("process_spawn_failed",
			"path", cmd.Path,
			"error", err,
		)
		if m.callbacks.OnSpawnError != nil {
			m.callbacks.OnSpawnError(spawnErr)
		}
		return nil, spawnErr
	}

	pid := cmd.Process.Pid

	// The child may already have exited. It stays a zombie until the
	// reaper scans again, which the kick below guarantees.
	m.mu.Lock()
	m.table[pid] = &tracked{waiter: w, process: cmd.Process, started: started}
	m.pending--
	m.mu.Unlock()
	m.wake()

	out := c.started()

	m.logger.Debug("process_started",
		"pid", pid,
		"path", cmd.Path,
	)
	if m.callbacks.OnStart != nil {
		m.callbacks.OnStart(pid)
	}

	return out, nil
}

// Wait blocks until the process bound to w has been reaped, or ctx is done.
// A cancelled Wait leaves the process running and the Waiter usable.
func (m *Monitor) Wait(ctx context.Context, w *Waiter) (Exit, error) {
	if w == nil {
		return Exit{}, ErrNilWaiter
	}
	if !w.boundTo(m) {
		return Exit{}, ErrWaiterNotRegistered
	}
	if !w.consumed.CompareAndSwap(false, true) {
		return Exit{}, ErrWaiterConsumed
	}

	select {
	case e, ok := <-w.ch:
		if !ok {
			return Exit{}, ErrNoExitStatus
		}
		return e, nil
	case <-ctx.Done():
		w.consumed.Store(false)
		return Exit{}, ctx.Err()
	}
}

// Run starts cmd, calls afterStart once the process exists, then joins
// the exit status with the captured output.
// If ctx ends first the process is left running; it is still reaped when
// it exits.
//
// A descendant that inherited the captured streams keeps them open after
// the process exits. When cmd.WaitDelay is positive, capture is cut that
// long after the exit status arrives and the Completion carries what was
// read so far. Zero waits for EOF.
func (m *Monitor) Run(ctx context.Context, cmd *exec.Cmd, afterStart func()) (Completion, error) {
	w := NewWaiter()
	out, err := m.Start(cmd, w)
	if err != nil {
		return Completion{}, err
	}
	if afterStart != nil {
		afterStart()
	}

	comp := Completion{Pid: cmd.Process.Pid}
	e, err := m.Wait(ctx, w)
	if err != nil {
		return comp, err
	}
	comp.Status = e.Status

	if cmd.WaitDelay > 0 {
		timer := time.NewTimer(cmd.WaitDelay)
		defer timer.Stop()
		select {
		case <-out.Done():
		case <-timer.C:
			out.Cut()
		case <-ctx.Done():
			return comp, ctx.Err()
		}
	}

	stdout, stderr, err := out.Wait(ctx)
	comp.Stdout, comp.Stderr = stdout, stderr
	if err != nil {
		return comp, err
	}
	if out.Truncated() {
		m.logger.Debug("process_output_cut",
			"pid", comp.Pid,
			"wait_delay", cmd.WaitDelay.String(),
		)
	}
	return comp, nil
}

// Signal sends sig to a process the reaper still tracks, or to its process
// group when group is set. It returns os.ErrProcessDone once the process
// has been reaped, so a recycled pid is never signalled.
func (m *Monitor) Signal(pid int, sig syscall.Signal, group bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.table[pid]; !ok {
		return os.ErrProcessDone
	}
	if group {
		return unix.Kill(-pid, sig)
	}
	return unix.Kill(pid, sig)
}

// InFlight returns the number of spawned processes not yet reaped.
func (m *Monitor) InFlight() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.table)
}

// Shutdown stops accepting new processes and waits for the reaper to reap
// every process still in flight, or for ctx to end. It does not signal
// running processes.
func (m *Monitor) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.wake()

	select {
	case <-m.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release drops a pending registration that never reached the table.
func (m *Monitor) release() {
	m.mu.Lock()
	m.pending--
	m.mu.Unlock()
	m.wake()
}

func (m *Monitor) wake() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// reap is the monitor's single reaper goroutine.
func (m *Monitor) reap() {
	defer close(m.done)
	defer signal.Stop(m.sigs)

	for {
		select {
		case <-m.sigs:
		case <-m.kick:
		}
		m.scan()

		m.mu.Lock()
		drained := m.closed && len(m.table) == 0 && m.pending == 0
		m.mu.Unlock()
		if drained {
			m.logger.Debug("reaper_stopped")
			return
		}
	}
}

// reaped is one table entry removed by scan.
type reaped struct {
	pid int
	t   *tracked
	ws  unix.WaitStatus
	err error
}

// scan reaps every registered pid that has terminated. wait4 runs under
// the table lock so Signal never sees a pid that has already been reaped.
func (m *Monitor) scan() {
	var done []reaped

	m.mu.Lock()
	for pid, t := range m.table {
		ws, ok, err := wait4(pid)
		if err == nil && !ok {
			continue
		}
		delete(m.table, pid)
		done = append(done, reaped{pid: pid, t: t, ws: ws, err: err})
	}
	m.mu.Unlock()

	for _, r := range done {
		if r.err != nil {
			// A registered pid that wait4 cannot see means someone else reaped
			// it. The waiter gets ErrNoExitStatus instead of hanging.
			m.logger.Error("reaper_lost_process",
				"pid", r.pid,
				"error", r.err,
			)
			r.t.waiter.abandon()
			r.t.process.Release()
			continue
		}

		exit := Exit{Pid: r.pid, Status: statusFrom(r.ws), Timestamp: time.Now()}
		uptime := exit.Timestamp.Sub(r.t.started)
		r.t.process.Release()

		m.logger.Debug("process_reaped",
			"pid", r.pid,
			"status", exit.Status.String(),
			"uptime", uptime.String(),
		)
		// Callbacks see the exit before the waiter does.
		if m.callbacks.OnExit != nil {
			m.callbacks.OnExit(exit, uptime)
		}
		r.t.waiter.deliver(exit)
	}
}

// wait4 polls one pid without blocking. ok is false while it is still running.
func wait4(pid int) (unix.WaitStatus, bool, error) {
	var ws unix.WaitStatus
	for {
		wpid, err := unix.Wait4(pid, &ws, unix.WNOHANG, nil)
		if errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return ws, false, err
		}
		return ws, wpid == pid, nil
	}
}
