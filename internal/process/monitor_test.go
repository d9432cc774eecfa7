package process

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func newTestMonitor(t *testing.T, cb Callbacks) *Monitor {
	t.Helper()
	m := NewMonitor(Config{
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Callbacks: cb,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.Shutdown(ctx)
	})
	return m
}

func shell(script string) *exec.Cmd {
	return exec.Command("/bin/sh", "-c", script)
}

// startAndJoin starts cmd and joins exit status with captured output.
func startAndJoin(t *testing.T, m *Monitor, cmd *exec.Cmd) (Exit, []byte, []byte) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	w := NewWaiter()
	out, err := m.Start(cmd, w)
	require.NoError(t, err)

	exit, err := m.Wait(ctx, w)
	require.NoError(t, err)
	stdout, stderr, err := out.Wait(ctx)
	require.NoError(t, err)
	return exit, stdout, stderr
}

// =============================================================================
// Capture
// =============================================================================

func TestMonitor_StdoutRoundTrip(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	payload := bytes.Repeat([]byte("0123456789abcdef"), 64*1024) // 1 MiB
	cmd := exec.Command("cat")
	cmd.Stdin = bytes.NewReader(payload)

	exit, stdout, stderr := startAndJoin(t, m, cmd)

	assert.Equal(t, cmd.Process.Pid, exit.Pid)
	assert.True(t, exit.Status.Success())
	assert.Equal(t, len(payload), len(stdout))
	assert.True(t, bytes.Equal(payload, stdout), "stdout differs from payload")
	assert.Empty(t, stderr)
}

func TestMonitor_SeparateStreams(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	exit, stdout, stderr := startAndJoin(t, m, shell("printf out; printf err >&2"))

	assert.Equal(t, 0, exit.Status.Code)
	assert.Equal(t, "out", string(stdout))
	assert.Equal(t, "err", string(stderr))
}

func TestMonitor_ExitOneEmptyStreams(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	exit, stdout, stderr := startAndJoin(t, m, shell("exit 1"))

	assert.Equal(t, 1, exit.Status.Code)
	assert.False(t, exit.Status.Success())
	assert.Empty(t, stdout)
	assert.Empty(t, stderr)
}

func TestMonitor_CallerWriters(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	t.Run("distinct", func(t *testing.T) {
		var outBuf, errBuf bytes.Buffer
		cmd := shell("printf out; printf err >&2")
		cmd.Stdout = &outBuf
		cmd.Stderr = &errBuf

		_, stdout, stderr := startAndJoin(t, m, cmd)

		assert.Empty(t, stdout)
		assert.Empty(t, stderr)
		assert.Equal(t, "out", outBuf.String())
		assert.Equal(t, "err", errBuf.String())
	})

	t.Run("shared", func(t *testing.T) {
		var buf bytes.Buffer
		cmd := shell("printf a; printf b >&2; printf c")
		cmd.Stdout = &buf
		cmd.Stderr = &buf

		startAndJoin(t, m, cmd)

		assert.Equal(t, "abc", buf.String())
	})
}

// =============================================================================
// Exit delivery
// =============================================================================

func TestMonitor_SignalExit(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	exit, _, _ := startAndJoin(t, m, shell("kill -9 $$"))

	assert.True(t, exit.Status.Signaled())
	assert.Equal(t, syscall.SIGKILL, exit.Status.Signal)
	assert.Equal(t, -1, exit.Status.Code)
	assert.Equal(t, 137, exit.Status.ShellCode())
}

func TestMonitor_WaitBeforeOutput(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})
	ctx := context.Background()

	w := NewWaiter()
	out, err := m.Start(shell("printf done"), w)
	require.NoError(t, err)

	// Join both halves concurrently, in either order.
	var wg sync.WaitGroup
	var exit Exit
	var stdout []byte
	wg.Add(2)
	go func() {
		defer wg.Done()
		exit, _ = m.Wait(ctx, w)
	}()
	go func() {
		defer wg.Done()
		stdout, _, _ = out.Wait(ctx)
	}()
	wg.Wait()

	assert.True(t, exit.Status.Success())
	assert.Equal(t, "done", string(stdout))
}

func TestMonitor_ExactlyOnce(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	rapid.Check(t, func(rt *rapid.T) {
		codes := rapid.SliceOfN(rapid.IntRange(0, 7), 1, 12).Draw(rt, "codes")

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		waiters := make([]*Waiter, len(codes))
		outputs := make([]*Output, len(codes))
		for i, code := range codes {
			waiters[i] = NewWaiter()
			out, err := m.Start(exec.Command("/bin/sh", "-c", "exit $0", strconv.Itoa(code)), waiters[i])
			if err != nil {
				rt.Fatalf("Start(%d) error = %v", i, err)
			}
			outputs[i] = out
		}

		exits := make([]Exit, len(codes))
		errs := make([]error, len(codes))
		var wg sync.WaitGroup
		for i := range codes {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				exits[i], errs[i] = m.Wait(ctx, waiters[i])
				outputs[i].Wait(ctx)
			}(i)
		}
		wg.Wait()

		seen := make(map[int]bool)
		for i, code := range codes {
			if errs[i] != nil {
				rt.Fatalf("Wait(%d) error = %v", i, errs[i])
			}
			if exits[i].Status.Code != code {
				rt.Fatalf("Wait(%d) code = %d, want %d", i, exits[i].Status.Code, code)
			}
			if seen[exits[i].Pid] {
				rt.Fatalf("pid %d delivered twice", exits[i].Pid)
			}
			seen[exits[i].Pid] = true

			if _, err := m.Wait(ctx, waiters[i]); err != ErrWaiterConsumed {
				rt.Fatalf("second Wait(%d) error = %v, want %v", i, err, ErrWaiterConsumed)
			}
		}
		if n := m.InFlight(); n != 0 {
			rt.Fatalf("InFlight() = %d after all waits, want 0", n)
		}
	})
}

func TestMonitor_StartWithoutWaitIsReaped(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	for i := 0; i < 5; i++ {
		_, err := m.Start(exec.Command("/bin/true"), NewWaiter())
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool { return m.InFlight() == 0 },
		5*time.Second, 10*time.Millisecond)
}

func TestMonitor_CancelledWaitIsRetryable(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	w := NewWaiter()
	_, err := m.Start(exec.Command("/bin/sleep", "0.3"), w)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Wait(ctx, w)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, m.InFlight(), "abandoned wait must not kill or forget the process")

	exit, err := m.Wait(context.Background(), w)
	require.NoError(t, err)
	assert.True(t, exit.Status.Success())
}

// =============================================================================
// Misuse and failures
// =============================================================================

func TestMonitor_WaiterMisuse(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})
	ctx := context.Background()

	t.Run("not registered", func(t *testing.T) {
		_, err := m.Wait(ctx, NewWaiter())
		assert.ErrorIs(t, err, ErrWaiterNotRegistered)
	})

	t.Run("other monitor", func(t *testing.T) {
		other := newTestMonitor(t, Callbacks{})
		w := NewWaiter()
		_, err := other.Start(exec.Command("/bin/true"), w)
		require.NoError(t, err)

		_, err = m.Wait(ctx, w)
		assert.ErrorIs(t, err, ErrWaiterNotRegistered)
	})

	t.Run("registered twice", func(t *testing.T) {
		w := NewWaiter()
		_, err := m.Start(exec.Command("/bin/true"), w)
		require.NoError(t, err)

		_, err = m.Start(exec.Command("/bin/true"), w)
		assert.ErrorIs(t, err, ErrWaiterInUse)
	})

	t.Run("nil waiter", func(t *testing.T) {
		out, err := m.Start(exec.Command("/bin/true"), nil)
		assert.ErrorIs(t, err, ErrNilWaiter)
		assert.Nil(t, out)
		assert.Equal(t, 0, m.InFlight())

		_, err = m.Wait(ctx, nil)
		assert.ErrorIs(t, err, ErrNilWaiter)
	})

	t.Run("consumed", func(t *testing.T) {
		w := NewWaiter()
		_, err := m.Start(exec.Command("/bin/true"), w)
		require.NoError(t, err)

		_, err = m.Wait(ctx, w)
		require.NoError(t, err)
		_, err = m.Wait(ctx, w)
		assert.ErrorIs(t, err, ErrWaiterConsumed)
	})
}

func TestMonitor_SpawnError(t *testing.T) {
	var spawnErrors atomic.Int32
	m := newTestMonitor(t, Callbacks{
		OnSpawnError: func(error) { spawnErrors.Add(1) },
	})

	w := NewWaiter()
	out, err := m.Start(exec.Command("/nonexistent/runc"), w)

	require.Error(t, err)
	assert.Nil(t, out)
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.Equal(t, "/nonexistent/runc", spawnErr.Path)
	assert.Equal(t, 0, m.InFlight())
	assert.Equal(t, int32(1), spawnErrors.Load())

	_, err = m.Wait(context.Background(), w)
	assert.ErrorIs(t, err, ErrWaiterNotRegistered)
}

func TestMonitor_RejectsCancelHook(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := m.Start(exec.CommandContext(ctx, "/bin/true"), NewWaiter())
	assert.ErrorIs(t, err, ErrCancelHook)
}

func TestMonitor_Callbacks(t *testing.T) {
	var mu sync.Mutex
	var started []int
	exited := make(chan Exit, 1)

	m := newTestMonitor(t, Callbacks{
		OnStart: func(pid int) {
			mu.Lock()
			started = append(started, pid)
			mu.Unlock()
		},
		OnExit: func(e Exit, _ time.Duration) { exited <- e },
	})

	exit, _, _ := startAndJoin(t, m, shell("exit 3"))

	select {
	case e := <-exited:
		assert.Equal(t, exit, e)
	case <-time.After(5 * time.Second):
		t.Fatal("OnExit not called")
	}
	mu.Lock()
	assert.Equal(t, []int{exit.Pid}, started)
	mu.Unlock()
}

func TestMonitor_Shutdown(t *testing.T) {
	m := NewMonitor(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})

	w := NewWaiter()
	_, err := m.Start(exec.Command("/bin/sleep", "0.1"), w)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))
	assert.Equal(t, 0, m.InFlight())

	exit, err := m.Wait(ctx, w)
	require.NoError(t, err)
	assert.True(t, exit.Status.Success())

	_, err = m.Start(exec.Command("/bin/true"), NewWaiter())
	assert.ErrorIs(t, err, ErrMonitorClosed)
}

func TestMonitor_Run(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	var called bool
	comp, err := m.Run(context.Background(), shell("printf hi; exit 2"), func() { called = true })

	require.NoError(t, err)
	assert.True(t, called)
	assert.Greater(t, comp.Pid, 0)
	assert.Equal(t, 2, comp.Status.Code)
	assert.Equal(t, "hi", string(comp.Stdout))
	assert.False(t, comp.Success())
}

func TestMonitor_RunCutsOutputHeldByDescendant(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	// The backgrounded sleep inherits stdout and keeps it open.
	cmd := shell("printf ready; sleep 5 & exit 0")
	cmd.WaitDelay = 200 * time.Millisecond

	start := time.Now()
	comp, err := m.Run(context.Background(), cmd, nil)

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.True(t, comp.Success())
	assert.Equal(t, "ready", string(comp.Stdout))
}

func TestMonitor_RunWithoutWaitDelayWaitsForEOF(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})

	cmd := shell("(sleep 0.3; printf late) & exit 0")
	comp, err := m.Run(context.Background(), cmd, nil)

	require.NoError(t, err)
	assert.Equal(t, "late", string(comp.Stdout))
}

func TestMonitor_Signal(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w := NewWaiter()
	cmd := exec.Command("/bin/sleep", "10")
	_, err := m.Start(cmd, w)
	require.NoError(t, err)

	require.NoError(t, m.Signal(cmd.Process.Pid, syscall.SIGKILL, false))

	exit, err := m.Wait(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGKILL, exit.Status.Signal)

	// Once reaped the pid may belong to someone else.
	assert.ErrorIs(t, m.Signal(exit.Pid, syscall.SIGKILL, false), os.ErrProcessDone)
	assert.ErrorIs(t, m.Signal(exit.Pid, syscall.SIGKILL, true), os.ErrProcessDone)
}

func TestMonitor_SignalGroup(t *testing.T) {
	m := newTestMonitor(t, Callbacks{})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	w := NewWaiter()
	cmd := exec.Command("/bin/sleep", "10")
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	_, err := m.Start(cmd, w)
	require.NoError(t, err)

	require.NoError(t, m.Signal(cmd.Process.Pid, syscall.SIGTERM, true))

	exit, err := m.Wait(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, syscall.SIGTERM, exit.Status.Signal)
}
