package runc

import (
	"context"

	specs "github.com/opencontainers/runtime-spec/specs-go"

	"github.com/randomizedcoder/go-runc-monitor/internal/process"
)

// AsyncClient runs each verb through a shared process.Monitor, so any
// number of calls may be in flight at once. Each call is bounded by
// Config.Timeout (DefaultTimeout when zero); a call that times out kills
// its runc process and returns the context error.
type AsyncClient struct {
	*core
	monitor *process.Monitor
}

// NewAsyncClient creates a client that spawns through monitor.
// The monitor is owned by the caller and may be shared by several clients.
func NewAsyncClient(cfg *Config, monitor *process.Monitor) (*AsyncClient, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c, err := newCore(cfg, monitor, timeout)
	if err != nil {
		return nil, err
	}
	return &AsyncClient{core: c, monitor: monitor}, nil
}

// Exec is not implemented on the concurrent client.
func (c *AsyncClient) Exec(ctx context.Context, id string, spec *specs.Process, opts *ExecOpts) error {
	return &UnimplementedError{Verb: "exec"}
}

// Monitor returns the monitor this client spawns through.
func (c *AsyncClient) Monitor() *process.Monitor {
	return c.monitor
}
