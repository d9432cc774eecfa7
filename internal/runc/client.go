package runc

import (
	"github.com/randomizedcoder/go-runc-monitor/internal/process"
)

// Client runs each verb with process.Launcher: the calling goroutine blocks
// for the life of the runc process and no state is shared between calls.
// Config.Timeout is not applied; bound calls with the context instead.
type Client struct {
	*core
}

// NewClient resolves the runc binary and global arguments from cfg.
func NewClient(cfg *Config) (*Client, error) {
	c, err := newCore(cfg, process.Launcher{}, 0)
	if err != nil {
		return nil, err
	}
	return &Client{core: c}, nil
}
