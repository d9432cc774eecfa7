// Package config provides configuration management for runcmon.
package config

import "time"

// Config holds all configuration options for runcmon.
type Config struct {
	Runc RuncConfig `mapstructure:"runc" json:"runc"`
	Log  LogConfig  `mapstructure:"log" json:"log"`

	// Sync selects the blocking client instead of the shared monitor.
	Sync bool `mapstructure:"sync" json:"sync"`

	// Observability
	MetricsAddr   string        `mapstructure:"metrics_addr" json:"metrics_addr"` // empty = disabled
	WatchInterval time.Duration `mapstructure:"watch_interval" json:"watch_interval"`
}

// RuncConfig holds the global runc options.
type RuncConfig struct {
	Command       string        `mapstructure:"command" json:"command"`
	Root          string        `mapstructure:"root" json:"root"`
	Debug         bool          `mapstructure:"debug" json:"debug"`
	Log           string        `mapstructure:"log" json:"log"`
	LogFormat     string        `mapstructure:"log_format" json:"log_format"` // text, json
	SystemdCgroup bool          `mapstructure:"systemd_cgroup" json:"systemd_cgroup"`
	Rootless      string        `mapstructure:"rootless" json:"rootless"` // auto, true, false
	SetPgid       bool          `mapstructure:"set_pgid" json:"set_pgid"`
	Timeout       time.Duration `mapstructure:"timeout" json:"timeout"`
	WaitDelay     time.Duration `mapstructure:"wait_delay" json:"wait_delay"`
}

// LogConfig configures runcmon's own logging.
type LogConfig struct {
	Level      string `mapstructure:"level" json:"level"`
	Format     string `mapstructure:"format" json:"format"` // json, text
	File       string `mapstructure:"file" json:"file"`     // empty = stderr
	MaxSize    int    `mapstructure:"max_size" json:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" json:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" json:"max_age"`
	Verbose    bool   `mapstructure:"verbose" json:"verbose"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Runc: RuncConfig{
			Command:   "runc",
			LogFormat: "text",
			Rootless:  "auto",
			Timeout:   5 * time.Second,
			WaitDelay: time.Second,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     28,
		},
		WatchInterval: time.Second,
	}
}

// RootlessMode returns nil for "auto", or a pointer to the explicit setting.
func (c RuncConfig) RootlessMode() *bool {
	switch c.Rootless {
	case "true":
		v := true
		return &v
	case "false":
		v := false
		return &v
	default:
		return nil
	}
}
