package config

import (
	"github.com/spf13/pflag"
)

// flagKeys maps each command-line flag to its configuration key.
var flagKeys = map[string]string{
	"runc":            "runc.command",
	"root":            "runc.root",
	"debug":           "runc.debug",
	"runc-log":        "runc.log",
	"runc-log-format": "runc.log_format",
	"systemd-cgroup":  "runc.systemd_cgroup",
	"rootless":        "runc.rootless",
	"set-pgid":        "runc.set_pgid",
	"timeout":         "runc.timeout",
	"wait-delay":      "runc.wait_delay",
	"log-level":       "log.level",
	"log-format":      "log.format",
	"log-file":        "log.file",
	"verbose":         "log.verbose",
	"sync":            "sync",
	"metrics":         "metrics_addr",
	"watch-interval":  "watch_interval",
}

// RegisterFlags adds runcmon's global flags to fs, with defaults taken
// from DefaultConfig.
func RegisterFlags(fs *pflag.FlagSet) {
	d := DefaultConfig()

	// runc
	fs.String("runc", d.Runc.Command, "runc binary name or path")
	fs.String("root", d.Runc.Root, "runc state directory (--root)")
	fs.Bool("debug", d.Runc.Debug, "enable runc debug output")
	fs.String("runc-log", d.Runc.Log, "runc log file (--log)")
	fs.String("runc-log-format", d.Runc.LogFormat, "runc log format: text, json")
	fs.Bool("systemd-cgroup", d.Runc.SystemdCgroup, "use the systemd cgroup driver")
	fs.String("rootless", d.Runc.Rootless, "rootless mode: auto, true, false")
	fs.Bool("set-pgid", d.Runc.SetPgid, "start runc in its own process group")
	fs.Duration("timeout", d.Runc.Timeout, "per-command timeout for the concurrent client")
	fs.Duration("wait-delay", d.Runc.WaitDelay, "how long to read runc's output after it exits (negative = until EOF)")
	fs.Bool("sync", d.Sync, "use the blocking client instead of the shared monitor")

	// Observability
	fs.String("log-level", d.Log.Level, "log level: debug, info, warn, error")
	fs.String("log-format", d.Log.Format, "log format: json, text")
	fs.String("log-file", d.Log.File, "write logs to a rotated file instead of stderr")
	fs.BoolP("verbose", "v", d.Log.Verbose, "verbose logging (debug level, runc output replay)")
	fs.String("metrics", d.MetricsAddr, "Prometheus metrics address, e.g. 127.0.0.1:17092 (empty = disabled)")
	fs.Duration("watch-interval", d.WatchInterval, "refresh interval for watch")
}
