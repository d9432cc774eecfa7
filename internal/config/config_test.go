package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"Runc.Command", cfg.Runc.Command, "runc"},
		{"Runc.LogFormat", cfg.Runc.LogFormat, "text"},
		{"Runc.Rootless", cfg.Runc.Rootless, "auto"},
		{"Runc.Timeout", cfg.Runc.Timeout, 5 * time.Second},
		{"Runc.WaitDelay", cfg.Runc.WaitDelay, time.Second},
		{"Log.Level", cfg.Log.Level, "info"},
		{"Log.Format", cfg.Log.Format, "text"},
		{"MetricsAddr", cfg.MetricsAddr, ""},
		{"Sync", cfg.Sync, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	require.NoError(t, Validate(cfg))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"empty command", func(c *Config) { c.Runc.Command = "" }, "runc.command"},
		{"bad runc format", func(c *Config) { c.Runc.LogFormat = "xml" }, "runc.log_format"},
		{"bad rootless", func(c *Config) { c.Runc.Rootless = "maybe" }, "runc.rootless"},
		{"negative timeout", func(c *Config) { c.Runc.Timeout = -time.Second }, "runc.timeout"},
		{"bad log format", func(c *Config) { c.Log.Format = "yaml" }, "log.format"},
		{"bad log level", func(c *Config) { c.Log.Level = "trace" }, "log.level"},
		{"file without size", func(c *Config) { c.Log.File = "/tmp/x.log"; c.Log.MaxSize = 0 }, "log.max_size"},
		{"bad metrics addr", func(c *Config) { c.MetricsAddr = "nohostport" }, "metrics_addr"},
		{"fast watch", func(c *Config) { c.WatchInterval = time.Millisecond }, "watch_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)

			var ve ValidationError
			require.True(t, errors.As(err, &ve), "error %v is not a ValidationError", err)
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidate_Aggregates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Runc.Command = ""
	cfg.Log.Format = "yaml"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runc.command")
	assert.Contains(t, err.Error(), "log.format")
}

func TestValidate_RootlessProperty(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		mode := rapid.OneOf(
			rapid.SampledFrom([]string{"auto", "true", "false"}),
			rapid.String(),
		).Draw(rt, "mode")

		cfg := DefaultConfig()
		cfg.Runc.Rootless = mode
		err := Validate(cfg)

		valid := mode == "auto" || mode == "true" || mode == "false"
		if valid && err != nil {
			rt.Fatalf("Validate(rootless=%q) = %v, want nil", mode, err)
		}
		if !valid && err == nil {
			rt.Fatalf("Validate(rootless=%q) = nil, want error", mode)
		}
	})
}

func TestRootlessMode(t *testing.T) {
	assert.Nil(t, RuncConfig{Rootless: "auto"}.RootlessMode())
	assert.Nil(t, RuncConfig{}.RootlessMode())

	yes := RuncConfig{Rootless: "true"}.RootlessMode()
	require.NotNil(t, yes)
	assert.True(t, *yes)

	no := RuncConfig{Rootless: "false"}.RootlessMode()
	require.NotNil(t, no)
	assert.False(t, *no)
}

// =============================================================================
// Load
// =============================================================================

func newFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(args))
	return fs
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", newFlags(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "runcmon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
runc:
  root: /run/from-file
  timeout: 9s
  debug: true
log:
  level: warn
metrics_addr: 127.0.0.1:9999
`), 0o644))

	t.Setenv("RUNCMON_RUNC_TIMEOUT", "3s")
	t.Setenv("RUNCMON_LOG_LEVEL", "error")

	cfg, err := Load(path, newFlags(t, "--log-level", "debug", "--rootless", "false"))
	require.NoError(t, err)

	assert.Equal(t, "/run/from-file", cfg.Runc.Root, "file value")
	assert.True(t, cfg.Runc.Debug, "file value")
	assert.Equal(t, "127.0.0.1:9999", cfg.MetricsAddr, "file value")
	assert.Equal(t, 3*time.Second, cfg.Runc.Timeout, "env beats file")
	assert.Equal(t, "debug", cfg.Log.Level, "flag beats env")
	assert.Equal(t, "false", cfg.Runc.Rootless, "flag beats default")
	assert.Equal(t, "runc", cfg.Runc.Command, "default")
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load("", newFlags(t, "--runc-log-format", "xml"))
	var ve ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
	assert.Error(t, err)
}
