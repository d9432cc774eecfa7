package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. RUNCMON_RUNC_ROOT.
const EnvPrefix = "RUNCMON"

// Load builds the configuration from, lowest priority first: defaults, the
// YAML file at configPath (optional), RUNCMON_* environment variables and
// flags in fs that were set explicitly. The result is validated.
func Load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so environment overrides apply to them.
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("runc.command", d.Runc.Command)
	v.SetDefault("runc.root", d.Runc.Root)
	v.SetDefault("runc.debug", d.Runc.Debug)
	v.SetDefault("runc.log", d.Runc.Log)
	v.SetDefault("runc.log_format", d.Runc.LogFormat)
	v.SetDefault("runc.systemd_cgroup", d.Runc.SystemdCgroup)
	v.SetDefault("runc.rootless", d.Runc.Rootless)
	v.SetDefault("runc.set_pgid", d.Runc.SetPgid)
	v.SetDefault("runc.timeout", d.Runc.Timeout)
	v.SetDefault("runc.wait_delay", d.Runc.WaitDelay)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.max_size", d.Log.MaxSize)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age", d.Log.MaxAge)
	v.SetDefault("log.verbose", d.Log.Verbose)

	v.SetDefault("sync", d.Sync)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("watch_interval", d.WatchInterval)
}
