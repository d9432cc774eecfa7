package config

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Runc.Command == "" {
		errs = append(errs, ValidationError{
			Field:   "runc.command",
			Message: "must not be empty",
		})
	}

	validRuncFormats := map[string]bool{"text": true, "json": true}
	if !validRuncFormats[cfg.Runc.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "runc.log_format",
			Message: fmt.Sprintf("must be 'text' or 'json' (got %q)", cfg.Runc.LogFormat),
		})
	}

	validRootless := map[string]bool{"auto": true, "true": true, "false": true}
	if !validRootless[cfg.Runc.Rootless] {
		errs = append(errs, ValidationError{
			Field:   "runc.rootless",
			Message: fmt.Sprintf("must be one of: auto, true, false (got %q)", cfg.Runc.Rootless),
		})
	}

	// Timeout only bounds the concurrent client, but must never be negative.
	if cfg.Runc.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "runc.timeout",
			Message: "must not be negative",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.Log.Format] {
		errs = append(errs, ValidationError{
			Field:   "log.format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.Log.Format),
		})
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("must be one of: debug, info, warn, error (got %q)", cfg.Log.Level),
		})
	}

	if cfg.Log.File != "" && cfg.Log.MaxSize <= 0 {
		errs = append(errs, ValidationError{
			Field:   "log.max_size",
			Message: "must be positive when log.file is set",
		})
	}

	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			errs = append(errs, ValidationError{
				Field:   "metrics_addr",
				Message: err.Error(),
			})
		}
	}

	if cfg.WatchInterval < 100*time.Millisecond {
		errs = append(errs, ValidationError{
			Field:   "watch_interval",
			Message: "must be at least 100ms",
		})
	}

	return errors.Join(errs...)
}
