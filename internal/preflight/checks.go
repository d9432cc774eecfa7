// Package preflight provides startup validation checks.
package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
)

// Check represents the result of a single preflight check.
type Check struct {
	Name     string // Name of the check
	Required int    // Required value (if applicable)
	Actual   int    // Actual value found
	Passed   bool   // Whether the check passed
	Warning  bool   // True if it's a warning (non-fatal)
	Message  string // Additional context
}

// Result holds the results of all preflight checks.
type Result struct {
	Checks []Check
	Passed bool
}

// String returns a human-readable summary of the check.
func (c Check) String() string {
	status := "✓"
	if !c.Passed {
		status = "✗"
	} else if c.Warning {
		status = "⚠"
	}

	if c.Required > 0 {
		return fmt.Sprintf("  %s %s: %d available (need %d)", status, c.Name, c.Actual, c.Required)
	}
	return fmt.Sprintf("  %s %s: %s", status, c.Name, c.Message)
}

// Versioner reports the runc version. *runc.Client and *runc.AsyncClient
// both satisfy it.
type Versioner interface {
	Version(ctx context.Context) (runc.Version, error)
}

// Options configures RunAll.
type Options struct {
	// Runc is queried for its version; nil fails the runc check.
	Runc Versioner

	// Root is the runc state directory; empty means runc's default.
	Root string

	// Concurrency is the number of runc commands expected in flight.
	Concurrency int
}

// fdsPerCommand covers the stdin/stdout/stderr pipe pairs of one command.
const fdsPerCommand = 6

// RunAll executes all preflight checks.
func RunAll(ctx context.Context, opts Options) *Result {
	result := &Result{
		Checks: make([]Check, 0, 5),
		Passed: true,
	}

	add := func(c Check) {
		result.Checks = append(result.Checks, c)
		if !c.Passed {
			result.Passed = false
		}
	}

	add(checkFileDescriptors(opts.Concurrency))
	add(checkProcessLimit(opts.Concurrency))
	add(checkRunc(ctx, opts.Runc))
	add(checkRoot(opts.Root))
	add(checkCgroupV2("/sys/fs/cgroup/cgroup.controllers"))

	return result
}

// checkFileDescriptors verifies the soft RLIMIT_NOFILE covers every
// concurrent command's pipes plus monitor overhead.
func checkFileDescriptors(concurrency int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &limit); err != nil {
		return Check{
			Name:    "file_descriptors",
			Passed:  true,
			Warning: true,
			Message: fmt.Sprintf("unable to read limit: %v", err),
		}
	}

	required := concurrency*fdsPerCommand + 64
	actual := clampInt(limit.Cur)

	return Check{
		Name:     "file_descriptors",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -n %d (need %d for %d concurrent commands)", actual, required, concurrency),
	}
}

// checkProcessLimit verifies the soft RLIMIT_NPROC leaves room for every
// concurrent runc process.
func checkProcessLimit(concurrency int) Check {
	var limit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NPROC, &limit); err != nil {
		return Check{
			Name:    "process_limit",
			Passed:  true,
			Warning: true,
			Message: "unable to check (non-Linux or restricted)",
		}
	}

	required := concurrency + 50
	actual := clampInt(limit.Cur)

	return Check{
		Name:     "process_limit",
		Required: required,
		Actual:   actual,
		Passed:   actual >= required,
		Message:  fmt.Sprintf("ulimit -u %d (need %d)", actual, required),
	}
}

// checkRunc verifies runc answers --version.
func checkRunc(ctx context.Context, v Versioner) Check {
	if v == nil {
		return Check{
			Name:    "runc",
			Passed:  false,
			Message: "runc binary not found",
		}
	}

	version, err := v.Version(ctx)
	if err != nil {
		return Check{
			Name:    "runc",
			Passed:  false,
			Message: fmt.Sprintf("runc --version failed: %v", err),
		}
	}

	msg := "version " + orUnknown(version.Runc)
	if version.Spec != "" {
		msg += ", spec " + version.Spec
	}
	return Check{
		Name:    "runc",
		Passed:  true,
		Message: msg,
	}
}

// checkRoot verifies the state directory, or its nearest existing parent,
// is a writable directory.
func checkRoot(root string) Check {
	if root == "" {
		return Check{
			Name:    "runc_root",
			Passed:  true,
			Message: "using runc default",
		}
	}

	dir := root
	for {
		info, err := os.Stat(dir)
		if err == nil {
			if !info.IsDir() {
				return Check{
					Name:    "runc_root",
					Passed:  false,
					Message: fmt.Sprintf("%s is not a directory", dir),
				}
			}
			break
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if err := unix.Access(dir, unix.W_OK); err != nil {
		return Check{
			Name:    "runc_root",
			Passed:  false,
			Message: fmt.Sprintf("%s not writable: %v", dir, err),
		}
	}

	msg := root
	if dir != root {
		msg = fmt.Sprintf("%s (will be created under %s)", root, dir)
	}
	return Check{
		Name:    "runc_root",
		Passed:  true,
		Message: msg,
	}
}

// checkCgroupV2 warns when the unified hierarchy is not mounted.
func checkCgroupV2(controllersPath string) Check {
	data, err := os.ReadFile(controllersPath)
	if err != nil {
		return Check{
			Name:    "cgroup_v2",
			Passed:  true,
			Warning: true,
			Message: "unified hierarchy not found (cgroup v1 or restricted)",
		}
	}

	controllers := strings.Fields(string(data))
	return Check{
		Name:    "cgroup_v2",
		Passed:  true,
		Message: fmt.Sprintf("controllers: %s", orUnknown(strings.Join(controllers, " "))),
	}
}

func clampInt(v uint64) int {
	const maxInt = int(^uint(0) >> 1)
	if v > uint64(maxInt) {
		return maxInt
	}
	return int(v)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// PrintResults writes the preflight check results to w.
func PrintResults(w io.Writer, result *Result) {
	fmt.Fprintln(w, "Preflight checks:")
	for _, check := range result.Checks {
		fmt.Fprintln(w, check.String())
		if !check.Passed {
			fmt.Fprintf(w, "    Fix: %s\n", suggestFix(check.Name))
		}
	}
	fmt.Fprintln(w)
}

// suggestFix returns a suggestion for fixing a failed check.
func suggestFix(name string) string {
	switch name {
	case "file_descriptors":
		return "ulimit -n 8192 (or edit /etc/security/limits.conf)"
	case "process_limit":
		return "ulimit -u 4096 (or edit /etc/security/limits.conf)"
	case "runc":
		return "install runc or pass --runc /path/to/runc"
	case "runc_root":
		return "pass a writable --root, or run as root"
	default:
		return "see documentation"
	}
}
