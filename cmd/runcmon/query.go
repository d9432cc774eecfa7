package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/randomizedcoder/go-runc-monitor/internal/preflight"
	"github.com/randomizedcoder/go-runc-monitor/internal/runc"
	"github.com/randomizedcoder/go-runc-monitor/internal/stats"
	"github.com/randomizedcoder/go-runc-monitor/internal/tui"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			containers, err := a.runtime().List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, containers)
			}
			if len(containers) == 0 {
				fmt.Fprintln(out, "no containers")
				return nil
			}
			fmt.Fprintln(out, tui.ContainerTable(containers, time.Now()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func newPsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ps <container-id>",
		Short: "List the pids running in a container",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pids, err := a.runtime().Ps(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, pids)
			}
			for _, pid := range pids {
				fmt.Fprintln(out, pid)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print a JSON array")
	return cmd
}

func newStateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "state <container-id>",
		Short: "Print a container's state as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.runtime().State(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), c)
		},
	}
}

func newStatsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats <container-id>",
		Short: "Print one snapshot of a container's resource usage",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.runtime().Stats(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return writeJSON(out, s)
			}
			printStats(out, s)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw stats JSON")
	return cmd
}

func printStats(w io.Writer, s *runc.Stats) {
	fmt.Fprintln(w, tui.RenderKeyValue("CPU total", time.Duration(s.CPU.Usage.Total).String()))
	fmt.Fprintln(w, tui.RenderKeyValue("CPU throttled", time.Duration(s.CPU.Throttling.ThrottledTime).String()))
	fmt.Fprintln(w, tui.RenderKeyValue("Memory", memoryLine(s.Memory.Usage)))
	if s.Memory.Swap.Usage > 0 {
		fmt.Fprintln(w, tui.RenderKeyValue("Swap", memoryLine(s.Memory.Swap)))
	}
	pids := fmt.Sprintf("%d", s.Pids.Current)
	if s.Pids.Limit > 0 {
		pids += fmt.Sprintf(" / %d", s.Pids.Limit)
	}
	fmt.Fprintln(w, tui.RenderKeyValue("Pids", pids))
}

func memoryLine(m runc.MemoryEntry) string {
	line := stats.FormatBytes(m.Usage)
	if m.Limit > 0 && m.Limit < 1<<62 {
		line += " / " + stats.FormatBytes(m.Limit)
	}
	if m.Failcnt > 0 {
		line += fmt.Sprintf(" (%d failures)", m.Failcnt)
	}
	return line
}

func newVersionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print runcmon and runc versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "runcmon %s\n", version)

			v, err := a.runtime().Version(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "runc %s\n", v.Runc)
			if v.Commit != "" {
				fmt.Fprintf(out, "commit: %s\n", v.Commit)
			}
			if v.Spec != "" {
				fmt.Fprintf(out, "spec: %s\n", v.Spec)
			}
			return nil
		},
	}
}

func newWatchCmd(a *app) *cobra.Command {
	var summary bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Live view of containers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.orch.Watch(cmd.Context()); err != nil {
				return err
			}
			if summary {
				fmt.Fprint(cmd.OutOrStdout(), a.orch.Summary())
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&summary, "summary", true, "print command statistics on exit")
	return cmd
}

func newPreflightCmd(a *app) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "preflight",
		Short: "Check that this host can run runc commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := a.orch.Preflight(cmd.Context(), concurrency)
			preflight.PrintResults(cmd.OutOrStdout(), result)
			if !result.Passed {
				return fmt.Errorf("preflight checks failed")
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 64, "runc commands expected in flight")
	return cmd
}
