// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flowd-org/slicerwrap/internal/coredb"
	"github.com/flowd-org/slicerwrap/internal/events"
)

func NewRunsCmd() *cobra.Command {
	var (
		jsonOut bool
		stats   bool
		limit   int
	)
	c := &cobra.Command{
		Use:   ":runs [run-id]",
		Short: "List recorded runs, or show one run and its events",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.close()
			ctx := cmd.Context()
			db, err := a.openDB(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if stats {
				st, err := coredb.CollectStorageStats(ctx, db)
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(out, st)
				}
				printStats(out, st)
				return nil
			}

			runs := coredb.NewRuns(db)
			if len(args) == 1 {
				run, err := runs.Get(ctx, args[0])
				if err != nil {
					return err
				}
				var evs []events.RunEvent
				journal := coredb.NewJournal(db, a.cfg.Journal.MaxBytes)
				err = journal.ForEach(ctx, run.ID, 0, func(e coredb.JournalEntry) error {
					ev, err := events.DecodeEntry(e)
					if err != nil {
						return err
					}
					evs = append(evs, ev)
					return nil
				})
				if err != nil {
					return err
				}
				if jsonOut {
					return writeJSON(out, struct {
						Run    coredb.Run        `json:"run"`
						Events []events.RunEvent `json:"events"`
					}{run, evs})
				}
				printRun(out, run, evs)
				return nil
			}

			list, err := runs.List(ctx, limit)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(out, list)
			}
			if len(list) == 0 {
				fmt.Fprintln(out, "(no runs recorded)")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tMODULE\tSTATUS\tEXIT\tSTARTED\tDURATION")
			for _, r := range list {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					r.ID, r.Module, r.Status, exitText(r.ExitCode),
					r.StartedAt.Local().Format(time.DateTime), duration(r))
			}
			return tw.Flush()
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	c.Flags().BoolVar(&stats, "stats", false, "Show data store usage instead of runs")
	c.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")
	return c
}

func exitText(code *int) string {
	if code == nil {
		return "-"
	}
	return fmt.Sprint(*code)
}

func duration(r coredb.Run) string {
	if r.FinishedAt == nil {
		return "-"
	}
	return r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond).String()
}

func printRun(out io.Writer, r coredb.Run, evs []events.RunEvent) {
	fmt.Fprintf(out, "Run:      %s\n", r.ID)
	fmt.Fprintf(out, "Module:   %s\n", r.Module)
	fmt.Fprintf(out, "Status:   %s (exit %s)\n", r.Status, exitText(r.ExitCode))
	fmt.Fprintf(out, "Started:  %s\n", r.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Duration: %s\n", duration(r))
	fmt.Fprintf(out, "Command:  %s\n", r.Cmdline)
	if r.Error != "" {
		fmt.Fprintf(out, "Error:    %s\n", r.Error)
	}
	if len(r.Outputs) > 0 {
		names := make([]string, 0, len(r.Outputs))
		for name := range r.Outputs {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Fprintln(out, "Outputs:")
		for _, name := range names {
			fmt.Fprintf(out, "  %s = %s\n", name, r.Outputs[name])
		}
	}
	if len(evs) == 0 {
		return
	}
	fmt.Fprintln(out, "Events:")
	for _, ev := range evs {
		line := fmt.Sprintf("  %s %s", ev.Timestamp.Local().Format(time.TimeOnly), ev.Type)
		if ev.Channel != "" {
			line += " [" + ev.Channel + "]"
		}
		if ev.Message != "" {
			line += " " + ev.Message
		}
		fmt.Fprintln(out, line)
	}
}

func sizeText(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(n))
}

func printStats(out io.Writer, st coredb.StorageStats) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "Path\t%s\n", st.Path)
	fmt.Fprintf(tw, "Healthy\t%t\n", st.OK)
	fmt.Fprintf(tw, "Bytes used\t%s / %s\n", sizeText(st.BytesUsed), sizeText(st.MaxBytes))
	fmt.Fprintf(tw, "Journal bytes\t%s / %s\n", sizeText(st.JournalBytes), sizeText(st.JournalMaxBytes))
	fmt.Fprintf(tw, "Eviction active\t%t\n", st.EvictionActive)
	fmt.Fprintf(tw, "Runs\t%d\n", st.Runs)
	fmt.Fprintf(tw, "Cached schemas\t%d\n", st.CachedSchemas)
	fmt.Fprintf(tw, "Schema version\t%d\n", st.SchemaVersion)
	tw.Flush()
}
