// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flowd-org/slicerwrap/internal/coredb"
	"github.com/flowd-org/slicerwrap/internal/events"
	"github.com/flowd-org/slicerwrap/internal/metrics"
	"github.com/flowd-org/slicerwrap/internal/wrapper"
)

type runFlags struct {
	jsonOut     bool
	events      bool
	noJournal   bool
	noCache     bool
	runID       string
	metricsFile string
}

func NewRunCmd() *cobra.Command {
	var flags runFlags
	c := &cobra.Command{
		Use:                "run <module> [params]",
		Short:              "Run a CLI module with typed parameters",
		Long:               "Run a CLI module. Its parameters become flags; run `slwrap run <module> --help` to list them.",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := parseModuleArgs(cmd, args, func() bool { return !flags.noCache })
			if err != nil || inv == nil {
				return err
			}
			defer inv.app.close()
			return runModule(cmd, inv, flags)
		},
		ValidArgsFunction: completeModule,
	}
	c.Flags().BoolVar(&flags.jsonOut, "json", false, "Print the outcome (and events with --events) as JSON")
	c.Flags().BoolVar(&flags.events, "events", false, "Stream run events to stderr")
	c.Flags().BoolVar(&flags.noJournal, "no-journal", false, "Do not record the run in the journal")
	c.Flags().BoolVar(&flags.noCache, "no-cache", false, "Always request the module schema")
	c.Flags().StringVar(&flags.runID, "run-id", "", "Run identifier (default random)")
	c.Flags().StringVar(&flags.metricsFile, "metrics-file", "", "Write Prometheus text metrics for this run to a file")
	return c
}

func runModule(cmd *cobra.Command, inv *moduleInvocation, flags runFlags) error {
	a, m := inv.app, inv.module
	ctx := cmd.Context()

	var sinks []events.Sink
	if flags.events {
		sinks = append(sinks, events.NewEmitter(cmd.ErrOrStderr(), flags.jsonOut))
	}
	opts := wrapper.RunOptions{
		RunID:     flags.runID,
		Stdout:    cmd.OutOrStdout(),
		Stderr:    cmd.ErrOrStderr(),
		Verbosity: a.verbosity,
	}
	if !flags.noJournal && !a.cfg.Journal.Disabled {
		db, err := a.openDB(ctx)
		if err != nil {
			a.logger.Warn("run journal unavailable", slog.String("error", err.Error()))
		} else {
			opts.Recorder = coredb.NewRuns(db)
			sinks = append(sinks, events.NewJournalSink(coredb.NewJournal(db, a.cfg.Journal.MaxBytes), a.logger))
		}
	}
	opts.Sink = events.NewCompositeSink(sinks...)

	outcome, err := m.Run(ctx, opts)
	if flags.metricsFile != "" {
		metrics.Default.SetBuildInfo(map[string]string{"version": Version, "commit": Commit})
		if werr := metrics.Default.WriteFile(flags.metricsFile); werr != nil {
			a.logger.Warn("write metrics", slog.String("path", flags.metricsFile), slog.String("error", werr.Error()))
		}
	}
	if flags.jsonOut {
		if encErr := writeJSON(cmd.OutOrStdout(), outcome); encErr != nil && err == nil {
			err = encErr
		}
	} else if err == nil {
		printOutputs(cmd, outcome)
	}
	if err != nil {
		if outcome.ExitCode > 0 {
			return &exitError{code: outcome.ExitCode, err: err}
		}
		return err
	}
	return nil
}

func printOutputs(cmd *cobra.Command, outcome wrapper.Outcome) {
	out := cmd.OutOrStdout()
	names := make([]string, 0, len(outcome.Outputs))
	for name, v := range outcome.Outputs {
		if v.IsDefined() {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return
	}
	sort.Strings(names)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTPUT\tVALUE")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%s\n", name, outcome.Outputs[name].String())
	}
	tw.Flush()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
