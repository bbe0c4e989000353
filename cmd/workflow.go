// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flowd-org/slicerwrap/internal/workflow"
	"github.com/flowd-org/slicerwrap/internal/workflow/fmri"
)

func NewWorkflowCmd() *cobra.Command {
	var format string
	c := &cobra.Command{
		Use:   ":workflow",
		Short: "Build, validate and export processing workflows",
	}
	c.PersistentFlags().StringVar(&format, "format", "text", "Output format (text|json|yaml)")

	var (
		fContrasts bool
		fslVersion string
	)
	modelfit := &cobra.Command{
		Use:   "modelfit [name]",
		Short: "First-level FSL model estimation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := fslVersion
			if !cmd.Flags().Changed("fsl-version") {
				version = fmri.FSLVersion()
			}
			wf, err := fmri.ModelFit(nameArg(args, "modelfit"), fContrasts, version)
			if err != nil {
				return err
			}
			return exportWorkflow(cmd, wf, format)
		},
	}
	modelfit.Flags().BoolVar(&fContrasts, "f-contrasts", false, "Include F contrasts")
	modelfit.Flags().StringVar(&fslVersion, "fsl-version", "", "FSL version deciding the contrast stage (default from $FSLDIR/etc/fslversion)")

	overlay := &cobra.Command{
		Use:   "overlay [name]",
		Short: "Thresholded statistic overlays and slice renders",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := fmri.Overlay(nameArg(args, "overlay"))
			if err != nil {
				return err
			}
			return exportWorkflow(cmd, wf, format)
		},
	}

	fixedfx := &cobra.Command{
		Use:   "fixedfx [name]",
		Short: "Fixed-effects combination of first-level runs",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wf, err := fmri.FixedEffects(nameArg(args, "fixedfx"))
			if err != nil {
				return err
			}
			return exportWorkflow(cmd, wf, format)
		},
	}

	var noCache bool
	validate := &cobra.Command{
		Use:   "validate <file>",
		Short: "Load a YAML or TOML workflow definition and check its wiring",
		Long: "Load a workflow definition. Node interfaces may be identity, merge, " +
			"function:<name>, fsl.<Tool> or slicer:<Module>; slicer nodes fetch the " +
			"module schema.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, nil)
			if err != nil {
				return err
			}
			defer a.close()
			opts, err := a.moduleOptions(cmd.Context(), !noCache)
			if err != nil {
				return err
			}
			wf, err := workflow.LoadFile(cmd.Context(), args[0], a.resolver(opts, fmri.Lookup))
			if err != nil {
				return err
			}
			return exportWorkflow(cmd, wf, format)
		},
	}
	validate.Flags().BoolVar(&noCache, "no-cache", false, "Always request module schemas")

	tools := &cobra.Command{
		Use:   "tools",
		Short: "List the FSL tool interfaces known to workflow definitions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			for _, name := range fmri.Tools() {
				iface, _ := fmri.Lookup(name)
				fmt.Fprintf(out, "%s\n  in:  %s\n  out: %s\n", iface.InterfaceName(),
					strings.Join(iface.InputFields(), ", "),
					strings.Join(iface.OutputFields(), ", "))
			}
			return nil
		},
	}

	c.AddCommand(modelfit, overlay, fixedfx, validate, tools)
	return c
}

func nameArg(args []string, def string) string {
	if len(args) > 0 {
		return args[0]
	}
	return def
}

func exportWorkflow(cmd *cobra.Command, wf *workflow.Workflow, format string) error {
	g, err := wf.Export()
	if err != nil {
		return err
	}
	data, err := g.Encode(format)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
