// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewCmdlineCmd() *cobra.Command {
	var jsonOut, noCache bool
	c := &cobra.Command{
		Use:                ":cmdline <module> [params]",
		Short:              "Print the command line a run would execute",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := parseModuleArgs(cmd, args, func() bool { return !noCache })
			if err != nil || inv == nil {
				return err
			}
			defer inv.app.close()

			if jsonOut {
				plan, err := inv.module.Plan()
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), plan)
			}
			line, err := inv.module.Cmdline()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
			return nil
		},
		ValidArgsFunction: completeModule,
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Print the full plan as JSON")
	c.Flags().BoolVar(&noCache, "no-cache", false, "Always request the module schema")
	return c
}
