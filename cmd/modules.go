// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flowd-org/slicerwrap/internal/indexer"
)

func NewModulesCmd() *cobra.Command {
	var jsonOut bool
	c := &cobra.Command{
		Use:   ":modules",
		Short: "List CLI modules found in the plugins directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp(cmd, nil)
			if err != nil {
				return err
			}
			if a.cfg.PluginsDir == "" {
				return errors.New("no plugins directory configured (set plugins_dir or --plugins-dir)")
			}
			res, err := indexer.Discover(a.cfg.PluginsDir)
			if err != nil {
				return err
			}

			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), res)
			}

			out := cmd.OutOrStdout()
			if len(res.Modules) == 0 {
				fmt.Fprintf(out, "(no modules found under %s)\n", a.cfg.PluginsDir)
			} else {
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "NAME\tSIZE\tPATH")
				for _, mod := range res.Modules {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", mod.Name, humanize.IBytes(uint64(mod.Size)), mod.Path)
				}
				tw.Flush()
			}

			for _, derr := range res.Errors {
				fmt.Fprintf(cmd.ErrOrStderr(), "[warn] %s: %s\n", derr.Path, derr.Err)
			}
			return nil
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Output modules as JSON")
	return c
}
