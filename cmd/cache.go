// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/flowd-org/slicerwrap/internal/coredb"
	"github.com/flowd-org/slicerwrap/internal/wrapper"
)

func NewCacheCmd() *cobra.Command {
	var (
		jsonOut  bool
		clearAll bool
	)
	c := &cobra.Command{
		Use:   ":cache [module...]",
		Short: "List cached module schemas, or drop them",
		Long: "Without arguments, list cached schemas. With --clear, drop the named " +
			"modules' schemas, or every schema when no module is named.",
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
			cache := coredb.NewSchemaCache(db, a.cfg.Cache.MaxBytes)
			out := cmd.OutOrStdout()

			if clearAll {
				if len(args) == 0 {
					n, err := cache.Clear(ctx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "removed %d cached schema(s)\n", n)
					return nil
				}
				for _, name := range args {
					exe := wrapper.Resolve(name, a.cfg.PluginsDir, len(a.launcher) > 0)
					ok, err := cache.Delete(ctx, exe)
					if err != nil {
						return err
					}
					if ok {
						fmt.Fprintf(out, "removed %s\n", exe)
					} else {
						fmt.Fprintf(out, "%s was not cached\n", exe)
					}
				}
				return nil
			}

			entries, err := cache.List(ctx)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(out, entries)
			}
			if len(entries) == 0 {
				fmt.Fprintln(out, "(schema cache is empty)")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "EXECUTABLE\tSIZE\tCACHED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", e.Executable, humanize.IBytes(uint64(e.Size)), humanize.Time(e.Timestamp))
			}
			return tw.Flush()
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	c.Flags().BoolVar(&clearAll, "clear", false, "Remove cached schemas")
	return c
}
