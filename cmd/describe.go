// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/flowd-org/slicerwrap/internal/types"
	"github.com/flowd-org/slicerwrap/internal/wrapper"
)

func NewDescribeCmd() *cobra.Command {
	var jsonOut, noCache bool
	c := &cobra.Command{
		Use:   ":describe <module>",
		Short: "Show a module's metadata and parameters",
		Args:  cobra.ExactArgs(1),
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
			m, err := wrapper.New(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			if jsonOut {
				return writeJSON(cmd.OutOrStdout(), m.Interface().Schema())
			}
			describeModule(cmd.OutOrStdout(), m)
			return nil
		},
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) > 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return completeModule(cmd, args, toComplete)
		},
	}
	c.Flags().BoolVar(&jsonOut, "json", false, "Output the compiled schema as JSON")
	c.Flags().BoolVar(&noCache, "no-cache", false, "Always request the module schema")
	return c
}

func describeModule(out io.Writer, m *wrapper.Module) {
	st := newStyles(out)
	info := m.Info()
	fmt.Fprintf(out, "%s %s\n", st.heading.Render(m.Name()), st.muted.Render("("+m.Executable()+")"))
	for _, kv := range [][2]string{
		{"Title", info.Title},
		{"Category", info.Category},
		{"Version", info.Version},
		{"Contributor", info.Contributor},
		{"License", info.License},
		{"Documentation", info.DocumentationURL},
	} {
		if kv[1] != "" {
			fmt.Fprintf(out, "%-14s %s\n", kv[0]+":", kv[1])
		}
	}
	if desc := strings.Join(strings.Fields(info.Description), " "); desc != "" {
		fmt.Fprintf(out, "\n%s\n", desc)
	}

	byGroup := make(map[string][]types.ParameterDescriptor)
	for _, p := range m.Parameters() {
		byGroup[p.Group] = append(byGroup[p.Group], p)
	}
	for _, g := range info.Groups {
		params := byGroup[g.Label]
		if len(params) == 0 {
			continue
		}
		title := g.Label
		if g.Advanced {
			title += " (advanced)"
		}
		fmt.Fprintf(out, "\n%s\n", st.heading.Render(title))
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tKIND\tROLE\tFLAG\tDEFAULT")
		for _, p := range params {
			flag := p.Flag
			if p.IsPositional() {
				flag = fmt.Sprintf("[%d]", *p.Index)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Name, p.Kind, p.Role, flag, p.Default)
		}
		tw.Flush()
	}
}
