// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"io"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/flowd-org/slicerwrap/internal/argsloader"
	"github.com/flowd-org/slicerwrap/internal/indexer"
	"github.com/flowd-org/slicerwrap/internal/wrapper"
)

// completeModule completes module names, then the flags and enumeration
// values of the chosen module.
func completeModule(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	boot := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	boot.ParseErrorsWhitelist.UnknownFlags = true
	boot.SetInterspersed(false)
	boot.SetOutput(io.Discard)
	boot.AddFlagSet(cmd.InheritedFlags())
	boot.AddFlagSet(cmd.LocalFlags())
	_ = boot.Parse(args)

	a, err := loadApp(cmd, boot)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	defer a.close()

	if boot.NArg() == 0 {
		res, err := indexer.Discover(a.cfg.PluginsDir)
		if err != nil {
			return nil, cobra.ShellCompDirectiveNoFileComp
		}
		var out []string
		for _, mod := range res.Modules {
			if strings.HasPrefix(mod.Name, toComplete) {
				out = append(out, mod.Name)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}

	opts, err := a.moduleOptions(cmd.Context(), true)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	m, err := wrapper.New(cmd.Context(), boot.Arg(0), opts)
	if err != nil {
		return nil, cobra.ShellCompDirectiveError
	}
	return argsloader.Complete(m.Interface(), boot.Args()[1:], toComplete)
}
