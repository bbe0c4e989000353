// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/flowd-org/slicerwrap/internal/argsloader"
	"github.com/flowd-org/slicerwrap/internal/types"
	"github.com/flowd-org/slicerwrap/internal/wrapper"
)

// moduleInvocation is a parsed `<module> [params]` command line.
type moduleInvocation struct {
	app    *app
	module *wrapper.Module
}

// parseModuleArgs handles commands with DisableFlagParsing. The module's
// flags are only known once its schema is loaded, so parsing runs in two
// phases. The first parses global and command flags up to the module name,
// which yields the config. The second parses the words after the module name
// against the module's generated flags plus the global and command flags
// they do not shadow. Remaining words fill positional parameters in index
// order. Global flags given after the module name reload the module when
// they change the config.
//
// A nil invocation with a nil error means help was printed.
func parseModuleArgs(cmd *cobra.Command, args []string, useCache func() bool) (*moduleInvocation, error) {
	boot := pflag.NewFlagSet(cmd.Name(), pflag.ContinueOnError)
	boot.SetInterspersed(false)
	boot.SetOutput(io.Discard)
	boot.AddFlagSet(cmd.InheritedFlags())
	boot.AddFlagSet(cmd.LocalFlags())
	if boot.Lookup("help") == nil {
		boot.BoolP("help", "h", false, "")
	}
	if err := boot.Parse(args); err != nil {
		return nil, err
	}
	if help, _ := boot.GetBool("help"); help {
		return nil, cmd.Help()
	}
	if boot.NArg() == 0 {
		return nil, errors.New("module name required")
	}
	name, tail := boot.Arg(0), boot.Args()[1:]

	inv, moduleFlags, err := loadModule(cmd, boot, name, useCache())
	if err != nil {
		return nil, err
	}
	before := changedGlobals(cmd, moduleFlags)
	full, err := parseTail(cmd, inv.module, moduleFlags, tail)
	if err == nil && changedGlobals(cmd, moduleFlags) != before {
		inv.app.close()
		if inv, moduleFlags, err = loadModule(cmd, boot, name, useCache()); err != nil {
			return nil, err
		}
		full, err = parseTail(cmd, inv.module, moduleFlags, tail)
	}
	if err != nil {
		inv.app.close()
		return nil, err
	}

	if moduleFlags.Lookup("help") == nil {
		if help, _ := full.GetBool("help"); help {
			inv.app.close()
			printModuleHelp(cmd, inv.module, moduleFlags)
			return nil, nil
		}
	}
	if err := assignPositionals(inv.module, full.Args()); err != nil {
		inv.app.close()
		return nil, err
	}
	return inv, nil
}

// loadModule resolves the config from flags and builds the module and its
// generated flags.
func loadModule(cmd *cobra.Command, flags *pflag.FlagSet, name string, useCache bool) (*moduleInvocation, *pflag.FlagSet, error) {
	a, err := loadApp(cmd, flags)
	if err != nil {
		return nil, nil, err
	}
	ctx := cmd.Context()
	opts, err := a.moduleOptions(ctx, useCache)
	if err != nil {
		a.close()
		return nil, nil, err
	}
	m, err := wrapper.New(ctx, name, opts)
	if err != nil {
		a.close()
		return nil, nil, err
	}
	moduleFlags := pflag.NewFlagSet(m.Name(), pflag.ContinueOnError)
	if err := argsloader.AttachFlags(moduleFlags, m.Interface()); err != nil {
		a.close()
		return nil, nil, err
	}
	return &moduleInvocation{app: a, module: m}, moduleFlags, nil
}

// parseTail parses the words after the module name. Module flags are added
// first so they shadow global and command flags of the same name.
func parseTail(cmd *cobra.Command, m *wrapper.Module, moduleFlags *pflag.FlagSet, tail []string) (*pflag.FlagSet, error) {
	full := pflag.NewFlagSet(m.Name(), pflag.ContinueOnError)
	full.SetOutput(io.Discard)
	full.AddFlagSet(moduleFlags)
	full.AddFlagSet(cmd.InheritedFlags())
	full.AddFlagSet(cmd.LocalFlags())
	if full.Lookup("help") == nil {
		full.BoolP("help", "h", false, "")
	}
	if err := full.Parse(tail); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Name(), err)
	}
	return full, nil
}

// changedGlobals lists the global and command flags that are set and not
// shadowed by a module flag.
func changedGlobals(cmd *cobra.Command, moduleFlags *pflag.FlagSet) string {
	var names []string
	visit := func(f *pflag.Flag) {
		if f.Changed && f.Name != "help" && moduleFlags.Lookup(f.Name) == nil {
			names = append(names, f.Name+"="+f.Value.String())
		}
	}
	cmd.InheritedFlags().VisitAll(visit)
	cmd.LocalFlags().VisitAll(visit)
	return strings.Join(names, "\x00")
}

// assignPositionals fills unset positional parameters in index order.
func assignPositionals(m *wrapper.Module, values []string) error {
	if len(values) == 0 {
		return nil
	}
	var slots []types.ParameterDescriptor
	for _, p := range m.Parameters() {
		if !p.IsPositional() {
			continue
		}
		if v, err := m.Get(p.Name); err == nil && v.IsDefined() {
			continue
		}
		slots = append(slots, p)
	}
	sort.SliceStable(slots, func(i, j int) bool { return *slots[i].Index < *slots[j].Index })
	if len(values) > len(slots) {
		return fmt.Errorf("%s: unexpected argument %q", m.Name(), values[len(slots)])
	}
	for i, text := range values {
		if err := m.Inputs().Parse(slots[i].Name, text); err != nil {
			return err
		}
	}
	return nil
}

func printModuleHelp(cmd *cobra.Command, m *wrapper.Module, moduleFlags *pflag.FlagSet) {
	out := cmd.OutOrStdout()
	st := newStyles(out)
	info := m.Info()
	fmt.Fprintf(out, "Usage:\n  %s %s [flags] [positional...]\n\n", cmd.CommandPath(), m.Name())
	if info.Title != "" {
		fmt.Fprintln(out, info.Title)
	}
	if desc := strings.Join(strings.Fields(info.Description), " "); desc != "" {
		fmt.Fprintln(out, desc)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, st.heading.Render("Module flags:"))
	fmt.Fprint(out, moduleFlags.FlagUsages())
	if global := cmd.InheritedFlags().FlagUsages(); global != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, st.heading.Render("Global flags:"))
		fmt.Fprint(out, global)
	}
}
