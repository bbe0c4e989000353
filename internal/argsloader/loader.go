// SPDX-License-Identifier: AGPL-3.0-or-later

// Package argsloader exposes the inputs of a dynamic interface as command-line
// flags.
package argsloader

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/flowd-org/slicerwrap/internal/dyniface"
	"github.com/flowd-org/slicerwrap/internal/types"
)

// fieldValue binds a pflag.Value to one input field.
type fieldValue struct {
	inputs *dyniface.Container
	desc   types.ParameterDescriptor
}

func (f *fieldValue) String() string {
	if f.inputs == nil {
		return ""
	}
	v, _ := f.inputs.Get(f.desc.Name)
	if !v.IsDefined() {
		return ""
	}
	return v.String()
}

func (f *fieldValue) Set(s string) error {
	return f.inputs.Parse(f.desc.Name, s)
}

func (f *fieldValue) Type() string {
	switch {
	case f.desc.IsOutputToggle():
		return "bool|path"
	case f.desc.Kind.Scalar == types.ScalarBoolean && !f.desc.Kind.Vector:
		return "bool"
	default:
		return f.desc.Kind.String()
	}
}

// AttachFlags registers one flag per input field of iface. Flags already
// defined on fs are reported as errors.
func AttachFlags(fs *pflag.FlagSet, iface *dyniface.Interface) error {
	for _, name := range iface.Inputs.Names() {
		desc, err := iface.Inputs.Descriptor(name)
		if err != nil {
			return err
		}
		if fs.Lookup(name) != nil {
			return fmt.Errorf("flag --%s already defined", name)
		}
		flag := fs.VarPF(&fieldValue{inputs: iface.Inputs, desc: desc}, name, "", usage(desc))
		if desc.Kind.Scalar == types.ScalarBoolean && !desc.Kind.Vector {
			flag.NoOptDefVal = "true"
		}
		if desc.Group != "" {
			_ = fs.SetAnnotation(name, "group", []string{desc.Group})
		}
	}
	return nil
}

func usage(desc types.ParameterDescriptor) string {
	var parts []string
	if desc.Description != "" {
		parts = append(parts, strings.Join(strings.Fields(desc.Description), " "))
	} else if desc.Label != "" {
		parts = append(parts, desc.Label)
	}
	if desc.IsPositional() {
		parts = append(parts, fmt.Sprintf("[position %d]", *desc.Index))
	}
	if desc.IsOutputToggle() {
		parts = append(parts, "(true writes "+desc.Name+desc.FileExtension+")")
	}
	if len(desc.EnumValues) > 0 {
		parts = append(parts, "{"+strings.Join(desc.EnumValues, ",")+"}")
	}
	if desc.Default != "" {
		parts = append(parts, fmt.Sprintf("(module default %s)", desc.Default))
	}
	return strings.Join(parts, " ")
}

// Complete suggests flag names and enumeration values for a module
// invocation whose arguments so far are args.
func Complete(iface *dyniface.Interface, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	if strings.HasPrefix(toComplete, "-") {
		var out []string
		for _, name := range iface.Inputs.Names() {
			if strings.HasPrefix("--"+name, toComplete) {
				out = append(out, "--"+name)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	}
	if len(args) == 0 {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	last := strings.TrimLeft(args[len(args)-1], "-")
	desc, err := iface.Inputs.Descriptor(last)
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	switch {
	case len(desc.EnumValues) > 0:
		var out []string
		for _, c := range desc.EnumValues {
			if strings.HasPrefix(c, toComplete) {
				out = append(out, c)
			}
		}
		return out, cobra.ShellCompDirectiveNoFileComp
	case desc.IsOutputToggle():
		return []string{"true", "false"}, cobra.ShellCompDirectiveDefault
	case desc.Kind.Scalar.IsPath():
		return nil, cobra.ShellCompDirectiveDefault
	default:
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
}
