// SPDX-License-Identifier: AGPL-3.0-or-later

// Package engine renders a wrapper's input values into a command line and
// resolves the output values the command will produce.
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/flowd-org/slicerwrap/internal/dyniface"
	"github.com/flowd-org/slicerwrap/internal/types"
)

// ArgError reports an input that cannot be rendered.
type ArgError struct {
	Arg string
	Msg string
}

func (e *ArgError) Error() string { return fmt.Sprintf("arg %s: %s", e.Arg, e.Msg) }

// Argument is the rendering of one input field.
type Argument struct {
	Name   string
	Tokens []string
}

// Synthesize renders every defined input of iface. Positional inputs come
// first by ascending index, then flagged inputs in declaration order.
// Undefined inputs and false booleans produce no tokens.
func Synthesize(iface *dyniface.Interface) ([]Argument, error) {
	var positional, flagged []types.ParameterDescriptor
	for _, name := range iface.Inputs.Names() {
		p, _ := iface.Inputs.Descriptor(name)
		if p.IsPositional() {
			positional = append(positional, p)
		} else {
			flagged = append(flagged, p)
		}
	}
	sort.SliceStable(positional, func(i, j int) bool {
		return *positional[i].Index < *positional[j].Index
	})

	out := make([]Argument, 0, len(positional)+len(flagged))
	for _, p := range append(positional, flagged...) {
		v, _ := iface.Inputs.Get(p.Name)
		if !v.IsDefined() {
			continue
		}
		tokens, err := render(iface, p, v)
		if err != nil {
			return nil, err
		}
		if len(tokens) > 0 {
			out = append(out, Argument{Name: p.Name, Tokens: tokens})
		}
	}
	return out, nil
}

// Argv flattens Synthesize into argv tokens, excluding the executable.
func Argv(iface *dyniface.Interface) ([]string, error) {
	args, err := Synthesize(iface)
	if err != nil {
		return nil, err
	}
	var argv []string
	for _, a := range args {
		argv = append(argv, a.Tokens...)
	}
	return argv, nil
}

func render(iface *dyniface.Interface, p types.ParameterDescriptor, v dyniface.Value) ([]string, error) {
	if p.IsOutputToggle() {
		path, ok, err := togglePath(iface, p.Name, v)
		if err != nil || !ok {
			return nil, err
		}
		return withFlag(p, path), nil
	}
	if p.Kind.Scalar == types.ScalarBoolean && !p.Kind.Vector {
		// Booleans are switches, positional or not.
		if b, _ := v.Bool(); b {
			return []string{p.FlagToken()}, nil
		}
		return nil, nil
	}
	text, err := formatValue(p, v.Raw())
	if err != nil {
		return nil, err
	}
	return withFlag(p, text), nil
}

func withFlag(p types.ParameterDescriptor, value string) []string {
	if p.IsPositional() {
		return []string{value}
	}
	return []string{p.FlagToken(), value}
}

func formatValue(p types.ParameterDescriptor, raw any) (string, error) {
	switch x := raw.(type) {
	case []int64:
		return joinFormatted(p, len(x), func(i int) any { return x[i] }), nil
	case []float64:
		return joinFormatted(p, len(x), func(i int) any { return x[i] }), nil
	case []bool:
		parts := make([]string, len(x))
		for i, b := range x {
			parts[i] = fmt.Sprintf("%t", b)
		}
		return strings.Join(parts, separator(p)), nil
	case []string:
		return joinFormatted(p, len(x), func(i int) any { return x[i] }), nil
	case int64, float64, string:
		return fmt.Sprintf(p.Format, x), nil
	default:
		return "", &ArgError{Arg: p.Name, Msg: fmt.Sprintf("cannot render %T as %s", raw, p.Kind)}
	}
}

func joinFormatted(p types.ParameterDescriptor, n int, at func(int) any) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf(p.Format, at(i))
	}
	return strings.Join(parts, separator(p))
}

func separator(p types.ParameterDescriptor) string {
	if p.Separator == "" {
		return ","
	}
	return p.Separator
}

// togglePath resolves an output toggle: true selects the generated default
// filename, a string is used as given, false selects nothing.
func togglePath(iface *dyniface.Interface, name string, v dyniface.Value) (string, bool, error) {
	if b, ok := v.Bool(); ok {
		if !b {
			return "", false, nil
		}
		path, ok := iface.DefaultFilename(name)
		if !ok || path == "" {
			return "", false, &ArgError{Arg: name, Msg: "no default filename"}
		}
		return path, true, nil
	}
	if path, ok := v.Path(); ok {
		return path, true, nil
	}
	return "", false, &ArgError{Arg: name, Msg: fmt.Sprintf("unexpected toggle value %v", v)}
}
