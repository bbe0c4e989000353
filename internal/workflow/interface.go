// SPDX-License-Identifier: AGPL-3.0-or-later
package workflow

import (
	"fmt"
	"slices"
)

// Interface is anything a node can wrap: a declared tool interface or a
// wrapped CLI module.
type Interface interface {
	InterfaceName() string
	InputFields() []string
	OutputFields() []string
}

// Setter is implemented by interfaces that validate preset values, such as
// wrapped CLI modules.
type Setter interface {
	Set(name string, v any) error
}

// Static is an interface with a fixed field list.
type Static struct {
	Name    string
	Inputs  []string
	Outputs []string
}

func (s *Static) InterfaceName() string  { return s.Name }
func (s *Static) InputFields() []string  { return slices.Clone(s.Inputs) }
func (s *Static) OutputFields() []string { return slices.Clone(s.Outputs) }

// Identity passes each field through unchanged.
func Identity(fields ...string) *Static {
	return &Static{Name: "identity", Inputs: slices.Clone(fields), Outputs: slices.Clone(fields)}
}

// Merge joins inputs in1..inN into the list out.
func Merge(n int) *Static {
	in := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		in = append(in, fmt.Sprintf("in%d", i))
	}
	return &Static{Name: "merge", Inputs: in, Outputs: []string{"out"}}
}

// Function declares an in-process step by its signature only.
func Function(name string, inputs, outputs []string) *Static {
	return &Static{Name: "function:" + name, Inputs: slices.Clone(inputs), Outputs: slices.Clone(outputs)}
}
