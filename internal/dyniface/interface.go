// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dyniface materialises a compiled schema into per-instance input and
// output containers.
package dyniface

import "github.com/flowd-org/slicerwrap/internal/types"

// Interface holds the inputs and outputs of one wrapper instance.
type Interface struct {
	schema  *types.Schema
	Inputs  *Container
	Outputs *Container
}

// New builds fresh containers from schema. Every field starts Undefined and
// the instance shares no mutable state with schema or other instances.
func New(schema *types.Schema) *Interface {
	own := schema.Clone()
	if own == nil {
		own = &types.Schema{}
	}
	var outs []types.ParameterDescriptor
	for _, name := range own.Outputs {
		if p, ok := own.Parameter(name); ok {
			outs = append(outs, p.Clone())
		}
	}
	return &Interface{
		schema:  own,
		Inputs:  newContainer(SideInput, own.Parameters),
		Outputs: newContainer(SideOutput, outs),
	}
}

// Schema returns the instance's copy of the compiled schema.
func (i *Interface) Schema() *types.Schema { return i.schema }

// DefaultFilename returns the generated path for an output parameter.
func (i *Interface) DefaultFilename(name string) (string, bool) {
	v, ok := i.schema.Filenames[name]
	return v, ok
}
