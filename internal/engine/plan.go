// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"github.com/kballard/go-shellquote"

	"github.com/flowd-org/slicerwrap/internal/dyniface"
	"github.com/flowd-org/slicerwrap/internal/types"
)

// BuildPlan previews the invocation of command (launcher words and the
// executable) with the inputs of iface.
func BuildPlan(module string, command []string, iface *dyniface.Interface) (types.Plan, error) {
	args, err := Argv(iface)
	if err != nil {
		return types.Plan{}, err
	}
	outputs, err := ResolveOutputs(iface)
	if err != nil {
		return types.Plan{}, err
	}
	argv := append(append([]string(nil), command...), args...)
	plan := types.Plan{
		Module:  module,
		Argv:    argv,
		Cmdline: shellquote.Join(argv...),
	}
	if len(command) > 0 {
		plan.Executable = command[len(command)-1]
	}
	if vals := iface.Inputs.Values(); len(vals) > 0 {
		plan.Inputs = make(map[string]interface{}, len(vals))
		for k, v := range vals {
			plan.Inputs[k] = v.Raw()
		}
	}
	for name, v := range outputs {
		if !v.IsDefined() {
			continue
		}
		if plan.Outputs == nil {
			plan.Outputs = map[string]interface{}{}
		}
		plan.Outputs[name] = v.Raw()
	}
	return plan, nil
}
