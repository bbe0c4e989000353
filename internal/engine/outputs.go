// SPDX-License-Identifier: AGPL-3.0-or-later
package engine

import (
	"github.com/flowd-org/slicerwrap/internal/dyniface"
)

// ResolveOutputs computes the value of every output of iface from its input
// toggles, stores them in iface.Outputs and returns them by name. Outputs
// whose toggle is undefined or false resolve to Undefined.
func ResolveOutputs(iface *dyniface.Interface) (map[string]dyniface.Value, error) {
	out := make(map[string]dyniface.Value, len(iface.Outputs.Names()))
	for _, name := range iface.Outputs.Names() {
		resolved := dyniface.Undefined
		v, err := iface.Inputs.Get(name)
		if err != nil {
			return nil, err
		}
		if v.IsDefined() {
			path, ok, err := togglePath(iface, name, v)
			if err != nil {
				return nil, err
			}
			if ok {
				if err := iface.Outputs.Set(name, path); err != nil {
					return nil, err
				}
				resolved, _ = iface.Outputs.Get(name)
			}
		}
		if !resolved.IsDefined() {
			if err := iface.Outputs.Unset(name); err != nil {
				return nil, err
			}
		}
		out[name] = resolved
	}
	return out, nil
}
