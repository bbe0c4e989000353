// SPDX-License-Identifier: AGPL-3.0-or-later
package types

// Plan is the preview of one module invocation.
type Plan struct {
	Module     string                 `json:"module"`
	Executable string                 `json:"executable"`
	Argv       []string               `json:"argv"`
	Cmdline    string                 `json:"cmdline"`
	WorkDir    string                 `json:"work_dir,omitempty"`
	Inputs     map[string]interface{} `json:"inputs,omitempty"`
	Outputs    map[string]interface{} `json:"outputs,omitempty"`
}
