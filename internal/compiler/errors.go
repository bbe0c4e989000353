// SPDX-License-Identifier: AGPL-3.0-or-later
package compiler

import "fmt"

// InvalidSchemaError reports a schema node that cannot be compiled. Group and
// Index locate the node; Index counts only compiled parameter nodes.
type InvalidSchemaError struct {
	Group     int
	Index     int
	Tag       string
	Parameter string
	Msg       string
}

func (e *InvalidSchemaError) Error() string {
	if e.Tag == "" {
		return fmt.Sprintf("invalid schema: %s", e.Msg)
	}
	loc := fmt.Sprintf("parameters[%d] <%s> #%d", e.Group, e.Tag, e.Index)
	if e.Parameter != "" {
		loc += fmt.Sprintf(" %q", e.Parameter)
	}
	return fmt.Sprintf("invalid schema: %s: %s", loc, e.Msg)
}
