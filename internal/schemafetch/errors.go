// SPDX-License-Identifier: AGPL-3.0-or-later
package schemafetch

import (
	"fmt"
	"strings"
)

// Failure stages reported in SchemaFetchError.Op.
const (
	OpStart = "start"
	OpExit  = "exit"
	OpParse = "parse"
)

const maxStderr = 2048

// SchemaFetchError reports that a module's schema could not be obtained.
type SchemaFetchError struct {
	Executable string
	Op         string
	ExitCode   int
	Stderr     string
	Err        error
}

func (e *SchemaFetchError) Error() string {
	var b strings.Builder
	b.WriteString("schema fetch")
	if e.Executable != "" {
		fmt.Fprintf(&b, " %s", e.Executable)
	}
	switch e.Op {
	case OpExit:
		fmt.Fprintf(&b, ": exit status %d", e.ExitCode)
	default:
		fmt.Fprintf(&b, ": %s", e.Op)
	}
	if e.Err != nil && e.Op != OpExit {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, ": %s", e.Stderr)
	}
	return b.String()
}

func (e *SchemaFetchError) Unwrap() error { return e.Err }

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxStderr {
		return s[:maxStderr] + "..."
	}
	return s
}
