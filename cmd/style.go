// SPDX-License-Identifier: AGPL-3.0-or-later
package cmd

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// styles render headings for human-readable output. Color and weight are
// dropped when w is not a terminal.
type styles struct {
	heading lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		heading: r.NewStyle().Bold(true),
		muted:   r.NewStyle().Faint(true),
	}
}
