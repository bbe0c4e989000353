// SPDX-License-Identifier: AGPL-3.0-or-later
package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Graph is the exported form of a workflow, nodes in topological order.
type Graph struct {
	Name  string      `json:"name" yaml:"name"`
	Nodes []GraphNode `json:"nodes" yaml:"nodes"`
	Edges []GraphEdge `json:"edges" yaml:"edges"`
}

type GraphNode struct {
	Name         string         `json:"name" yaml:"name"`
	Interface    string         `json:"interface" yaml:"interface"`
	InputFields  []string       `json:"input_fields,omitempty" yaml:"input_fields,omitempty"`
	OutputFields []string       `json:"output_fields,omitempty" yaml:"output_fields,omitempty"`
	IterFields   []string       `json:"iterfields,omitempty" yaml:"iterfields,omitempty"`
	Nested       bool           `json:"nested,omitempty" yaml:"nested,omitempty"`
	Set          map[string]any `json:"set,omitempty" yaml:"set,omitempty"`
	presetKeys   []string
}

type GraphEdge struct {
	From string `json:"from" yaml:"from"`
	To   string `json:"to" yaml:"to"`
}

// Export validates w and returns its graph.
func (w *Workflow) Export() (Graph, error) {
	if err := w.Validate(); err != nil {
		return Graph{}, err
	}
	order, err := w.TopoOrder()
	if err != nil {
		return Graph{}, err
	}
	g := Graph{Name: w.Name}
	for _, n := range order {
		gn := GraphNode{
			Name:         n.Name,
			Interface:    n.Iface.InterfaceName(),
			InputFields:  n.Iface.InputFields(),
			OutputFields: n.Iface.OutputFields(),
			IterFields:   append([]string(nil), n.IterFields...),
			Nested:       n.Nested,
			presetKeys:   append([]string(nil), n.presetKeys...),
		}
		if len(n.preset) > 0 {
			gn.Set = n.Preset()
		}
		g.Nodes = append(g.Nodes, gn)
	}
	for _, c := range w.conns {
		g.Edges = append(g.Edges, GraphEdge{From: c.Src + "." + c.SrcField, To: c.Dst + "." + c.DstField})
	}
	return g, nil
}

// Encode renders g as json, yaml or text.
func (g Graph) Encode(format string) ([]byte, error) {
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(g, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case "yaml", "yml":
		return yaml.Marshal(g)
	case "", "text":
		return []byte(g.Text()), nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// Text is a compact human-readable listing.
func (g Graph) Text() string {
	var b strings.Builder
	fmt.Fprintf(&b, "workflow %s\n", g.Name)
	for _, n := range g.Nodes {
		fmt.Fprintf(&b, "  %s (%s)", n.Name, n.Interface)
		if len(n.IterFields) > 0 {
			fmt.Fprintf(&b, " map[%s]", strings.Join(n.IterFields, ","))
		}
		if n.Nested {
			b.WriteString(" nested")
		}
		b.WriteByte('\n')
		for _, k := range n.presetKeys {
			fmt.Fprintf(&b, "    %s = %v\n", k, n.Set[k])
		}
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %s -> %s\n", e.From, e.To)
	}
	return b.String()
}
