// SPDX-License-Identifier: AGPL-3.0-or-later

// Package workflow declares directed acyclic graphs of tool interfaces. It
// checks that a graph is well formed and exports it; running the graph is
// left to an external engine.
package workflow

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var (
	ErrCycle         = errors.New("workflow contains a cycle")
	ErrUnknownField  = errors.New("unknown field")
	ErrDuplicateNode = errors.New("duplicate node name")
	ErrAlreadyFed    = errors.New("input already connected")
)

// Node is one interface instance in a workflow.
type Node struct {
	Name  string
	Iface Interface
	// IterFields makes the node a map node that runs once per element of
	// these inputs.
	IterFields []string
	// Nested keeps nested list structure in a map node's outputs.
	Nested     bool
	preset     map[string]any
	presetKeys []string
}

func NewNode(name string, iface Interface) *Node {
	return &Node{Name: name, Iface: iface}
}

// NewMapNode returns a node iterating over iterfields.
func NewMapNode(name string, iface Interface, iterfields ...string) *Node {
	return &Node{Name: name, Iface: iface, IterFields: slices.Clone(iterfields)}
}

func (n *Node) IsMap() bool { return len(n.IterFields) > 0 }

// Set presets an input value. Interfaces implementing Setter validate it.
func (n *Node) Set(field string, v any) error {
	if !slices.Contains(n.Iface.InputFields(), field) {
		return fmt.Errorf("node %s input %q: %w", n.Name, field, ErrUnknownField)
	}
	if s, ok := n.Iface.(Setter); ok {
		if err := s.Set(field, v); err != nil {
			return fmt.Errorf("node %s: %w", n.Name, err)
		}
	}
	if n.preset == nil {
		n.preset = make(map[string]any)
	}
	if _, ok := n.preset[field]; !ok {
		n.presetKeys = append(n.presetKeys, field)
	}
	n.preset[field] = v
	return nil
}

// Preset returns a copy of the preset inputs.
func (n *Node) Preset() map[string]any {
	out := make(map[string]any, len(n.preset))
	for k, v := range n.preset {
		out[k] = v
	}
	return out
}

// Link connects an output field to an input field.
type Link struct {
	From string
	To   string
}

// L builds a Link.
func L(from, to string) Link { return Link{From: from, To: to} }

// Same links equally named fields.
func Same(fields ...string) []Link {
	out := make([]Link, 0, len(fields))
	for _, f := range fields {
		out = append(out, Link{From: f, To: f})
	}
	return out
}

// Connection is one edge between node fields.
type Connection struct {
	Src      string
	SrcField string
	Dst      string
	DstField string
}

func (c Connection) String() string {
	return fmt.Sprintf("%s.%s -> %s.%s", c.Src, c.SrcField, c.Dst, c.DstField)
}

type Workflow struct {
	Name  string
	nodes []*Node
	index map[string]*Node
	conns []Connection
}

func New(name string) *Workflow {
	return &Workflow{Name: name, index: make(map[string]*Node)}
}

// Add registers nodes. Adding the same node twice is a no-op; a different
// node with a taken name is an error.
func (w *Workflow) Add(nodes ...*Node) error {
	for _, n := range nodes {
		if n == nil || n.Iface == nil {
			return errors.New("node and interface required")
		}
		if existing, ok := w.index[n.Name]; ok {
			if existing == n {
				continue
			}
			return fmt.Errorf("%w: %s", ErrDuplicateNode, n.Name)
		}
		w.index[n.Name] = n
		w.nodes = append(w.nodes, n)
	}
	return nil
}

// Node looks up a node by name.
func (w *Workflow) Node(name string) (*Node, bool) {
	n, ok := w.index[name]
	return n, ok
}

// Nodes returns nodes in insertion order.
func (w *Workflow) Nodes() []*Node { return slices.Clone(w.nodes) }

func (w *Workflow) Connections() []Connection { return slices.Clone(w.conns) }

// Connect adds src and dst if needed and links their fields. Every link is
// checked before any is recorded.
func (w *Workflow) Connect(src, dst *Node, links ...Link) error {
	if err := w.Add(src, dst); err != nil {
		return err
	}
	outs := src.Iface.OutputFields()
	ins := dst.Iface.InputFields()
	fed := w.fedInputs()
	pending := make([]Connection, 0, len(links))
	for _, l := range links {
		if !slices.Contains(outs, l.From) {
			return fmt.Errorf("connect %s.%s: output %w", src.Name, l.From, ErrUnknownField)
		}
		if !slices.Contains(ins, l.To) {
			return fmt.Errorf("connect %s.%s: input %w", dst.Name, l.To, ErrUnknownField)
		}
		key := dst.Name + "." + l.To
		if fed[key] {
			return fmt.Errorf("connect %s: %w", key, ErrAlreadyFed)
		}
		fed[key] = true
		pending = append(pending, Connection{Src: src.Name, SrcField: l.From, Dst: dst.Name, DstField: l.To})
	}
	w.conns = append(w.conns, pending...)
	return nil
}

func (w *Workflow) fedInputs() map[string]bool {
	fed := make(map[string]bool, len(w.conns))
	for _, c := range w.conns {
		fed[c.Dst+"."+c.DstField] = true
	}
	return fed
}

// Validate checks the whole graph: unique names, known fields on both ends
// of every connection, single feeding of inputs, iterfields that are inputs,
// and acyclicity.
func (w *Workflow) Validate() error {
	var errs []error
	seen := make(map[string]bool, len(w.nodes))
	for _, n := range w.nodes {
		if n.Name == "" {
			errs = append(errs, errors.New("node without a name"))
		}
		if seen[n.Name] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateNode, n.Name))
		}
		seen[n.Name] = true
		ins := n.Iface.InputFields()
		for _, f := range n.IterFields {
			if !slices.Contains(ins, f) {
				errs = append(errs, fmt.Errorf("node %s iterfield %q: %w", n.Name, f, ErrUnknownField))
			}
		}
	}
	fed := make(map[string]bool)
	for _, c := range w.conns {
		src, ok := w.index[c.Src]
		if !ok {
			errs = append(errs, fmt.Errorf("connection %s: unknown node %s", c, c.Src))
			continue
		}
		dst, ok := w.index[c.Dst]
		if !ok {
			errs = append(errs, fmt.Errorf("connection %s: unknown node %s", c, c.Dst))
			continue
		}
		if !slices.Contains(src.Iface.OutputFields(), c.SrcField) {
			errs = append(errs, fmt.Errorf("connection %s: output %w", c, ErrUnknownField))
		}
		if !slices.Contains(dst.Iface.InputFields(), c.DstField) {
			errs = append(errs, fmt.Errorf("connection %s: input %w", c, ErrUnknownField))
		}
		key := c.Dst + "." + c.DstField
		if fed[key] {
			errs = append(errs, fmt.Errorf("connection %s: %w", c, ErrAlreadyFed))
		}
		fed[key] = true
	}
	if _, err := w.TopoOrder(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TopoOrder returns nodes so that every node follows the nodes feeding it.
// Ties keep insertion order.
func (w *Workflow) TopoOrder() ([]*Node, error) {
	pos := make(map[string]int, len(w.nodes))
	for i, n := range w.nodes {
		pos[n.Name] = i
	}
	indeg := make(map[string]int, len(w.nodes))
	succ := make(map[string][]string)
	edge := make(map[[2]string]bool)
	for _, c := range w.conns {
		k := [2]string{c.Src, c.Dst}
		if edge[k] {
			continue
		}
		edge[k] = true
		succ[c.Src] = append(succ[c.Src], c.Dst)
		indeg[c.Dst]++
	}

	var ready []string
	for _, n := range w.nodes {
		if indeg[n.Name] == 0 {
			ready = append(ready, n.Name)
		}
	}
	order := make([]*Node, 0, len(w.nodes))
	for len(ready) > 0 {
		sort.SliceStable(ready, func(i, j int) bool { return pos[ready[i]] < pos[ready[j]] })
		name := ready[0]
		ready = ready[1:]
		order = append(order, w.index[name])
		for _, next := range succ[name] {
			indeg[next]--
			if indeg[next] == 0 {
				ready = append(ready, next)
			}
		}
	}
	if len(order) != len(w.nodes) {
		var stuck []string
		for _, n := range w.nodes {
			if indeg[n.Name] > 0 {
				stuck = append(stuck, n.Name)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrCycle, stuck)
	}
	return order, nil
}
