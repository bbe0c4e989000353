// SPDX-License-Identifier: AGPL-3.0-or-later
package workflow

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Definition is a workflow file.
type Definition struct {
	Name        string          `yaml:"name" toml:"name"`
	Nodes       []NodeDef       `yaml:"nodes" toml:"nodes"`
	Connections []ConnectionDef `yaml:"connections" toml:"connections"`
}

// NodeDef declares one node. Interface is one of "identity", "merge",
// "function:<name>", "fsl.<Tool>" or "slicer:<Module>".
type NodeDef struct {
	Name      string `yaml:"name" toml:"name"`
	Interface string `yaml:"interface" toml:"interface"`
	// Fields lists identity fields or function inputs.
	Fields []string `yaml:"fields,omitempty" toml:"fields,omitempty"`
	// Outputs lists function outputs.
	Outputs    []string       `yaml:"outputs,omitempty" toml:"outputs,omitempty"`
	Size       int            `yaml:"size,omitempty" toml:"size,omitempty"`
	IterFields []string       `yaml:"iterfields,omitempty" toml:"iterfields,omitempty"`
	Nested     bool           `yaml:"nested,omitempty" toml:"nested,omitempty"`
	Set        map[string]any `yaml:"set,omitempty" toml:"set,omitempty"`
}

// ConnectionDef links "node.output" to "node.input".
type ConnectionDef struct {
	From string `yaml:"from" toml:"from"`
	To   string `yaml:"to" toml:"to"`
}

// Resolver supplies the interfaces a definition names.
type Resolver struct {
	// Catalog resolves declared tools by the name after "fsl.".
	Catalog func(name string) (Interface, bool)
	// Module builds a wrapped CLI module for "slicer:<Module>". It is
	// called once per node.
	Module func(ctx context.Context, name string) (Interface, error)
}

// Decode parses a definition; format is "yaml" or "toml".
func Decode(data []byte, format string) (Definition, error) {
	var def Definition
	switch strings.ToLower(format) {
	case "yaml", "yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&def); err != nil {
			return def, fmt.Errorf("decode yaml: %w", err)
		}
	case "toml":
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&def); err != nil {
			return def, fmt.Errorf("decode toml: %w", err)
		}
	default:
		return def, fmt.Errorf("unknown workflow format %q", format)
	}
	return def, nil
}

// LoadFile reads a .yaml, .yml or .toml definition and builds it.
func LoadFile(ctx context.Context, path string, r Resolver) (*Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := Decode(data, strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if def.Name == "" {
		def.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return Build(ctx, def, r)
}

// Build instantiates def and validates the result.
func Build(ctx context.Context, def Definition, r Resolver) (*Workflow, error) {
	w := New(def.Name)
	for _, nd := range def.Nodes {
		if nd.Name == "" {
			return nil, fmt.Errorf("node without a name")
		}
		iface, err := r.resolve(ctx, nd)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.Name, err)
		}
		n := NewMapNode(nd.Name, iface, nd.IterFields...)
		n.Nested = nd.Nested
		for _, k := range sortedKeys(nd.Set) {
			if err := n.Set(k, nd.Set[k]); err != nil {
				return nil, err
			}
		}
		if err := w.Add(n); err != nil {
			return nil, err
		}
	}
	for _, cd := range def.Connections {
		srcName, srcField, err := splitRef(cd.From)
		if err != nil {
			return nil, err
		}
		dstName, dstField, err := splitRef(cd.To)
		if err != nil {
			return nil, err
		}
		src, ok := w.Node(srcName)
		if !ok {
			return nil, fmt.Errorf("connection %s: unknown node %s", cd.From, srcName)
		}
		dst, ok := w.Node(dstName)
		if !ok {
			return nil, fmt.Errorf("connection %s: unknown node %s", cd.To, dstName)
		}
		if err := w.Connect(src, dst, L(srcField, dstField)); err != nil {
			return nil, err
		}
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (r Resolver) resolve(ctx context.Context, nd NodeDef) (Interface, error) {
	ref := strings.TrimSpace(nd.Interface)
	switch {
	case ref == "identity":
		if len(nd.Fields) == 0 {
			return nil, fmt.Errorf("identity needs fields")
		}
		return Identity(nd.Fields...), nil
	case ref == "merge":
		if nd.Size < 1 {
			return nil, fmt.Errorf("merge needs size >= 1")
		}
		return Merge(nd.Size), nil
	case ref == "function" || strings.HasPrefix(ref, "function:"):
		name := strings.TrimPrefix(strings.TrimPrefix(ref, "function"), ":")
		if name == "" {
			name = nd.Name
		}
		return Function(name, nd.Fields, nd.Outputs), nil
	case strings.HasPrefix(ref, "fsl."):
		if r.Catalog == nil {
			return nil, fmt.Errorf("no catalog for %s", ref)
		}
		iface, ok := r.Catalog(strings.TrimPrefix(ref, "fsl."))
		if !ok {
			return nil, fmt.Errorf("unknown interface %s", ref)
		}
		return iface, nil
	case strings.HasPrefix(ref, "slicer:"):
		if r.Module == nil {
			return nil, fmt.Errorf("modules unavailable for %s", ref)
		}
		return r.Module(ctx, strings.TrimPrefix(ref, "slicer:"))
	default:
		return nil, fmt.Errorf("unknown interface %q", ref)
	}
}

func splitRef(ref string) (node, field string, err error) {
	i := strings.LastIndex(ref, ".")
	if i <= 0 || i == len(ref)-1 {
		return "", "", fmt.Errorf("reference %q: expected node.field", ref)
	}
	return ref[:i], ref[i+1:], nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
