// SPDX-License-Identifier: AGPL-3.0-or-later
package types

import (
	"fmt"
	"strings"
)

// Scalar is the element kind of a module parameter.
type Scalar int

const (
	ScalarInvalid Scalar = iota
	ScalarInteger
	ScalarFloat
	ScalarBoolean
	ScalarString
	ScalarStringEnum
	ScalarFile
	ScalarDirectory
	ScalarImage
	ScalarTransform
)

var scalarNames = map[Scalar]string{
	ScalarInteger:    "integer",
	ScalarFloat:      "float",
	ScalarBoolean:    "boolean",
	ScalarString:     "string",
	ScalarStringEnum: "string-enumeration",
	ScalarFile:       "file",
	ScalarDirectory:  "directory",
	ScalarImage:      "image",
	ScalarTransform:  "transform",
}

func (s Scalar) String() string {
	if name, ok := scalarNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scalar(%d)", int(s))
}

// IsPath reports whether values of this kind name filesystem entries.
func (s Scalar) IsPath() bool {
	switch s {
	case ScalarFile, ScalarDirectory, ScalarImage, ScalarTransform:
		return true
	default:
		return false
	}
}

// Kind is a scalar kind, optionally repeated as a separator-joined vector.
type Kind struct {
	Scalar Scalar
	Vector bool
	// Tag is the schema element name the kind was compiled from.
	Tag string
}

func (k Kind) String() string {
	if k.Vector {
		return k.Scalar.String() + "-vector"
	}
	return k.Scalar.String()
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsFileLike reports whether the kind is a single path-valued scalar.
func (k Kind) IsFileLike() bool {
	return !k.Vector && k.Scalar.IsPath()
}

// Role is the data-flow direction of a parameter.
type Role int

const (
	RoleInput Role = iota
	RoleOutput
)

func (r Role) String() string {
	if r == RoleOutput {
		return "output"
	}
	return "input"
}

func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// ParameterDescriptor is the compiled description of one schema parameter.
type ParameterDescriptor struct {
	Name  string `json:"name" yaml:"name"`
	Kind  Kind   `json:"kind" yaml:"kind"`
	Role  Role   `json:"role" yaml:"role"`
	Flag  string `json:"flag,omitempty" yaml:"flag,omitempty"`
	Index *int   `json:"index,omitempty" yaml:"index,omitempty"`
	// Format is the printf verb for one element; empty for booleans.
	Format          string   `json:"format" yaml:"format"`
	Separator       string   `json:"separator,omitempty" yaml:"separator,omitempty"`
	EnumValues      []string `json:"enum,omitempty" yaml:"enum,omitempty"`
	Label           string   `json:"label,omitempty" yaml:"label,omitempty"`
	Description     string   `json:"description,omitempty" yaml:"description,omitempty"`
	Default         string   `json:"default,omitempty" yaml:"default,omitempty"`
	Group           string   `json:"group,omitempty" yaml:"group,omitempty"`
	FileExtension   string   `json:"file_extension,omitempty" yaml:"file_extension,omitempty"`
	ExistsRequired  bool     `json:"exists_required,omitempty" yaml:"exists_required,omitempty"`
	DefaultFilename string   `json:"default_filename,omitempty" yaml:"default_filename,omitempty"`
}

// IsPositional reports whether the parameter is rendered by position.
func (p ParameterDescriptor) IsPositional() bool {
	return p.Index != nil
}

// IsOutputToggle reports whether the input side accepts a boolean or a path.
func (p ParameterDescriptor) IsOutputToggle() bool {
	return p.Role == RoleOutput && p.Kind.IsFileLike()
}

// FlagToken is the flag as a single argv element.
func (p ParameterDescriptor) FlagToken() string {
	return strings.TrimSpace(p.Flag)
}

// Clone returns a copy that shares no mutable state with p.
func (p ParameterDescriptor) Clone() ParameterDescriptor {
	out := p
	if p.Index != nil {
		idx := *p.Index
		out.Index = &idx
	}
	if p.EnumValues != nil {
		out.EnumValues = append([]string(nil), p.EnumValues...)
	}
	return out
}

// GroupInfo describes one parameters group of a module schema.
type GroupInfo struct {
	Label       string `json:"label,omitempty" yaml:"label,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Advanced    bool   `json:"advanced,omitempty" yaml:"advanced,omitempty"`
}

// ModuleInfo carries the documentation metadata of a module schema.
type ModuleInfo struct {
	Title            string      `json:"title,omitempty" yaml:"title,omitempty"`
	Category         string      `json:"category,omitempty" yaml:"category,omitempty"`
	Description      string      `json:"description,omitempty" yaml:"description,omitempty"`
	Version          string      `json:"version,omitempty" yaml:"version,omitempty"`
	Contributor      string      `json:"contributor,omitempty" yaml:"contributor,omitempty"`
	DocumentationURL string      `json:"documentation_url,omitempty" yaml:"documentation_url,omitempty"`
	License          string      `json:"license,omitempty" yaml:"license,omitempty"`
	Groups           []GroupInfo `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// Schema is a compiled module schema.
type Schema struct {
	Info       ModuleInfo            `json:"info" yaml:"info"`
	Parameters []ParameterDescriptor `json:"parameters" yaml:"parameters"`
	// Outputs lists output parameter names in declaration order.
	Outputs []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	// Filenames maps output names to their generated default paths.
	Filenames map[string]string `json:"filenames,omitempty" yaml:"filenames,omitempty"`
}

// Parameter returns the descriptor with the given name.
func (s *Schema) Parameter(name string) (ParameterDescriptor, bool) {
	if s == nil {
		return ParameterDescriptor{}, false
	}
	for _, p := range s.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return ParameterDescriptor{}, false
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return nil
	}
	out := &Schema{Info: s.Info}
	out.Info.Groups = append([]GroupInfo(nil), s.Info.Groups...)
	out.Parameters = make([]ParameterDescriptor, len(s.Parameters))
	for i, p := range s.Parameters {
		out.Parameters[i] = p.Clone()
	}
	out.Outputs = append([]string(nil), s.Outputs...)
	out.Filenames = make(map[string]string, len(s.Filenames))
	for k, v := range s.Filenames {
		out.Filenames[k] = v
	}
	return out
}
