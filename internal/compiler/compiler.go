// SPDX-License-Identifier: AGPL-3.0-or-later

// Package compiler turns a module's schema document into typed parameter
// descriptors.
package compiler

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/flowd-org/slicerwrap/internal/schemafetch"
	"github.com/flowd-org/slicerwrap/internal/types"
)

// Options control compilation.
type Options struct {
	// WorkDir anchors generated output filenames. Defaults to the process
	// working directory.
	WorkDir string
}

// Children of a parameters group that are group metadata, not parameters.
var skipTags = map[string]bool{
	"label":       true,
	"description": true,
}

// Compile converts doc into a Schema. Any invalid parameter fails the whole
// compilation.
func Compile(doc *schemafetch.Document, opts Options) (*types.Schema, error) {
	if doc == nil || doc.Root == nil {
		return nil, &InvalidSchemaError{Msg: "empty document"}
	}
	groups := doc.Groups()
	if len(groups) == 0 {
		return nil, &InvalidSchemaError{Msg: "no parameters groups"}
	}
	workDir, err := resolveWorkDir(opts.WorkDir)
	if err != nil {
		return nil, err
	}

	schema := &types.Schema{
		Info:      moduleInfo(doc.Root),
		Filenames: make(map[string]string),
	}
	seen := make(map[string]bool)
	for gi, group := range groups {
		label, _ := group.ChildText("label")
		desc, _ := group.ChildText("description")
		schema.Info.Groups = append(schema.Info.Groups, types.GroupInfo{
			Label:       label,
			Description: desc,
			Advanced:    strings.EqualFold(group.Attr("advanced"), "true"),
		})

		idx := 0
		for _, node := range group.Children {
			if skipTags[node.Name] {
				continue
			}
			p, err := compileParameter(node, label, workDir)
			if err != nil {
				err.Group, err.Index, err.Tag = gi, idx, node.Name
				return nil, err
			}
			if seen[p.Name] {
				return nil, &InvalidSchemaError{Group: gi, Index: idx, Tag: node.Name, Parameter: p.Name, Msg: "duplicate parameter name"}
			}
			seen[p.Name] = true
			schema.Parameters = append(schema.Parameters, p)
			if p.Role == types.RoleOutput {
				schema.Outputs = append(schema.Outputs, p.Name)
				schema.Filenames[p.Name] = p.DefaultFilename
			}
			idx++
		}
	}
	return schema, nil
}

func compileParameter(node *schemafetch.Node, group, workDir string) (types.ParameterDescriptor, *InvalidSchemaError) {
	name, _ := node.ChildText("name")
	if name == "" {
		return types.ParameterDescriptor{}, &InvalidSchemaError{Msg: "missing required name"}
	}
	kind, ok := parseKind(node.Name)
	if !ok {
		return types.ParameterDescriptor{}, &InvalidSchemaError{Parameter: name, Msg: fmt.Sprintf("unsupported parameter kind %q", node.Name)}
	}

	p := types.ParameterDescriptor{
		Name:   name,
		Kind:   kind,
		Role:   types.RoleInput,
		Format: formatFor(kind.Scalar),
		Group:  group,
	}
	if kind.Vector {
		p.Separator = ","
	}
	p.Flag = "--" + name + " "
	if flag, ok := node.ChildText("longflag"); ok && strings.TrimLeft(flag, "-") != "" {
		p.Flag = "--" + strings.TrimLeft(flag, "-") + " "
	}
	if raw, ok := node.ChildText("index"); ok {
		idx, err := strconv.Atoi(raw)
		if err != nil || idx < 0 {
			return p, &InvalidSchemaError{Parameter: name, Msg: fmt.Sprintf("index %q is not a non-negative integer", raw)}
		}
		p.Index = &idx
	}
	p.Label, _ = node.ChildText("label")
	p.Description, _ = node.ChildText("description")
	p.Default, _ = node.ChildText("default")

	if kind.Scalar == types.ScalarStringEnum {
		for _, el := range node.ChildrenNamed("element") {
			p.EnumValues = append(p.EnumValues, el.Text)
		}
		if len(p.EnumValues) == 0 {
			return p, &InvalidSchemaError{Parameter: name, Msg: "string-enumeration without elements"}
		}
	}

	if kind.IsFileLike() {
		p.ExistsRequired = true
		p.FileExtension = fileExtension(node, kind.Scalar)
		if channel, _ := node.ChildText("channel"); channel == "output" {
			p.Role = types.RoleOutput
			p.DefaultFilename = filepath.Join(workDir, name+p.FileExtension)
		}
	}
	return p, nil
}

func fileExtension(node *schemafetch.Node, s types.Scalar) string {
	if attr := node.Attr("fileExtensions"); attr != "" {
		first := strings.TrimSpace(strings.Split(attr, ",")[0])
		if first != "" {
			return first
		}
	}
	return defaultExtension(s)
}

func moduleInfo(root *schemafetch.Node) types.ModuleInfo {
	text := func(name string) string {
		v, _ := root.ChildText(name)
		return v
	}
	return types.ModuleInfo{
		Title:            text("title"),
		Category:         text("category"),
		Description:      text("description"),
		Version:          text("version"),
		Contributor:      text("contributor"),
		DocumentationURL: text("documentation-url"),
		License:          text("license"),
	}
}

func resolveWorkDir(dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve working directory: %w", err)
		}
		return cwd, nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve working directory: %w", err)
	}
	return abs, nil
}
