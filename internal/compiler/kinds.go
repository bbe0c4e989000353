// SPDX-License-Identifier: AGPL-3.0-or-later
package compiler

import (
	"strings"

	"github.com/flowd-org/slicerwrap/internal/types"
)

const vectorSuffix = "-vector"

var scalarTags = map[string]types.Scalar{
	"integer":            types.ScalarInteger,
	"float":              types.ScalarFloat,
	"double":             types.ScalarFloat,
	"boolean":            types.ScalarBoolean,
	"string":             types.ScalarString,
	"string-enumeration": types.ScalarStringEnum,
	"file":               types.ScalarFile,
	"directory":          types.ScalarDirectory,
	"image":              types.ScalarImage,
	"transform":          types.ScalarTransform,
}

// parseKind maps a schema element name to a Kind.
func parseKind(tag string) (types.Kind, bool) {
	base := tag
	vector := false
	if strings.HasSuffix(tag, vectorSuffix) {
		base = strings.TrimSuffix(tag, vectorSuffix)
		vector = true
	}
	scalar, ok := scalarTags[base]
	if !ok {
		return types.Kind{}, false
	}
	if vector && scalar == types.ScalarStringEnum {
		return types.Kind{}, false
	}
	return types.Kind{Scalar: scalar, Vector: vector, Tag: tag}, true
}

// formatFor returns the printf verb used to render one element.
func formatFor(s types.Scalar) string {
	switch s {
	case types.ScalarInteger:
		return "%d"
	case types.ScalarFloat:
		return "%f"
	case types.ScalarBoolean:
		return ""
	case types.ScalarString, types.ScalarStringEnum,
		types.ScalarFile, types.ScalarDirectory, types.ScalarImage, types.ScalarTransform:
		return "%s"
	default:
		return "%v"
	}
}

// defaultExtension is the suffix for generated output filenames when the
// schema declares no fileExtensions.
func defaultExtension(s types.Scalar) string {
	switch s {
	case types.ScalarImage:
		return ".nii"
	case types.ScalarTransform:
		return ".txt"
	default:
		return ""
	}
}
