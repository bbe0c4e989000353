// SPDX-License-Identifier: AGPL-3.0-or-later
package dyniface

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/flowd-org/slicerwrap/internal/types"
)

// normalize validates raw against the descriptor and converts it to the
// canonical representation stored in a Value.
func normalize(p *types.ParameterDescriptor, side Side, raw any) (any, error) {
	bad := func(msg string) error {
		return &InvalidValueError{Field: p.Name, Value: raw, Msg: msg}
	}
	if side == SideOutput {
		s, ok := raw.(string)
		if !ok || s == "" {
			return nil, bad("output values must be non-empty paths")
		}
		return s, nil
	}
	if p.IsOutputToggle() {
		switch x := raw.(type) {
		case bool:
			return x, nil
		case string:
			if x == "" {
				return nil, bad("expected true, false or a path")
			}
			return x, nil
		default:
			return nil, bad("expected true, false or a path")
		}
	}
	if !p.Kind.Vector {
		v, err := normalizeScalar(p, raw)
		if err != nil {
			return nil, bad(err.Error())
		}
		return v, nil
	}

	elems, ok := toSlice(raw)
	if !ok {
		return nil, bad(fmt.Sprintf("expected a list of %s", p.Kind.Scalar))
	}
	if len(elems) == 0 {
		return nil, bad("empty vector")
	}
	switch p.Kind.Scalar {
	case types.ScalarInteger:
		out := make([]int64, len(elems))
		for i, e := range elems {
			v, err := normalizeScalar(p, e)
			if err != nil {
				return nil, bad(fmt.Sprintf("element %d: %v", i, err))
			}
			out[i] = v.(int64)
		}
		return out, nil
	case types.ScalarFloat:
		out := make([]float64, len(elems))
		for i, e := range elems {
			v, err := normalizeScalar(p, e)
			if err != nil {
				return nil, bad(fmt.Sprintf("element %d: %v", i, err))
			}
			out[i] = v.(float64)
		}
		return out, nil
	case types.ScalarBoolean:
		out := make([]bool, len(elems))
		for i, e := range elems {
			v, err := normalizeScalar(p, e)
			if err != nil {
				return nil, bad(fmt.Sprintf("element %d: %v", i, err))
			}
			out[i] = v.(bool)
		}
		return out, nil
	default:
		out := make([]string, len(elems))
		for i, e := range elems {
			v, err := normalizeScalar(p, e)
			if err != nil {
				return nil, bad(fmt.Sprintf("element %d: %v", i, err))
			}
			out[i] = v.(string)
		}
		return out, nil
	}
}

func normalizeScalar(p *types.ParameterDescriptor, raw any) (any, error) {
	switch p.Kind.Scalar {
	case types.ScalarInteger:
		switch x := raw.(type) {
		case int:
			return int64(x), nil
		case int8:
			return int64(x), nil
		case int16:
			return int64(x), nil
		case int32:
			return int64(x), nil
		case int64:
			return x, nil
		case uint8:
			return int64(x), nil
		case uint16:
			return int64(x), nil
		case uint32:
			return int64(x), nil
		case uint:
			if uint64(x) > math.MaxInt64 {
				return nil, fmt.Errorf("integer out of range")
			}
			return int64(x), nil
		case uint64:
			if x > math.MaxInt64 {
				return nil, fmt.Errorf("integer out of range")
			}
			return int64(x), nil
		}
		return nil, fmt.Errorf("expected integer, got %T", raw)
	case types.ScalarFloat:
		switch x := raw.(type) {
		case float64:
			return x, nil
		case float32:
			return float64(x), nil
		case int:
			return float64(x), nil
		case int8:
			return float64(x), nil
		case int16:
			return float64(x), nil
		case int32:
			return float64(x), nil
		case int64:
			return float64(x), nil
		case uint:
			return float64(x), nil
		case uint8:
			return float64(x), nil
		case uint16:
			return float64(x), nil
		case uint32:
			return float64(x), nil
		case uint64:
			return float64(x), nil
		}
		return nil, fmt.Errorf("expected float, got %T", raw)
	case types.ScalarBoolean:
		if b, ok := raw.(bool); ok {
			return b, nil
		}
		return nil, fmt.Errorf("expected boolean, got %T", raw)
	case types.ScalarString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string, got %T", raw)
	case types.ScalarStringEnum:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		if !slices.Contains(p.EnumValues, s) {
			return nil, fmt.Errorf("must be one of %s", strings.Join(p.EnumValues, ", "))
		}
		return s, nil
	case types.ScalarFile, types.ScalarDirectory, types.ScalarImage, types.ScalarTransform:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected path, got %T", raw)
		}
		if s == "" {
			return nil, fmt.Errorf("empty path")
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported kind %s", p.Kind)
	}
}

func toSlice(raw any) ([]any, bool) {
	switch x := raw.(type) {
	case []any:
		return x, true
	case []int:
		return convert(x), true
	case []int64:
		return convert(x), true
	case []float64:
		return convert(x), true
	case []float32:
		return convert(x), true
	case []bool:
		return convert(x), true
	case []string:
		return convert(x), true
	default:
		return nil, false
	}
}

func convert[T any](in []T) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}

// parseText converts command-line text to a value accepted by normalize.
func parseText(p *types.ParameterDescriptor, side Side, text string) (any, error) {
	if side == SideOutput {
		return text, nil
	}
	if p.IsOutputToggle() {
		switch strings.ToLower(text) {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return text, nil
	}
	if !p.Kind.Vector {
		return parseScalarText(p, text)
	}
	sep := p.Separator
	if sep == "" {
		sep = ","
	}
	parts := strings.Split(text, sep)
	out := make([]any, 0, len(parts))
	for _, part := range parts {
		v, err := parseScalarText(p, strings.TrimSpace(part))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseScalarText(p *types.ParameterDescriptor, text string) (any, error) {
	bad := func(err error) error {
		return &InvalidValueError{Field: p.Name, Value: text, Msg: err.Error()}
	}
	switch p.Kind.Scalar {
	case types.ScalarInteger:
		n, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return nil, bad(err)
		}
		return n, nil
	case types.ScalarFloat:
		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return nil, bad(err)
		}
		return f, nil
	case types.ScalarBoolean:
		b, err := strconv.ParseBool(text)
		if err != nil {
			return nil, bad(err)
		}
		return b, nil
	default:
		return text, nil
	}
}
