// SPDX-License-Identifier: AGPL-3.0-or-later
package dyniface

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

// Value is a field value or Undefined. The zero Value is Undefined.
type Value struct {
	v   any
	set bool
}

// Undefined is the explicit "not set" value. It differs from false, 0 and "".
var Undefined = Value{}

func defined(v any) Value {
	return Value{v: v, set: true}
}

func (v Value) IsDefined() bool { return v.set }

// Raw returns the stored value: int64, float64, bool, string, or a slice of
// one of those. It is nil when v is Undefined.
func (v Value) Raw() any { return v.v }

// Bool returns the value when it is a boolean.
func (v Value) Bool() (bool, bool) {
	b, ok := v.v.(bool)
	return b, ok && v.set
}

// Path returns the value when it is a string.
func (v Value) Path() (string, bool) {
	s, ok := v.v.(string)
	return s, ok && v.set
}

// Paths returns the value as a list when it is a string or a string vector.
func (v Value) Paths() []string {
	if !v.set {
		return nil
	}
	switch x := v.v.(type) {
	case string:
		return []string{x}
	case []string:
		return x
	}
	return nil
}

func (v Value) String() string {
	if !v.set {
		return "<undefined>"
	}
	switch x := v.v.(type) {
	case []int64:
		parts := make([]string, len(x))
		for i, n := range x {
			parts[i] = strconv.FormatInt(n, 10)
		}
		return strings.Join(parts, ",")
	case []float64:
		parts := make([]string, len(x))
		for i, f := range x {
			parts[i] = strconv.FormatFloat(f, 'g', -1, 64)
		}
		return strings.Join(parts, ",")
	case []bool:
		parts := make([]string, len(x))
		for i, b := range x {
			parts[i] = strconv.FormatBool(b)
		}
		return strings.Join(parts, ",")
	case []string:
		return strings.Join(x, ",")
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprint(x)
	}
}

// MarshalJSON encodes Undefined as null.
func (v Value) MarshalJSON() ([]byte, error) {
	if !v.set {
		return []byte("null"), nil
	}
	return json.Marshal(v.v)
}

// Equal reports whether two values are both undefined or hold the same data.
func (v Value) Equal(o Value) bool {
	if v.set != o.set {
		return false
	}
	if !v.set {
		return true
	}
	return reflect.DeepEqual(v.v, o.v)
}
