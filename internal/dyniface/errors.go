// SPDX-License-Identifier: AGPL-3.0-or-later
package dyniface

import (
	"errors"
	"fmt"
)

// ErrUnknownField is returned when a field name is not part of the interface.
var ErrUnknownField = errors.New("unknown field")

// InvalidValueError reports a value that does not satisfy a field's kind.
type InvalidValueError struct {
	Field string
	Value any
	Msg   string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("field %s: invalid value %v: %s", e.Field, e.Value, e.Msg)
}
