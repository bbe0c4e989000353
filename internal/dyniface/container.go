// SPDX-License-Identifier: AGPL-3.0-or-later
package dyniface

import (
	"fmt"
	"sync"

	"github.com/flowd-org/slicerwrap/internal/types"
)

// Side selects the inputs or outputs container of an Interface.
type Side int

const (
	SideInput Side = iota
	SideOutput
)

func (s Side) String() string {
	if s == SideOutput {
		return "outputs"
	}
	return "inputs"
}

// ChangeFunc observes a field assignment.
type ChangeFunc func(name string, old, new Value)

// Field is one named, typed slot of a container.
type Field struct {
	desc  types.ParameterDescriptor
	value Value
}

func (f *Field) Name() string                          { return f.desc.Name }
func (f *Field) Descriptor() types.ParameterDescriptor { return f.desc }
func (f *Field) Value() Value                          { return f.value }

// Container is an ordered set of fields whose assignments are validated
// against the field descriptors. It is safe for concurrent use.
type Container struct {
	side   Side
	mu     sync.RWMutex
	order  []string
	fields map[string]*Field
	watch  []ChangeFunc
}

func newContainer(side Side, descs []types.ParameterDescriptor) *Container {
	c := &Container{side: side, fields: make(map[string]*Field, len(descs))}
	for _, d := range descs {
		c.order = append(c.order, d.Name)
		c.fields[d.Name] = &Field{desc: d}
	}
	return c
}

func (c *Container) Side() Side { return c.side }

// Names returns field names in declaration order.
func (c *Container) Names() []string {
	return append([]string(nil), c.order...)
}

func (c *Container) Has(name string) bool {
	_, ok := c.fields[name]
	return ok
}

// Descriptor returns the descriptor behind a field.
func (c *Container) Descriptor(name string) (types.ParameterDescriptor, error) {
	f, ok := c.fields[name]
	if !ok {
		return types.ParameterDescriptor{}, fmt.Errorf("%s %q: %w", c.side, name, ErrUnknownField)
	}
	return f.desc, nil
}

// Get returns the current value of a field.
func (c *Container) Get(name string) (Value, error) {
	f, ok := c.fields[name]
	if !ok {
		return Undefined, fmt.Errorf("%s %q: %w", c.side, name, ErrUnknownField)
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return f.value, nil
}

// Set validates and assigns v. Passing Undefined, or a Value, resets or
// copies it.
func (c *Container) Set(name string, v any) error {
	f, ok := c.fields[name]
	if !ok {
		return fmt.Errorf("%s %q: %w", c.side, name, ErrUnknownField)
	}
	var next Value
	switch x := v.(type) {
	case Value:
		if x.IsDefined() {
			norm, err := normalize(&f.desc, c.side, x.v)
			if err != nil {
				return err
			}
			next = defined(norm)
		}
	case nil:
		return &InvalidValueError{Field: name, Value: v, Msg: "nil value; use Undefined to reset"}
	default:
		norm, err := normalize(&f.desc, c.side, v)
		if err != nil {
			return err
		}
		next = defined(norm)
	}
	c.assign(f, next)
	return nil
}

// Parse converts command-line text and assigns it.
func (c *Container) Parse(name, text string) error {
	f, ok := c.fields[name]
	if !ok {
		return fmt.Errorf("%s %q: %w", c.side, name, ErrUnknownField)
	}
	raw, err := parseText(&f.desc, c.side, text)
	if err != nil {
		return err
	}
	return c.Set(name, raw)
}

// Unset resets a field to Undefined.
func (c *Container) Unset(name string) error {
	return c.Set(name, Undefined)
}

// OnChange registers fn for every subsequent assignment. Fields are never
// reported for their initial Undefined state.
func (c *Container) OnChange(fn ChangeFunc) {
	c.mu.Lock()
	c.watch = append(c.watch, fn)
	c.mu.Unlock()
}

// Values returns every defined field keyed by name.
func (c *Container) Values() map[string]Value {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]Value)
	for _, name := range c.order {
		if v := c.fields[name].value; v.IsDefined() {
			out[name] = v
		}
	}
	return out
}

func (c *Container) assign(f *Field, next Value) {
	c.mu.Lock()
	old := f.value
	f.value = next
	watch := append([]ChangeFunc(nil), c.watch...)
	c.mu.Unlock()
	for _, fn := range watch {
		fn(f.desc.Name, old, next)
	}
}
