// SPDX-License-Identifier: AGPL-3.0-or-later

// Package schemafetch obtains the self-description of a command-line module
// by invoking it with a schema flag and parsing the XML it prints.
package schemafetch

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Node is one element of a schema document. Comments and processing
// instructions are dropped; character data is collected into Text.
type Node struct {
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Attr returns the named attribute or "".
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}

// Child returns the first child element with the given name.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildText returns the trimmed text of the first child named name.
func (n *Node) ChildText(name string) (string, bool) {
	c := n.Child(name)
	if c == nil {
		return "", false
	}
	return c.Text, true
}

// ChildrenNamed returns every child element with the given name.
func (n *Node) ChildrenNamed(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
	}
	return out
}

// Document is a parsed schema.
type Document struct {
	Root *Node
	Raw  []byte
}

// Groups returns the top-level parameters groups in document order.
func (d *Document) Groups() []*Node {
	if d == nil {
		return nil
	}
	return d.Root.ChildrenNamed("parameters")
}

// Parse builds a Document from raw schema XML.
func Parse(data []byte) (*Document, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, &SchemaFetchError{Op: OpParse, Err: errors.New("empty schema document")}
	}
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		root  *Node
		stack []*Node
		text  []*strings.Builder
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, &SchemaFetchError{Op: OpParse, Err: err}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			node := &Node{Name: t.Name.Local}
			if len(t.Attr) > 0 {
				node.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					node.Attrs[a.Name.Local] = a.Value
				}
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, &SchemaFetchError{Op: OpParse, Err: fmt.Errorf("unexpected second root element <%s>", node.Name)}
				}
				root = node
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, node)
			}
			stack = append(stack, node)
			text = append(text, &strings.Builder{})
		case xml.EndElement:
			last := len(stack) - 1
			stack[last].Text = strings.TrimSpace(text[last].String())
			stack = stack[:last]
			text = text[:last]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, &SchemaFetchError{Op: OpParse, Err: errors.New("character data outside root element")}
				}
				continue
			}
			text[len(text)-1].Write(t)
		}
	}
	if root == nil {
		return nil, &SchemaFetchError{Op: OpParse, Err: errors.New("no root element")}
	}
	if len(stack) != 0 {
		return nil, &SchemaFetchError{Op: OpParse, Err: fmt.Errorf("unclosed element <%s>", stack[len(stack)-1].Name)}
	}
	return &Document{Root: root, Raw: append([]byte(nil), data...)}, nil
}
