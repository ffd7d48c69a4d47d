package xmlfmt

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/pagescribe/internal/common"
)

// Node is one element of a decoded document.
type Node struct {
	Name     string
	Attrs    []xml.Attr
	Children []*Node
	Text     string
}

// Parse decodes a document with exactly one root element.
func Parse(input string) (*Node, error) {
	dec := xml.NewDecoder(strings.NewReader(input))
	dec.Strict = true

	var (
		root  *Node
		stack []*Node
	)
	for {
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, common.FormatError("parse xml", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			t = flattenStart(t)
			n := &Node{Name: t.Name.Local, Attrs: t.Attr}
			if len(stack) == 0 {
				if root != nil {
					return nil, common.FormatError("parse xml", fmt.Errorf("second root element <%s>", n.Name))
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			name := qualified(t.Name)
			if len(stack) == 0 || stack[len(stack)-1].Name != name {
				return nil, common.FormatError("parse xml", fmt.Errorf("unexpected end element </%s>", name))
			}
			top := stack[len(stack)-1]
			top.Text = strings.TrimSpace(top.Text)
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) == 0 {
				if len(bytes.TrimSpace(t)) > 0 {
					return nil, common.FormatError("parse xml", fmt.Errorf("text outside the root element"))
				}
				continue
			}
			stack[len(stack)-1].Text += string(t)
		}
	}
	if len(stack) > 0 {
		return nil, common.FormatError("parse xml",
			fmt.Errorf("unexpected EOF: element <%s> is not closed", stack[len(stack)-1].Name))
	}
	if root == nil {
		return nil, common.FormatError("parse xml", fmt.Errorf("no root element"))
	}
	return root, nil
}

// Child returns the first direct child named name, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Value converts the node into JSON-friendly data: a leaf without
// attributes becomes its text; anything else becomes a map where attributes
// are "@name" keys, repeated children become slices and text sitting next to
// attributes is kept under "#text". Text mixed with child elements is dropped.
func (n *Node) Value() any {
	if len(n.Children) == 0 && len(n.Attrs) == 0 {
		return n.Text
	}
	m := make(map[string]any, len(n.Attrs)+len(n.Children))
	for _, a := range n.Attrs {
		m["@"+a.Name.Local] = a.Value
	}
	if len(n.Children) == 0 && n.Text != "" {
		m["#text"] = n.Text
	}
	for _, c := range n.Children {
		v := c.Value()
		switch existing := m[c.Name].(type) {
		case nil:
			m[c.Name] = v
		case []any:
			m[c.Name] = append(existing, v)
		default:
			m[c.Name] = []any{existing, v}
		}
	}
	return m
}
