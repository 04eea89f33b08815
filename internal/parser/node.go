// Package parser decodes XML documents into a generic element tree. SRA
// experiment packages vary in shape by platform and submitter, so metadata
// is walked structurally instead of being bound to fixed Go types.
package parser

import (
	"encoding/xml"
	"io"
	"strings"

	"github.com/nishad/srafetch/internal/errors"
)

// Attr is one element attribute. Namespaces are dropped.
type Attr struct {
	Name  string
	Value string
}

// Node is an XML element with its attributes, trimmed character data and
// child elements in document order.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// Decode reads a single document from r and returns its root element.
func Decode(r io.Reader) (*Node, error) {
	const op errors.Op = "parser.Decode"

	decoder := xml.NewDecoder(r)
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose

	var (
		root  *Node
		stack []*Node
		text  []*strings.Builder
	)
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.E(op, errors.KindParse, err)
		}

		switch t := token.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
			text = append(text, &strings.Builder{})
		case xml.CharData:
			if len(text) > 0 {
				text[len(text)-1].Write(t)
			}
		case xml.EndElement:
			if len(stack) == 0 {
				return nil, errors.E(op, errors.KindParse, "unbalanced end element "+t.Name.Local)
			}
			n := stack[len(stack)-1]
			n.Text = strings.TrimSpace(text[len(text)-1].String())
			stack = stack[:len(stack)-1]
			text = text[:len(text)-1]
		}
	}

	if root == nil {
		return nil, errors.E(op, errors.KindParse, "empty document")
	}
	if len(stack) != 0 {
		return nil, errors.E(op, errors.KindParse, "unexpected end of document inside "+stack[len(stack)-1].Name)
	}
	return root, nil
}

// Attr returns the value of the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrValue is Attr without the presence flag.
func (n *Node) AttrValue(name string) string {
	v, _ := n.Attr(name)
	return v
}

// Child returns the first child element with the given name, or nil.
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

// Find follows a path of child names and returns the element reached, or nil.
// A nil receiver is allowed so lookups can be chained.
func (n *Node) Find(path ...string) *Node {
	cur := n
	for _, name := range path {
		cur = cur.Child(name)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// FirstChild returns the first child element, or nil.
func (n *Node) FirstChild() *Node {
	if n == nil || len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}

// TextAt returns the text of the element at path, or "".
func (n *Node) TextAt(path ...string) string {
	if c := n.Find(path...); c != nil {
		return c.Text
	}
	return ""
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Name: n.Name, Text: n.Text}
	if len(n.Attrs) > 0 {
		c.Attrs = append([]Attr(nil), n.Attrs...)
	}
	for _, child := range n.Children {
		c.Children = append(c.Children, child.Clone())
	}
	return c
}

// Walk calls fn for n and every descendant in document order with the path of
// element names from n down to the visited element. Returning false from fn
// skips the element's children.
func (n *Node) Walk(fn func(path []string, node *Node) bool) {
	if n == nil {
		return
	}
	n.walk(nil, fn)
}

func (n *Node) walk(prefix []string, fn func([]string, *Node) bool) {
	path := append(prefix[:len(prefix):len(prefix)], n.Name)
	if !fn(path, n) {
		return
	}
	for _, c := range n.Children {
		c.walk(path, fn)
	}
}
