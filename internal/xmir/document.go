package xmir

import (
	"slices"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NodeID indexes a node in a Document's arena.
type NodeID int32

// None is the NodeID of a missing node (the parent of the root).
const None NodeID = -1

// Kind distinguishes element nodes from text nodes.
type Kind uint8

const (
	// Element is an XML element with a name, attributes and children.
	Element Kind = iota
	// Text is character data inside an element.
	Text
)

// Attr is a single attribute in document order.
type Attr struct {
	Name  string
	Value string
}

type node struct {
	kind     Kind
	name     string
	attrs    []Attr
	text     string
	parent   NodeID
	children []NodeID
}

// Document is an ordered XML tree stored as an arena of nodes.
//
// Thread-safety: a Document is read-only once built and safe for
// concurrent readers.
type Document struct {
	nodes []node
	root  NodeID
}

// New creates a document holding a single root element.
func New(root string, attrs ...Attr) *Document {
	d := &Document{root: None}
	d.root = d.add(node{kind: Element, name: root, attrs: normalizeAttrs(attrs), parent: None})
	return d
}

func (d *Document) add(n node) NodeID {
	d.nodes = append(d.nodes, n)
	return NodeID(len(d.nodes) - 1)
}

// Root returns the root element.
func (d *Document) Root() NodeID {
	return d.root
}

// Len returns the number of nodes in the arena, including detached ones.
func (d *Document) Len() int {
	return len(d.nodes)
}

// Kind returns the kind of the node.
func (d *Document) Kind(id NodeID) Kind {
	return d.nodes[id].kind
}

// Name returns the element name, or "" for text nodes.
func (d *Document) Name(id NodeID) string {
	return d.nodes[id].name
}

// Attr returns the value of the named attribute.
func (d *Document) Attr(id NodeID, name string) (string, bool) {
	for _, a := range d.nodes[id].attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Attrs returns a copy of the node's attributes in document order.
func (d *Document) Attrs(id NodeID) []Attr {
	return slices.Clone(d.nodes[id].attrs)
}

// Text returns the text of a text node, or the concatenated text children
// of an element.
func (d *Document) Text(id NodeID) string {
	n := &d.nodes[id]
	if n.kind == Text {
		return n.text
	}
	var sb strings.Builder
	for _, c := range n.children {
		if d.nodes[c].kind == Text {
			sb.WriteString(d.nodes[c].text)
		}
	}
	return sb.String()
}

// Parent returns the parent of the node, or None for the root.
func (d *Document) Parent(id NodeID) NodeID {
	return d.nodes[id].parent
}

// Children returns a copy of the node's children in document order.
func (d *Document) Children(id NodeID) []NodeID {
	return slices.Clone(d.nodes[id].children)
}

// Elements returns the element children of id with the given name.
// An empty name matches every element child.
func (d *Document) Elements(id NodeID, name string) []NodeID {
	var out []NodeID
	for _, c := range d.nodes[id].children {
		n := &d.nodes[c]
		if n.kind == Element && (name == "" || n.name == name) {
			out = append(out, c)
		}
	}
	return out
}

// Walk visits every node reachable from the root in pre-order.
// Returning false from fn skips the node's children.
func (d *Document) Walk(fn func(id NodeID) bool) {
	if d.root == None {
		return
	}
	d.walk(d.root, fn)
}

func (d *Document) walk(id NodeID, fn func(id NodeID) bool) {
	if !fn(id) {
		return
	}
	for _, c := range d.nodes[id].children {
		d.walk(c, fn)
	}
}

// Find returns all reachable elements with the given name in pre-order.
func (d *Document) Find(name string) []NodeID {
	var out []NodeID
	d.Walk(func(id NodeID) bool {
		if d.nodes[id].kind == Element && d.nodes[id].name == name {
			out = append(out, id)
		}
		return true
	})
	return out
}

// Clone returns a deep copy. NodeIDs are preserved, so an ID taken from
// the original addresses the same node in the clone.
func (d *Document) Clone() *Document {
	c := &Document{nodes: make([]node, len(d.nodes)), root: d.root}
	for i, n := range d.nodes {
		n.attrs = slices.Clone(n.attrs)
		n.children = slices.Clone(n.children)
		c.nodes[i] = n
	}
	return c
}

// Equal reports whether two documents serialize to the same bytes.
func Equal(a, b *Document) bool {
	return string(Marshal(a)) == string(Marshal(b))
}

func normalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func normalizeAttrs(attrs []Attr) []Attr {
	out := make([]Attr, len(attrs))
	for i, a := range attrs {
		out[i] = Attr{Name: a.Name, Value: norm.NFC.String(a.Value)}
	}
	return out
}
