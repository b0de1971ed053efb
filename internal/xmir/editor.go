package xmir

import (
	"slices"

	"golang.org/x/text/unicode/norm"
)

// Editor builds a modified copy of a Document.
//
// Edit clones its input, so NodeIDs read from the original document can be
// passed straight to the editor. The original is never touched.
//
// The editor must not be used after Document is called.
type Editor struct {
	doc *Document
}

// Edit starts an edit session over a private clone of d.
func Edit(d *Document) *Editor {
	return &Editor{doc: d.Clone()}
}

// Document finishes the session and returns the edited document.
func (e *Editor) Document() *Document {
	d := e.doc
	e.doc = nil
	return d
}

// SetAttr sets an attribute, replacing it in place if present and
// appending it otherwise.
func (e *Editor) SetAttr(id NodeID, name, value string) {
	n := &e.doc.nodes[id]
	value = norm.NFC.String(value)
	for i := range n.attrs {
		if n.attrs[i].Name == name {
			n.attrs[i].Value = value
			return
		}
	}
	n.attrs = append(n.attrs, Attr{Name: name, Value: value})
}

// RemoveAttr deletes an attribute and reports whether it was present.
func (e *Editor) RemoveAttr(id NodeID, name string) bool {
	n := &e.doc.nodes[id]
	i := slices.IndexFunc(n.attrs, func(a Attr) bool { return a.Name == name })
	if i < 0 {
		return false
	}
	n.attrs = slices.Delete(n.attrs, i, i+1)
	return true
}

// SetText replaces all children of an element with a single text node.
// Text that is empty after normalization leaves the element empty.
func (e *Editor) SetText(id NodeID, text string) {
	e.detachAll(id)
	text = normalizeText(text)
	if text == "" {
		return
	}
	t := e.doc.add(node{kind: Text, text: text, parent: id})
	e.doc.nodes[id].children = append(e.doc.nodes[id].children, t)
}

// AppendElement adds a new element as the last child of parent.
func (e *Editor) AppendElement(parent NodeID, name string, attrs ...Attr) NodeID {
	id := e.doc.add(node{kind: Element, name: name, attrs: normalizeAttrs(attrs), parent: parent})
	e.doc.nodes[parent].children = append(e.doc.nodes[parent].children, id)
	return id
}

// RemoveChild detaches child from parent. The node stays in the arena but
// is no longer reachable.
func (e *Editor) RemoveChild(parent, child NodeID) bool {
	n := &e.doc.nodes[parent]
	i := slices.Index(n.children, child)
	if i < 0 {
		return false
	}
	n.children = slices.Delete(n.children, i, i+1)
	e.doc.nodes[child].parent = None
	return true
}

func (e *Editor) detachAll(id NodeID) {
	for _, c := range e.doc.nodes[id].children {
		e.doc.nodes[c].parent = None
	}
	e.doc.nodes[id].children = nil
}
