package xmir

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// ParseError reports malformed XMIR input.
type ParseError struct {
	Line    int
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("xmir:%d: %s: %v", e.Line, e.Message, e.Err)
	}
	return fmt.Sprintf("xmir:%d: %s", e.Line, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// IsParseError reports whether err is or wraps a *ParseError.
func IsParseError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe)
}

// Parse builds a Document from XML bytes.
//
// Comments, processing instructions and whitespace-only character data are
// dropped. Namespace prefixes are kept verbatim in element and attribute
// names.
func Parse(data []byte) (*Document, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	doc := &Document{root: None}
	var stack []NodeID

	fail := func(msg string, err error) error {
		line, _ := dec.InputPos()
		return &ParseError{Line: line, Message: msg, Err: err}
	}

	for {
		// RawToken keeps prefixes untranslated; tag matching is checked below.
		tok, err := dec.RawToken()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fail("malformed XML", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			parent := None
			if len(stack) > 0 {
				parent = stack[len(stack)-1]
			} else if doc.root != None {
				return nil, fail(fmt.Sprintf("second root element <%s>", qname(t.Name)), nil)
			}
			attrs := make([]Attr, len(t.Attr))
			for i, a := range t.Attr {
				attrs[i] = Attr{Name: qname(a.Name), Value: norm.NFC.String(a.Value)}
			}
			id := doc.add(node{kind: Element, name: qname(t.Name), attrs: attrs, parent: parent})
			if parent == None {
				doc.root = id
			} else {
				doc.nodes[parent].children = append(doc.nodes[parent].children, id)
			}
			stack = append(stack, id)

		case xml.EndElement:
			if len(stack) == 0 {
				return nil, fail(fmt.Sprintf("unexpected </%s>", qname(t.Name)), nil)
			}
			top := stack[len(stack)-1]
			if doc.nodes[top].name != qname(t.Name) {
				return nil, fail(fmt.Sprintf("</%s> closes <%s>", qname(t.Name), doc.nodes[top].name), nil)
			}
			stack = stack[:len(stack)-1]

		case xml.CharData:
			text := normalizeText(string(t))
			if text == "" {
				continue
			}
			if len(stack) == 0 {
				return nil, fail("character data outside the root element", nil)
			}
			parent := stack[len(stack)-1]
			id := doc.add(node{kind: Text, text: text, parent: parent})
			doc.nodes[parent].children = append(doc.nodes[parent].children, id)
		}
	}

	if len(stack) > 0 {
		return nil, fail(fmt.Sprintf("unclosed <%s>", doc.nodes[stack[len(stack)-1]].name), nil)
	}
	if doc.root == None {
		return nil, fail("no root element", nil)
	}
	return doc, nil
}

func qname(n xml.Name) string {
	if n.Space == "" {
		return n.Local
	}
	return n.Space + ":" + n.Local
}

// Marshal produces the canonical byte form of a document.
//
// Format: XML declaration, two-space indentation, attributes in document
// order, text-only elements on one line, childless elements self-closed,
// trailing newline.
func Marshal(d *Document) []byte {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if d.root != None {
		d.write(&buf, d.root, 0)
	}
	return buf.Bytes()
}

func (d *Document) write(buf *bytes.Buffer, id NodeID, depth int) {
	indent := strings.Repeat("  ", depth)
	n := &d.nodes[id]
	buf.WriteString(indent)

	if n.kind == Text {
		_ = xml.EscapeText(buf, []byte(n.text))
		buf.WriteByte('\n')
		return
	}

	buf.WriteByte('<')
	buf.WriteString(n.name)
	for _, a := range n.attrs {
		buf.WriteByte(' ')
		buf.WriteString(a.Name)
		buf.WriteString(`="`)
		_ = xml.EscapeText(buf, []byte(a.Value))
		buf.WriteByte('"')
	}

	switch {
	case len(n.children) == 0:
		buf.WriteString("/>\n")
		return
	case len(n.children) == 1 && d.nodes[n.children[0]].kind == Text:
		buf.WriteByte('>')
		_ = xml.EscapeText(buf, []byte(d.nodes[n.children[0]].text))
	default:
		buf.WriteString(">\n")
		for _, c := range n.children {
			d.write(buf, c, depth+1)
		}
		buf.WriteString(indent)
	}
	buf.WriteString("</")
	buf.WriteString(n.name)
	buf.WriteString(">\n")
}
