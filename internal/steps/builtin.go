package steps

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/shaker/internal/xmir"
)

// DefaultPackage is prepended to bare global object references.
const DefaultPackage = "org.eolang"

// DuplicateNameError reports an object that binds the same attribute name
// more than once.
type DuplicateNameError struct {
	Object string
	Name   string
	Lines  [2]string
}

func (e *DuplicateNameError) Error() string {
	msg := fmt.Sprintf("object %q binds %q twice", e.Object, e.Name)
	if e.Lines[0] != "" && e.Lines[1] != "" {
		msg += fmt.Sprintf(" (lines %s and %s)", e.Lines[0], e.Lines[1])
	}
	return msg
}

// IsDuplicateName reports whether err is or wraps a *DuplicateNameError.
func IsDuplicateName(err error) bool {
	var de *DuplicateNameError
	return errors.As(err, &de)
}

// Default returns the built-in step sequence.
func Default() *Registry {
	return MustRegistry(
		Func("remove-refs", RemoveRefs),
		Func("unique-names", UniqueNames),
		Func("expand-aliases", ExpandAliases),
		Func("default-package", AddDefaultPackage),
	)
}

// RemoveRefs drops the ref attribute from every object.
func RemoveRefs(doc *xmir.Document) (*xmir.Document, error) {
	ed := xmir.Edit(doc)
	for _, o := range doc.Find("o") {
		ed.RemoveAttr(o, "ref")
	}
	return ed.Document(), nil
}

// UniqueNames fails when any object, or the top-level objects list, binds
// one name twice.
func UniqueNames(doc *xmir.Document) (*xmir.Document, error) {
	var err error
	doc.Walk(func(id xmir.NodeID) bool {
		if err != nil || doc.Kind(id) != xmir.Element {
			return false
		}
		seen := make(map[string]xmir.NodeID)
		for _, c := range doc.Elements(id, "o") {
			name, ok := doc.Attr(c, "name")
			if !ok {
				continue
			}
			if prev, dup := seen[name]; dup {
				owner, _ := doc.Attr(id, "name")
				if owner == "" {
					owner = doc.Name(id)
				}
				first, _ := doc.Attr(prev, "line")
				second, _ := doc.Attr(c, "line")
				err = &DuplicateNameError{Object: owner, Name: name, Lines: [2]string{first, second}}
				return false
			}
			seen[name] = c
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// ExpandAliases replaces short object bases with the fully qualified name
// declared by an alias meta. Both alias forms are accepted:
// "org.eolang.io.stdout" and "stdout org.eolang.io.stdout".
func ExpandAliases(doc *xmir.Document) (*xmir.Document, error) {
	aliases := make(map[string]string)
	for _, meta := range doc.Find("meta") {
		if metaPart(doc, meta, "head") != "alias" {
			continue
		}
		tail := strings.Fields(metaPart(doc, meta, "tail"))
		switch len(tail) {
		case 1:
			fqn := tail[0]
			aliases[fqn[strings.LastIndex(fqn, ".")+1:]] = fqn
		case 2:
			aliases[tail[0]] = tail[1]
		default:
			return nil, fmt.Errorf("malformed alias %q", metaPart(doc, meta, "tail"))
		}
	}

	ed := xmir.Edit(doc)
	for _, o := range doc.Find("o") {
		base, ok := doc.Attr(o, "base")
		if !ok {
			continue
		}
		if fqn, found := aliases[base]; found {
			ed.SetAttr(o, "base", fqn)
		}
	}
	return ed.Document(), nil
}

func metaPart(doc *xmir.Document, meta xmir.NodeID, part string) string {
	for _, c := range doc.Elements(meta, part) {
		return doc.Text(c)
	}
	return ""
}

// AddDefaultPackage qualifies bare global bases with DefaultPackage. A base
// is left alone when it is already qualified, is a special form (^ $ @ Q or
// a method call starting with "."), or names a binding visible from the
// object's scope.
func AddDefaultPackage(doc *xmir.Document) (*xmir.Document, error) {
	ed := xmir.Edit(doc)
	for _, o := range doc.Find("o") {
		base, ok := doc.Attr(o, "base")
		if !ok || base == "" || strings.Contains(base, ".") || strings.ContainsAny(base[:1], "^$@Q") {
			continue
		}
		if inScope(doc, o, base) {
			continue
		}
		ed.SetAttr(o, "base", DefaultPackage+"."+base)
	}
	return ed.Document(), nil
}

// inScope walks the parent chain of o looking for a binding called name.
func inScope(doc *xmir.Document, o xmir.NodeID, name string) bool {
	for p := doc.Parent(o); p != xmir.None; p = doc.Parent(p) {
		if own, _ := doc.Attr(p, "name"); own == name && doc.Name(p) == "o" {
			return true
		}
		for _, c := range doc.Elements(p, "o") {
			if c == o {
				continue
			}
			if n, _ := doc.Attr(c, "name"); n == name {
				return true
			}
		}
	}
	return false
}
