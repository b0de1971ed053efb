package program

import (
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/shaker/internal/xmir"
)

// ManifestError reports an invalid program manifest with its CUE position.
type ManifestError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *ManifestError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ManifestRegistry reads the program list from a CUE file:
//
//	programs: [
//		{name: "foo.x.main", source: "src/main.xmir", hash: "abcdef1"},
//		{name: "foo.x.main", source: "src/copy.xmir"},
//	]
//
// Sources are relative to the manifest. When hash is omitted it is computed
// from the source bytes. Repeated names are disambiguated in list order.
type ManifestRegistry struct {
	Path   string
	Layout Layout
}

// ListPrograms parses the manifest.
func (r *ManifestRegistry) ListPrograms() ([]Program, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	ctx := cuecontext.New()
	v := ctx.CompileBytes(data, cue.Filename(r.Path))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	list := v.LookupPath(cue.ParsePath("programs"))
	if !list.Exists() {
		return nil, &ManifestError{Field: "programs", Message: "programs list is required", Pos: v.Pos()}
	}
	iter, err := list.List()
	if err != nil {
		return nil, formatCUEError(err)
	}

	base := filepath.Dir(r.Path)
	var entries []Entry
	for iter.Next() {
		item := iter.Value()
		name, err := stringField(item, "name", true)
		if err != nil {
			return nil, err
		}
		if err := ValidateName(name); err != nil {
			return nil, &ManifestError{Field: "name", Message: err.Error(), Pos: item.Pos()}
		}
		source, err := stringField(item, "source", true)
		if err != nil {
			return nil, err
		}
		if !filepath.IsAbs(source) {
			source = filepath.Join(base, filepath.FromSlash(source))
		}
		hash, err := stringField(item, "hash", false)
		if err != nil {
			return nil, err
		}
		if hash == "" {
			src, err := os.ReadFile(source)
			if err != nil {
				return nil, fmt.Errorf("hashing %s: %w", name, err)
			}
			hash = xmir.Hash(src)
		}
		entries = append(entries, Entry{Name: name, Source: source, Hash: hash})
	}
	return r.Layout.Disambiguate(entries)
}

func stringField(v cue.Value, field string, required bool) (string, error) {
	f := v.LookupPath(cue.ParsePath(field))
	if !f.Exists() {
		if required {
			return "", &ManifestError{Field: field, Message: field + " is required", Pos: v.Pos()}
		}
		return "", nil
	}
	s, err := f.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	if s == "" && required {
		return "", &ManifestError{Field: field, Message: field + " must not be empty", Pos: f.Pos()}
	}
	return s, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}
	first := errs[0]
	me := &ManifestError{Field: "cue", Message: first.Error()}
	if positions := errors.Positions(first); len(positions) > 0 {
		me.Pos = positions[0]
	}
	return me
}
