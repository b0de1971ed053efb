package program

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Ext is the file extension of XMIR artifacts.
const Ext = ".xmir"

// Program identifies one compilation unit.
type Program struct {
	// Name is the dot-segmented logical name, e.g. "foo.x.main".
	Name string `json:"name"`

	// Disambiguator separates programs sharing a Name; 0 means none.
	Disambiguator int `json:"disambiguator,omitempty"`

	SourcePath string `json:"source"`
	TargetPath string `json:"target"`

	// TracePath is the directory receiving NN-<step>.xml snapshots.
	TracePath string `json:"trace"`

	// ContentHash is an opaque fingerprint of the source, stable across
	// builds with unchanged source.
	ContentHash string `json:"hash"`

	// RelativeArtifactPath is the slash-separated path of the artifact
	// below any root, e.g. "foo/x/main.xmir".
	RelativeArtifactPath string `json:"artifact"`
}

// ID returns the disambiguated logical name.
func (p Program) ID() string {
	return ID(p.Name, p.Disambiguator)
}

// ID joins a logical name and disambiguator.
func ID(name string, n int) string {
	if n == 0 {
		return name
	}
	return fmt.Sprintf("%s-%d", name, n)
}

// RelativePath maps a logical name to its artifact path:
// ("foo.x.main", 1) becomes "foo/x/main-1.xmir".
func RelativePath(name string, n int) string {
	return strings.ReplaceAll(ID(name, n), ".", "/") + Ext
}

var validName = regexp.MustCompile(`^[A-Za-z0-9_][A-Za-z0-9_-]*(\.[A-Za-z0-9_][A-Za-z0-9_-]*)*$`)

// ValidateName rejects names that cannot map to a safe relative path.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return fmt.Errorf("invalid program name %q", name)
	}
	return nil
}

// NameFromPath derives a logical name from a slash-separated relative
// source path: "foo/x/main.xmir" becomes "foo.x.main".
func NameFromPath(rel string) string {
	return strings.ReplaceAll(strings.TrimSuffix(filepath.ToSlash(rel), Ext), "/", ".")
}

// Layout places program outputs below the target and trace roots.
type Layout struct {
	TargetRoot string
	TraceRoot  string
}

// Program builds a Program whose paths are derived from name and n.
func (l Layout) Program(name string, n int, source, hash string) Program {
	rel := RelativePath(name, n)
	native := filepath.FromSlash(rel)
	return Program{
		Name:                 name,
		Disambiguator:        n,
		SourcePath:           source,
		TargetPath:           filepath.Join(l.TargetRoot, native),
		TracePath:            filepath.Join(l.TraceRoot, strings.TrimSuffix(native, Ext)),
		ContentHash:          hash,
		RelativeArtifactPath: rel,
	}
}

// Entry is a program before disambiguation.
type Entry struct {
	Name   string
	Source string
	Hash   string
}

// Disambiguate builds programs from entries in order. The first entry with a
// given name keeps the bare name; later ones get the smallest suffix whose
// ID is not already taken.
func (l Layout) Disambiguate(entries []Entry) ([]Program, error) {
	taken := make(map[string]bool, len(entries))
	for _, e := range entries {
		if err := ValidateName(e.Name); err != nil {
			return nil, err
		}
	}

	programs := make([]Program, 0, len(entries))
	bare := make(map[string]bool, len(entries))
	for _, e := range entries {
		bare[e.Name] = true
	}
	for _, e := range entries {
		n := 0
		if taken[e.Name] {
			n = 1
			for taken[ID(e.Name, n)] || bare[ID(e.Name, n)] {
				n++
			}
		}
		taken[ID(e.Name, n)] = true
		programs = append(programs, l.Program(e.Name, n, e.Source, e.Hash))
	}
	return programs, nil
}

// Registry enumerates the programs of the current build.
type Registry interface {
	ListPrograms() ([]Program, error)
}

// List is a fixed Registry.
type List []Program

// ListPrograms returns a copy of the list.
func (l List) ListPrograms() ([]Program, error) {
	out := make([]Program, len(l))
	copy(out, l)
	return out, nil
}
