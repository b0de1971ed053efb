package program

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/roach88/shaker/internal/xmir"
)

// DirRegistry lists every *.xmir file below SourceRoot. The logical name
// comes from the relative path and the content hash from the file bytes.
type DirRegistry struct {
	SourceRoot string
	Layout     Layout
}

// ListPrograms walks SourceRoot in lexical order.
func (r *DirRegistry) ListPrograms() ([]Program, error) {
	info, err := os.Stat(r.SourceRoot)
	if err != nil {
		return nil, fmt.Errorf("source root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source root %s is not a directory", r.SourceRoot)
	}

	var entries []Entry
	err = filepath.WalkDir(r.SourceRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || filepath.Ext(path) != Ext {
			return nil
		}
		rel, err := filepath.Rel(r.SourceRoot, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		entries = append(entries, Entry{
			Name:   NameFromPath(rel),
			Source: path,
			Hash:   xmir.Hash(data),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", r.SourceRoot, err)
	}
	return r.Layout.Disambiguate(entries)
}
