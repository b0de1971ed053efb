package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/shaker/internal/xmir"
)

// Store is a filesystem cache rooted at a directory.
//
// Thread-safety: safe for concurrent use; see package docs for the write
// model.
type Store struct {
	root string
}

// New creates a store rooted at dir. The directory is created lazily on the
// first Save.
func New(dir string) *Store {
	return &Store{root: dir}
}

// Root returns the cache root directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns the on-disk location of an entry.
func (s *Store) Path(k Key) string {
	return filepath.Join(s.root, k.ToolVersion, k.ContentHash, filepath.FromSlash(k.Path))
}

// Stat returns the modification time of an entry.
// A missing entry is (zero, false, nil).
func (s *Store) Stat(k Key) (time.Time, bool, error) {
	if err := k.Validate(); err != nil {
		return time.Time{}, false, err
	}
	info, err := os.Stat(s.Path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("stat cache entry %s: %w", k, err)
	}
	if info.IsDir() {
		return time.Time{}, false, fmt.Errorf("stat cache entry %s: is a directory", k)
	}
	return info.ModTime(), true, nil
}

// LoadBytes returns the verbatim bytes of an entry. The bytes are parsed to
// make sure a corrupted entry is reported rather than served.
// A miss is (nil, false, nil).
func (s *Store) LoadBytes(k Key) ([]byte, bool, error) {
	data, _, found, err := s.load(k)
	return data, found, err
}

// Load returns the parsed document of an entry.
// A miss is (nil, false, nil); only unreadable or corrupted entries fail.
func (s *Store) Load(k Key) (*xmir.Document, bool, error) {
	_, doc, found, err := s.load(k)
	return doc, found, err
}

func (s *Store) load(k Key) ([]byte, *xmir.Document, bool, error) {
	if err := k.Validate(); err != nil {
		return nil, nil, false, err
	}
	data, err := os.ReadFile(s.Path(k))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("reading cache entry %s: %w", k, err)
	}
	doc, err := xmir.Parse(data)
	if err != nil {
		return nil, nil, false, fmt.Errorf("corrupted cache entry %s: %w", k, err)
	}
	return data, doc, true, nil
}

// Save stores the canonical form of doc under k.
func (s *Store) Save(k Key, doc *xmir.Document) error {
	return s.SaveBytes(k, xmir.Marshal(doc))
}

// SaveBytes stores data under k, replacing any previous entry atomically.
func (s *Store) SaveBytes(k Key, data []byte) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if err := WriteFileAtomic(s.Path(k), data, 0o644); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", k, err)
	}
	return nil
}
