package cache

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Key addresses one cache entry.
type Key struct {
	ToolVersion string
	ContentHash string
	Path        string // slash-separated, relative
}

func (k Key) String() string {
	return k.ToolVersion + "/" + k.ContentHash + "/" + k.Path
}

// Validate rejects keys that would escape their namespace.
func (k Key) Validate() error {
	if err := validSegment("tool version", k.ToolVersion); err != nil {
		return err
	}
	if err := validSegment("content hash", k.ContentHash); err != nil {
		return err
	}
	if k.Path == "" {
		return fmt.Errorf("invalid cache key %q: empty artifact path", k)
	}
	if path.IsAbs(k.Path) || filepath.IsAbs(k.Path) {
		return fmt.Errorf("invalid cache key %q: artifact path must be relative", k)
	}
	for _, seg := range strings.Split(k.Path, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return fmt.Errorf("invalid cache key %q: bad artifact path segment %q", k, seg)
		}
	}
	return nil
}

func validSegment(what, s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid cache key: bad %s %q", what, s)
	}
	return nil
}
