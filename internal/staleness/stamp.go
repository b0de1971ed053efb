package staleness

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/roach88/shaker/internal/cache"
)

// StampExt is appended to a target path to name its build stamp.
const StampExt = ".stamp"

// Stamp records which tool version and content hash produced a target.
// A target is only current when its stamp matches the program's key.
type Stamp struct {
	ToolVersion string
	ContentHash string
}

// StampOf returns the stamp a target built under k must carry.
func StampOf(k cache.Key) Stamp {
	return Stamp{ToolVersion: k.ToolVersion, ContentHash: k.ContentHash}
}

// StampPath returns the stamp file of a target.
func StampPath(target string) string {
	return target + StampExt
}

// WriteStamp records s for target. Call it after the target is written so
// a crash in between leaves a target without a stamp, which is rebuilt.
func WriteStamp(target string, s Stamp) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tool-version %s\ncontent-hash %s\n", s.ToolVersion, s.ContentHash)
	if err := cache.WriteFileAtomic(StampPath(target), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing stamp of %s: %w", target, err)
	}
	return nil
}

// ReadStamp loads the stamp of target. A missing stamp is
// (Stamp{}, false, nil).
func ReadStamp(target string) (Stamp, bool, error) {
	data, err := os.ReadFile(StampPath(target))
	if errors.Is(err, fs.ErrNotExist) {
		return Stamp{}, false, nil
	}
	if err != nil {
		return Stamp{}, false, fmt.Errorf("reading stamp of %s: %w", target, err)
	}

	var s Stamp
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		field, value, ok := strings.Cut(sc.Text(), " ")
		if !ok {
			return Stamp{}, false, fmt.Errorf("malformed stamp of %s: %q", target, sc.Text())
		}
		switch field {
		case "tool-version":
			s.ToolVersion = value
		case "content-hash":
			s.ContentHash = value
		}
	}
	if s.ToolVersion == "" || s.ContentHash == "" {
		return Stamp{}, false, fmt.Errorf("malformed stamp of %s: incomplete", target)
	}
	return s, true, nil
}
