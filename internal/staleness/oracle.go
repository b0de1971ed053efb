// Package staleness decides, per program, whether the optimized artifact is
// already current, can be served from the cache, or must be recomputed.
//
// Freshness is judged by modification times: an output whose mtime is at or
// after the source mtime is treated as current. This is a coarse heuristic;
// clock skew and touched files can fool it. A target is additionally only
// skipped when its build stamp names the current tool version and content
// hash, so a changed step list or a new hash always rebuilds. The content
// hash in the cache key keeps a stale cache entry from being reused for
// changed source.
package staleness

import (
	"fmt"
	"os"
	"time"

	"github.com/roach88/shaker/internal/cache"
	"github.com/roach88/shaker/internal/program"
)

// Decision is the oracle's routing for a program.
type Decision int

const (
	// Recompute runs the step registry over the source.
	Recompute Decision = iota

	// Skip leaves the existing target untouched.
	Skip

	// CacheHit copies the cached artifact into the target slot.
	CacheHit
)

func (d Decision) String() string {
	switch d {
	case Recompute:
		return "recompute"
	case Skip:
		return "skip"
	case CacheHit:
		return "cache-hit"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Verdict is a decision plus the human-readable reason for it.
type Verdict struct {
	Decision Decision
	Reason   string

	// Key is the cache key of the program. Its tool version and content
	// hash are also the stamp a rebuilt target must carry.
	Key cache.Key

	// CacheErr is set when the cache entry could not be inspected. The
	// decision is then Recompute.
	CacheErr error
}

// Cache is the slice of the cache store the oracle needs.
type Cache interface {
	Stat(k cache.Key) (time.Time, bool, error)
}

// Oracle applies the freshness rules.
//
// Thread-safety: stateless apart from read-only fields; safe for concurrent
// Decide calls.
type Oracle struct {
	Cache        Cache
	CacheEnabled bool
	Force        bool
	ToolVersion  string
}

// KeyFor returns the cache key of a program under the oracle's tool version.
func (o *Oracle) KeyFor(p program.Program) cache.Key {
	return cache.Key{
		ToolVersion: o.ToolVersion,
		ContentHash: p.ContentHash,
		Path:        p.RelativeArtifactPath,
	}
}

// Decide routes one program. It never fails: anything it cannot inspect
// falls through to Recompute.
func (o *Oracle) Decide(p program.Program) Verdict {
	v := Verdict{Key: o.KeyFor(p)}
	useCache := o.CacheEnabled && o.Cache != nil

	if o.Force {
		v.Reason = "forced rebuild"
		return v
	}

	src, err := os.Stat(p.SourcePath)
	if err != nil {
		v.Reason = fmt.Sprintf("source not readable: %v", err)
		return v
	}

	targetReason := "target missing or older than source"
	if tgt, err := os.Stat(p.TargetPath); err == nil && !tgt.IsDir() {
		if !tgt.ModTime().Before(src.ModTime()) {
			stamp, found, err := ReadStamp(p.TargetPath)
			switch {
			case err != nil:
				targetReason = "target stamp not readable"
			case !found:
				targetReason = "target has no stamp"
			case stamp.ToolVersion != v.Key.ToolVersion:
				targetReason = fmt.Sprintf("target built by tool version %s", stamp.ToolVersion)
			case stamp.ContentHash != v.Key.ContentHash:
				targetReason = fmt.Sprintf("target built from content hash %s", stamp.ContentHash)
			default:
				v.Decision = Skip
				v.Reason = "target is up to date"
				return v
			}
		}
	}

	if !useCache {
		v.Reason = targetReason
		return v
	}

	at, found, err := o.Cache.Stat(v.Key)
	switch {
	case err != nil:
		v.CacheErr = err
		v.Reason = "cache entry not readable"
	case !found:
		v.Reason = "no cache entry"
	case at.Before(src.ModTime()):
		v.Reason = "cache entry older than source"
	default:
		v.Decision = CacheHit
		v.Reason = "cache entry is fresh"
	}
	return v
}
