// Package pipeline runs the step registry over a batch of programs.
//
// Each program is routed by the staleness oracle:
//
//   - Skip leaves the target slot alone.
//   - CacheHit copies the cached artifact into the target slot verbatim.
//   - Recompute parses the source, applies every step in order, optionally
//     writes one NN-<step>.xml snapshot per step, writes the target slot and
//     stores the result in the cache.
//
// Programs are independent. They run concurrently up to a configured limit
// and a failure in one program is recorded in its own result without
// affecting the others. A failed program leaves its target slot untouched.
//
// Cache problems never fail a program: an unreadable entry falls back to
// recompute and a failed cache write is logged as a warning.
package pipeline
