// Package cache provides the filesystem-backed, version-scoped store of
// optimized XMIR documents.
//
// # Layout
//
// Entries are addressed by (tool version, content hash, relative artifact
// path) and stored at
//
//	<root>/<tool-version>/<content-hash>/<relative-artifact-path>
//
// The segment order is a contract other tooling reads; it is never collapsed
// or reordered. Several tool versions and source revisions coexist side by
// side, and nothing here deletes entries.
//
// # Writes
//
// Every write goes to a temp file in the destination directory and is
// renamed into place, so a reader sees either the previous entry, no entry,
// or the new one in full. Concurrent writers to the same key end with one
// complete entry (last writer wins). Writers to distinct keys take no lock.
package cache
