// Package xmir provides the in-memory form of an XMIR document, the XML
// intermediate representation passed between compiler stages.
//
// This package imports nothing internal. Every other package that touches
// IR goes through it, which keeps parsing and serialization in one place.
//
// Key design constraints:
//   - Nodes live in an arena indexed by NodeID; a Document is never mutated
//     after construction. All edits go through an Editor, which works on a
//     private clone, so the "before" and "after" of a step never alias.
//   - Marshal is the ONLY serialization used for target slots, cache entries
//     and step traces. Output is canonical: Marshal(Parse(Marshal(d))) is
//     byte-identical to Marshal(d).
//   - Text and attribute values are NFC normalized; text is trimmed.
package xmir
