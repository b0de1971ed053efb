// Package steps holds the ordered sequence of XMIR-to-XMIR transformations
// applied by the optimization stage.
//
// A Registry is a closed list fixed at construction. Steps run strictly in
// registration order in a single linear pass; there is no reordering and no
// fixpoint iteration. Every step is pure: it receives a Document it must not
// mutate and returns a new one (see xmir.Edit).
//
// The registry's Fingerprint is folded into the tool version, so adding,
// removing or reordering a step moves every cache key into a new namespace.
package steps
