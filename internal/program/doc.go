// Package program models the compilation units of one build and the
// registries that enumerate them.
//
// A Program is immutable for the duration of a pipeline run. Its target
// slot, trace directory and cache artifact path are all derived from the
// logical name plus a numeric disambiguator, so two programs sharing a name
// never share an output.
package program
