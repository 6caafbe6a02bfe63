// Package envelope builds and reads result envelopes: the two-field structs
// (error first, then value) that every exported function returns.
//
// A Producer turns a Go outcome into exactly one envelope per call. A
// Consumer reads an envelope by checking the error field first, extracts the
// value, and releases every block the envelope owned, each exactly once.
// Both only touch memory through a ports.Memory, so the same code serves the
// C heap, a WebAssembly guest and the in-process arena.
package envelope
