// Package host is the calling side of the envelope protocol.
//
// A Library binds a LibraryManifest to something that can invoke its
// functions: a Go registry in this process, or a wasm guest instantiated by
// an Executor. Typed calls encode Go arguments into the callee's memory,
// read the returned envelope, and release everything the callee handed over,
// so that callers deal only in Go values and errors.
//
// The Executor also works the other way round: it can expose Go export
// bundles to its guests as imported functions whose envelopes are built in
// the guest's own memory.
package host
