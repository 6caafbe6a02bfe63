// Package exports is the registry of functions a library exposes across the
// native boundary.
//
// Every export receives its arguments as raw words (addresses, sizes and
// scalars), decodes them through wireformat, and returns exactly one
// envelope built by an envelope.Producer. Typed constructors such as
// StringExport and Int32Export hide that plumbing so an export body is a
// plain Go function returning (T, error).
//
// A Registry always carries the two builtins every library provides:
//
//	alloc(size)    -> return_value_ptr*   allocate a block of size bytes
//	dealloc(block) -> return_value_void*  release any block the library handed out
//
// Middleware wraps every export. PanicRecoveryMiddleware turns a panic into
// an error envelope so that no panic ever crosses the boundary.
package exports
