// Package ports defines the interfaces the native ABI is built against.
// Memory is the central one: producers, consumers and the exported
// alloc/dealloc pair only ever touch blocks through it, so the C heap, a
// WebAssembly guest's linear memory and the in-process arena are
// interchangeable.
package ports
