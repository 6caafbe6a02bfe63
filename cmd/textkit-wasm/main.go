//go:build wasip1

// Command textkit-wasm builds the textkit library as a WebAssembly reactor.
// Every export returns the linear-memory offset of an envelope; the host
// releases envelopes, payloads and the argument strings it allocated through
// the allocate/deallocate exports, or through dealloc.
//
// Build:
//
//	GOOS=wasip1 GOARCH=wasm go build -buildmode=c-shared -o textkit.wasm ./cmd/textkit-wasm
//
// Load it with host.Executor.LoadLibrary and textkit.ManifestYAML.
package main

import (
	"context"
	"log/slog"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/examples/textkit"
	"github.com/reglet-dev/nativeabi/exports"
	"github.com/reglet-dev/nativeabi/internal/abi"
)

func main() {}

var registry *exports.Registry

func init() {
	reg, _, err := textkit.NewRegistry(abi.Guest,
		exports.WithMiddleware(exports.PanicRecoveryMiddleware()),
	)
	if err != nil {
		panic(err)
	}
	registry = reg
}

func call(name string, args ...uint32) uint32 {
	words := make([]uint64, len(args))
	for i, a := range args {
		words[i] = uint64(a)
	}
	addr, err := registry.Invoke(context.Background(), name, words...)
	if err != nil {
		slog.Error("textkit: invoke failed", "function", name, "error", err)
		return 0
	}
	return offset(addr)
}

func offset(addr entities.Addr) uint32 {
	return uint32(addr) //nolint:gosec // G115: wasm32 addresses
}

//go:wasmexport alloc
func alloc(size uint32) uint32 {
	return call(exports.AllocName, size)
}

//go:wasmexport dealloc
func dealloc(block uint32) uint32 {
	return call(exports.DeallocName, block)
}

//go:wasmexport greet
func greet(name uint32) uint32 {
	return call("greet", name)
}

//go:wasmexport parse_int
func parseInt(text uint32) uint32 {
	return call("parse_int", text)
}

//go:wasmexport is_palindrome
func isPalindrome(text uint32) uint32 {
	return call("is_palindrome", text)
}

//go:wasmexport utf16_length
func utf16Length(text uint32) uint32 {
	return call("utf16_length", text)
}

//go:wasmexport word_stats
func wordStats(text uint32) uint32 {
	return call("word_stats", text)
}

//go:wasmexport join
func join(words, separator uint32) uint32 {
	return call("join", words, separator)
}

//go:wasmexport repeat
func repeat(text, count uint32) uint32 {
	return call("repeat", text, count)
}

//go:wasmexport counter_new
func counterNew() uint32 {
	return call("counter_new")
}

//go:wasmexport counter_add
func counterAdd(counter, delta uint32) uint32 {
	return call("counter_add", counter, delta)
}

//go:wasmexport counter_free
func counterFree(counter uint32) uint32 {
	return call("counter_free", counter)
}

//go:wasmexport describe
func describe() uint32 {
	return call("describe")
}
