//go:build cgo

// Command textkit builds the textkit library as a C shared library.
// Envelopes and payloads are allocated with malloc and must be released
// through the library's dealloc, not free.
//
// Build:
//
//	go build -buildmode=c-shared -o libtextkit.so ./cmd/textkit
//	go run ./cmd/abigen -manifest examples/textkit/textkit.yaml -var version=1.0.0 -o textkit.h
//
// Use the generated textkit.h rather than the header cgo writes next to the
// library: it carries the envelope structs and the documented signatures.
// Set TEXTKIT_LOG=debug to log every call to stderr.
package main

/*
#include <stddef.h>
#include <stdint.h>
*/
import "C"

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"unsafe"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/envelope"
	"github.com/reglet-dev/nativeabi/examples/textkit"
	"github.com/reglet-dev/nativeabi/exports"
	"github.com/reglet-dev/nativeabi/infrastructure/native"
	"github.com/reglet-dev/nativeabi/infrastructure/telemetry"
	nlog "github.com/reglet-dev/nativeabi/log"
)

func main() {}

var registry = sync.OnceValue(func() *exports.Registry {
	logger := setupLogging()
	reg, _, err := textkit.NewRegistry(native.NewHeap(),
		exports.WithLogger(logger),
		exports.WithMiddleware(
			exports.PanicRecoveryMiddleware(),
			exports.LoggingMiddleware(logger),
			telemetry.CallMetrics(telemetry.DefaultConfig()),
		),
		exports.WithProducerOptions(envelope.WithTerminator(envelope.ExitTerminator{Logger: logger})),
	)
	if err != nil {
		// Only a duplicate or malformed export gets here; nothing can be
		// reported through an envelope yet.
		envelope.ExitTerminator{Logger: logger}.Terminate(err)
	}
	return reg
})

func setupLogging() *slog.Logger {
	level, err := zapcore.ParseLevel(os.Getenv("TEXTKIT_LOG"))
	if err != nil || os.Getenv("TEXTKIT_LOG") == "" {
		level = zapcore.WarnLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	logger, err := cfg.Build()
	if err != nil {
		logger = zap.NewNop()
	}
	nlog.SetLogger(logger)
	return slog.Default()
}

func word(p unsafe.Pointer) uint64 {
	return uint64(uintptr(p))
}

func call(name string, args ...uint64) unsafe.Pointer {
	addr, err := registry().Invoke(context.Background(), name, args...)
	if err != nil {
		slog.Error("textkit: invoke failed", "function", name, "error", err)
		return nil
	}
	return pointer(addr)
}

func pointer(addr entities.Addr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(addr)) //nolint:govet,gosec // C heap address, not a Go pointer
}

//export alloc
func alloc(size C.size_t) unsafe.Pointer {
	return call(exports.AllocName, uint64(size))
}

//export dealloc
func dealloc(block unsafe.Pointer) unsafe.Pointer {
	return call(exports.DeallocName, word(block))
}

//export greet
func greet(name unsafe.Pointer) unsafe.Pointer {
	return call("greet", word(name))
}

//export parse_int
func parse_int(text unsafe.Pointer) unsafe.Pointer { //nolint:revive // C symbol name
	return call("parse_int", word(text))
}

//export is_palindrome
func is_palindrome(text unsafe.Pointer) unsafe.Pointer { //nolint:revive // C symbol name
	return call("is_palindrome", word(text))
}

//export utf16_length
func utf16_length(text unsafe.Pointer) unsafe.Pointer { //nolint:revive // C symbol name
	return call("utf16_length", word(text))
}

//export word_stats
func word_stats(text unsafe.Pointer) unsafe.Pointer { //nolint:revive // C symbol name
	return call("word_stats", word(text))
}

//export join
func join(words, separator unsafe.Pointer) unsafe.Pointer {
	return call("join", word(words), word(separator))
}

//export repeat
func repeat(text unsafe.Pointer, count C.uint32_t) unsafe.Pointer {
	return call("repeat", word(text), uint64(count))
}

//export counter_new
func counter_new() unsafe.Pointer { //nolint:revive // C symbol name
	return call("counter_new")
}

//export counter_add
func counter_add(counter unsafe.Pointer, delta C.int32_t) unsafe.Pointer { //nolint:revive // C symbol name
	return call("counter_add", word(counter), uint64(uint32(delta)))
}

//export counter_free
func counter_free(counter unsafe.Pointer) unsafe.Pointer { //nolint:revive // C symbol name
	return call("counter_free", word(counter))
}

//export describe
func describe() unsafe.Pointer {
	return call("describe")
}
