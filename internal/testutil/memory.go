package testutil

import (
	"errors"
	"sync"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/infrastructure/arena"
)

// TrackingMemory is an arena that records every release it rejects, so a
// test can assert that each block was released exactly once.
type TrackingMemory struct {
	*arena.Arena
	badFrees []entities.Addr
	mu       sync.Mutex
}

// NewTrackingMemory creates a TrackingMemory.
func NewTrackingMemory(opts ...arena.Option) *TrackingMemory {
	return &TrackingMemory{Arena: arena.New(append([]arena.Option{arena.WithMaxTotalBytes(0)}, opts...)...)}
}

// Free implements ports.Memory and records invalid releases.
func (m *TrackingMemory) Free(addr entities.Addr) error {
	err := m.Arena.Free(addr)
	if errors.Is(err, abierrors.ErrInvalidAddress) {
		m.mu.Lock()
		m.badFrees = append(m.badFrees, addr)
		m.mu.Unlock()
	}
	return err
}

// BadFrees returns the addresses released twice or never allocated.
func (m *TrackingMemory) BadFrees() []entities.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]entities.Addr(nil), m.badFrees...)
}

// Leaks returns the addresses still live.
func (m *TrackingMemory) Leaks() []entities.Addr {
	return m.Live()
}

// ErrInjected is returned by FaultyMemory for the allocations it fails.
var ErrInjected = errors.New("injected allocation failure")

// FaultyMemory wraps a Memory and fails selected allocations.
type FaultyMemory struct {
	ports.Memory
	failWhen func(n int, size uint64) bool
	calls    int
	mu       sync.Mutex
}

// FailNth fails the nth allocation (1-based) made through the returned Memory.
func FailNth(mem ports.Memory, nth int) *FaultyMemory {
	return &FaultyMemory{Memory: mem, failWhen: func(n int, _ uint64) bool { return n == nth }}
}

// FailFrom fails the nth allocation and every one after it.
func FailFrom(mem ports.Memory, nth int) *FaultyMemory {
	return &FaultyMemory{Memory: mem, failWhen: func(n int, _ uint64) bool { return n >= nth }}
}

// FailWhen fails allocations for which pred returns true. n is 1-based.
func FailWhen(mem ports.Memory, pred func(n int, size uint64) bool) *FaultyMemory {
	return &FaultyMemory{Memory: mem, failWhen: pred}
}

// Alloc implements ports.Memory.
func (m *FaultyMemory) Alloc(size uint64) (entities.Addr, error) {
	m.mu.Lock()
	m.calls++
	n := m.calls
	m.mu.Unlock()

	if m.failWhen(n, size) {
		return entities.Null, &abierrors.AllocationError{Requested: size, Err: ErrInjected}
	}
	return m.Memory.Alloc(size)
}

// Calls returns the number of allocations attempted.
func (m *FaultyMemory) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

var (
	_ ports.Memory = (*TrackingMemory)(nil)
	_ ports.Memory = (*FaultyMemory)(nil)
)
