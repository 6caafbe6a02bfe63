package wazero

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

// Default names of the guest's allocator exports.
const (
	DefaultAllocExport = "allocate"
	DefaultFreeExport  = "deallocate"
)

var errGuestOutOfMemory = errors.New("guest allocator returned null")

// memoryConfig holds configuration for Memory.
type memoryConfig struct {
	allocExport string
	freeExport  string
}

// MemoryOption configures a Memory.
type MemoryOption func(*memoryConfig)

// WithAllocExport sets the name of the guest export that allocates
// (default: "allocate"). It must have type (i32) -> i32.
func WithAllocExport(name string) MemoryOption {
	return func(c *memoryConfig) {
		c.allocExport = name
	}
}

// WithFreeExport sets the name of the guest export that releases
// (default: "deallocate"). It must have type (i32) -> ().
func WithFreeExport(name string) MemoryOption {
	return func(c *memoryConfig) {
		c.freeExport = name
	}
}

// Memory implements ports.Memory over a guest module's linear memory. Blocks
// are allocated and released by calling the guest's allocator exports, so
// the guest can release what the host allocated and the other way round.
// Addresses are 32-bit offsets into linear memory.
//
// The guest allocator cannot report a double free; releasing a block twice
// is undefined, as it is for C heaps.
//
// Allocator calls run under the context bound for the call in progress, or
// the Memory's base context outside of any call.
type Memory struct {
	base  context.Context
	bound context.Context
	ctxMu sync.Mutex
	mod   api.Module
	mem   api.Memory
	alloc api.Function
	free  api.Function
	mu    sync.Mutex
}

// NewMemory binds to mod's memory and allocator exports. ctx is the base
// context of allocator calls made outside a bound call.
func NewMemory(ctx context.Context, mod api.Module, opts ...MemoryOption) (*Memory, error) {
	cfg := memoryConfig{allocExport: DefaultAllocExport, freeExport: DefaultFreeExport}
	for _, opt := range opts {
		opt(&cfg)
	}

	m := &Memory{base: ctx, mod: mod, mem: mod.Memory()}
	if m.mem == nil {
		return nil, fmt.Errorf("wazero: module %q has no memory", mod.Name())
	}
	if m.alloc = mod.ExportedFunction(cfg.allocExport); m.alloc == nil {
		return nil, fmt.Errorf("wazero: module %q missing %q export", mod.Name(), cfg.allocExport)
	}
	if m.free = mod.ExportedFunction(cfg.freeExport); m.free == nil {
		return nil, fmt.Errorf("wazero: module %q missing %q export", mod.Name(), cfg.freeExport)
	}
	return m, nil
}

// Module returns the guest module.
func (m *Memory) Module() api.Module {
	return m.mod
}

// bind makes ctx the context of allocator calls until restore runs. Binds
// nest, as host calls do when a guest calls back into the host.
func (m *Memory) bind(ctx context.Context) (restore func()) {
	m.ctxMu.Lock()
	prev := m.bound
	m.bound = ctx
	m.ctxMu.Unlock()
	return func() {
		m.ctxMu.Lock()
		m.bound = prev
		m.ctxMu.Unlock()
	}
}

func (m *Memory) context() context.Context {
	m.ctxMu.Lock()
	defer m.ctxMu.Unlock()
	if m.bound != nil {
		return m.bound
	}
	return m.base
}

// Alloc implements ports.Memory by calling the guest allocator.
func (m *Memory) Alloc(size uint64) (entities.Addr, error) {
	if size > math.MaxUint32 {
		return entities.Null, &abierrors.AllocationError{Requested: size, Limit: math.MaxUint32, Err: abierrors.ErrLimitExceeded}
	}

	ctx := m.context()
	m.mu.Lock()
	results, err := m.alloc.Call(ctx, size)
	m.mu.Unlock()
	if err != nil {
		return entities.Null, &abierrors.AllocationError{Requested: size, Err: err}
	}

	ptr := api.DecodeU32(results[0])
	if ptr == 0 {
		return entities.Null, &abierrors.AllocationError{Requested: size, Err: errGuestOutOfMemory}
	}
	if uint64(ptr)+size > uint64(m.mem.Size()) {
		return entities.Null, &abierrors.AllocationError{
			Requested: size,
			Current:   uint64(ptr),
			Limit:     uint64(m.mem.Size()),
			Err:       abierrors.ErrOutOfBounds,
		}
	}
	return entities.Addr(ptr), nil
}

// Free implements ports.Memory by calling the guest deallocator.
func (m *Memory) Free(addr entities.Addr) error {
	if addr.IsNull() {
		return nil
	}
	ptr, err := m.offset(addr)
	if err != nil {
		return err
	}

	ctx := m.context()
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.free.Call(ctx, api.EncodeU32(ptr)); err != nil {
		return abierrors.Operational("deallocate", err)
	}
	return nil
}

// Read implements ports.Memory. The bytes are copied out of linear memory.
func (m *Memory) Read(addr entities.Addr, off, n uint32) ([]byte, error) {
	ptr, err := m.at(addr, off)
	if err != nil {
		return nil, err
	}
	view, ok := m.mem.Read(ptr, n)
	if !ok {
		return nil, fmt.Errorf("read %d bytes at %s+%d: %w", n, addr, off, abierrors.ErrOutOfBounds)
	}
	out := make([]byte, n)
	copy(out, view)
	return out, nil
}

// Write implements ports.Memory.
func (m *Memory) Write(addr entities.Addr, off uint32, data []byte) error {
	ptr, err := m.at(addr, off)
	if err != nil {
		return err
	}
	if !m.mem.Write(ptr, data) {
		return fmt.Errorf("write %d bytes at %s+%d: %w", len(data), addr, off, abierrors.ErrOutOfBounds)
	}
	return nil
}

// PtrSize implements ports.Memory. Guests are wasm32.
func (m *Memory) PtrSize() int {
	return 4
}

func (m *Memory) offset(addr entities.Addr) (uint32, error) {
	if addr > math.MaxUint32 {
		return 0, fmt.Errorf("%s: %w", addr, abierrors.ErrInvalidAddress)
	}
	return uint32(addr), nil //nolint:gosec // G115: checked above
}

func (m *Memory) at(addr entities.Addr, off uint32) (uint32, error) {
	if addr.IsNull() {
		return 0, abierrors.ErrNullAddress
	}
	ptr, err := m.offset(addr)
	if err != nil {
		return 0, err
	}
	if uint64(ptr)+uint64(off) > math.MaxUint32 {
		return 0, fmt.Errorf("%s+%d: %w", addr, off, abierrors.ErrOutOfBounds)
	}
	return ptr + off, nil
}

var _ ports.Memory = (*Memory)(nil)
