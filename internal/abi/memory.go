// Package abi provides the guest side of the envelope protocol inside a
// WebAssembly module: a ports.Memory over Go-allocated blocks of linear
// memory, pinned until the host releases them.
package abi

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

// MaxTotalAllocations is the maximum total memory that can be pinned at once.
// This prevents unbounded growth of linear memory when a host leaks blocks.
const MaxTotalAllocations = 100 * 1024 * 1024 // 100 MB

// Pinned is a ports.Memory whose blocks are Go byte slices. Each block is
// kept referenced until Free so the garbage collector does not reclaim
// memory the host still reads. Addresses are the blocks' real addresses,
// which inside a wasm32 module are linear-memory offsets.
type Pinned struct {
	ptrs  map[entities.Addr][]byte // addr -> pinned slice
	limit int
	total int
	mu    sync.Mutex
}

// NewPinned creates a Pinned memory capped at limit bytes; limit <= 0 means
// MaxTotalAllocations.
func NewPinned(limit int) *Pinned {
	if limit <= 0 {
		limit = MaxTotalAllocations
	}
	return &Pinned{ptrs: make(map[entities.Addr][]byte), limit: limit}
}

// Alloc implements ports.Memory. Zero-size requests get a one-byte block so
// that every live block has a distinct address.
func (m *Pinned) Alloc(size uint64) (entities.Addr, error) {
	n := max(size, 1)

	m.mu.Lock()
	defer m.mu.Unlock()

	if n > uint64(m.limit-m.total) { //nolint:gosec // G115: total never exceeds limit
		return entities.Null, &abierrors.AllocationError{
			Requested: size,
			Err:       fmt.Errorf("%w: %d of %d bytes in use", abierrors.ErrLimitExceeded, m.total, m.limit),
		}
	}

	buf := make([]byte, n)
	addr := entities.Addr(uintptr(unsafe.Pointer(&buf[0]))) //nolint:gosec // G103: the address is the ABI value
	m.ptrs[addr] = buf
	m.total += len(buf)
	return addr, nil
}

// Free implements ports.Memory. Releasing an address that is not pinned,
// including a second release, reports ErrInvalidAddress.
func (m *Pinned) Free(addr entities.Addr) error {
	if addr.IsNull() {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.ptrs[addr]
	if !ok {
		return fmt.Errorf("free %s: %w", addr, abierrors.ErrInvalidAddress)
	}
	delete(m.ptrs, addr)
	m.total -= len(buf)
	return nil
}

// Read implements ports.Memory.
func (m *Pinned) Read(addr entities.Addr, off, n uint32) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, err := m.block(addr, off, n)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), buf...), nil
}

// Write implements ports.Memory.
func (m *Pinned) Write(addr entities.Addr, off uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, err := m.block(addr, off, uint32(len(data))) //nolint:gosec // G115: blocks are below 4 GiB
	if err != nil {
		return err
	}
	copy(buf, data)
	return nil
}

func (m *Pinned) block(addr entities.Addr, off, n uint32) ([]byte, error) {
	if addr.IsNull() {
		return nil, abierrors.ErrNullAddress
	}
	buf, ok := m.ptrs[addr]
	if !ok {
		return nil, fmt.Errorf("%s: %w", addr, abierrors.ErrInvalidAddress)
	}
	end := uint64(off) + uint64(n)
	if end > uint64(len(buf)) {
		return nil, fmt.Errorf("%s+%d..%d of %d bytes: %w", addr, off, end, len(buf), abierrors.ErrOutOfBounds)
	}
	return buf[off:end], nil
}

// PtrSize implements ports.Memory.
func (m *Pinned) PtrSize() int {
	return int(unsafe.Sizeof(uintptr(0)))
}

// Stats returns the number of pinned blocks and their total size.
func (m *Pinned) Stats() (blocks, bytes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ptrs), m.total
}

// FreeAll unpins every block. It is meant for module shutdown.
func (m *Pinned) FreeAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.ptrs)
	m.total = 0
}

var _ ports.Memory = (*Pinned)(nil)
