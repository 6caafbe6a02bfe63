//go:build cgo

// Package native implements ports.Memory on the C heap, for libraries built
// with -buildmode=c-shared. Callers release the blocks such a library hands
// out through its dealloc export, never with free: the Heap keeps the size
// of every block it allocated until it releases it.
package native

/*
#include <stdlib.h>
#include <string.h>
*/
import "C"

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

// Heap allocates with malloc and releases with free. Addresses are C
// pointers, so memory handed out stays valid regardless of the Go garbage
// collector. malloc and free are thread-safe, so Heap needs no lock.
//
// Heap remembers the size of blocks it allocated and bounds-checks reads and
// writes within them. Blocks the C caller allocated are accessed unchecked,
// and strings in them are scanned one unit at a time (see ReadString16).
// A double free cannot be detected once the address is reused by malloc;
// it is undefined behavior, exactly as it is for the C caller. Releasing a
// Heap block with free leaves its recorded size behind, which then wrongly
// bounds whatever malloc places at that address next.
type Heap struct {
	sizes sync.Map // uintptr -> uint64
	live  atomic.Int64
}

// NewHeap returns a Heap.
func NewHeap() *Heap {
	return &Heap{}
}

// Alloc implements ports.Memory. A zero size still allocates one byte, since
// malloc(0) may return NULL.
func (h *Heap) Alloc(size uint64) (entities.Addr, error) {
	n := max(size, 1)
	if n > uint64(^C.size_t(0)) {
		return entities.Null, &abierrors.AllocationError{Requested: size, Err: abierrors.ErrLimitExceeded}
	}
	p := C.malloc(C.size_t(n))
	if p == nil {
		return entities.Null, &abierrors.AllocationError{Requested: size, Err: fmt.Errorf("malloc returned NULL")}
	}
	h.sizes.Store(uintptr(p), size)
	h.live.Add(1)
	return entities.Addr(uintptr(p)), nil
}

// Free implements ports.Memory.
func (h *Heap) Free(addr entities.Addr) error {
	if addr.IsNull() {
		return nil
	}
	if _, ok := h.sizes.LoadAndDelete(uintptr(addr)); ok {
		h.live.Add(-1)
	}
	C.free(pointer(addr))
	return nil
}

// Read implements ports.Memory.
func (h *Heap) Read(addr entities.Addr, off, n uint32) ([]byte, error) {
	if err := h.check(addr, off, uint64(n)); err != nil {
		return nil, err
	}
	return C.GoBytes(unsafe.Add(pointer(addr), off), C.int(n)), nil
}

// Write implements ports.Memory.
func (h *Heap) Write(addr entities.Addr, off uint32, data []byte) error {
	if err := h.check(addr, off, uint64(len(data))); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	C.memcpy(unsafe.Add(pointer(addr), off), unsafe.Pointer(&data[0]), C.size_t(len(data)))
	return nil
}

// ReadString16 implements ports.StringReader. It reads one unit at a time
// and stops at the terminator, so a caller-allocated string ending right
// before an unmapped page is never read past its end. For blocks Heap
// allocated the scan is also bounded by the block size.
func (h *Heap) ReadString16(addr entities.Addr, maxUnits int) ([]byte, bool, error) {
	if addr.IsNull() {
		return nil, false, abierrors.ErrNullAddress
	}
	limit := uint64(max(maxUnits, 0)) + 1
	size, known := h.sizes.Load(uintptr(addr))
	if known {
		limit = min(limit, size.(uint64)/2)
	}

	p := pointer(addr)
	for n := uint64(0); n < limit; n++ {
		unit := (*[2]byte)(unsafe.Add(p, 2*n))
		if unit[0] == 0 && unit[1] == 0 {
			return C.GoBytes(p, C.int(2*n)), true, nil
		}
	}
	if known && limit < uint64(max(maxUnits, 0))+1 {
		return nil, false, fmt.Errorf("no terminator in %d-byte block %s: %w", size, addr, abierrors.ErrOutOfBounds)
	}
	return nil, false, nil
}

// PtrSize implements ports.Memory.
func (h *Heap) PtrSize() int {
	return int(unsafe.Sizeof(uintptr(0)))
}

// Live returns the number of blocks allocated through h and not yet freed
// through h. Blocks freed by the C caller directly are not seen.
func (h *Heap) Live() int64 {
	return h.live.Load()
}

func (h *Heap) check(addr entities.Addr, off uint32, n uint64) error {
	if addr.IsNull() {
		return abierrors.ErrNullAddress
	}
	size, ok := h.sizes.Load(uintptr(addr))
	if ok && uint64(off)+n > size.(uint64) {
		return fmt.Errorf("%d bytes at %s+%d: %w", n, addr, off, abierrors.ErrOutOfBounds)
	}
	return nil
}

func pointer(addr entities.Addr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(addr)) //nolint:govet // addresses are C heap pointers, never Go memory
}

var (
	_ ports.Memory       = (*Heap)(nil)
	_ ports.StringReader = (*Heap)(nil)
)
