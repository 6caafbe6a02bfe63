// Package arena provides an in-process Memory whose addresses are
// index/generation pairs rather than raw pointers. A released or unknown
// address is always detected, which makes the arena the backend of choice
// for tests and for hosts that want protocol violations reported instead of
// corrupting memory.
package arena

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

var errSlotsExhausted = errors.New("no free slots in 32-bit address space")

// MaxBlockSize is the largest single block; offsets within a block are 32-bit.
const MaxBlockSize = 1<<32 - 1

// DefaultMaxTotalBytes bounds the bytes an arena holds live at once.
const DefaultMaxTotalBytes = 100 * 1024 * 1024 // 100 MB

// Arena is a concurrency-safe ports.Memory backed by Go byte slices.
// Blocks stay reachable from the arena, and so pinned against the garbage
// collector, until they are freed.
type Arena struct {
	slots     []slot
	freeList  []uint32
	observers []ports.AllocationObserver
	maxTotal  uint64
	ptrSize   int
	stats     Stats
	mu        sync.Mutex
}

type slot struct {
	buf  []byte
	gen  uint32
	live bool
}

// Stats reports allocation counters.
type Stats struct {
	LiveBlocks  int
	LiveBytes   uint64
	PeakBytes   uint64
	TotalAllocs uint64
	TotalFrees  uint64
	Failures    uint64
}

// Option configures an Arena.
type Option func(*Arena)

// WithMaxTotalBytes sets the live-bytes limit. Zero disables the limit.
func WithMaxTotalBytes(n uint64) Option {
	return func(a *Arena) {
		a.maxTotal = n
	}
}

// WithObserver registers an allocation observer. May be given more than once.
func WithObserver(o ports.AllocationObserver) Option {
	return func(a *Arena) {
		if o != nil {
			a.observers = append(a.observers, o)
		}
	}
}

// WithPtrSize sets the pointer width reported to envelope code, so that
// 32-bit layouts can be exercised in process. Defaults to 8.
func WithPtrSize(n int) Option {
	return func(a *Arena) {
		if n == 4 || n == 8 {
			a.ptrSize = n
		}
	}
}

// New creates an Arena.
func New(opts ...Option) *Arena {
	a := &Arena{
		slots:    make([]slot, 0, 64),
		freeList: make([]uint32, 0, 16),
		maxTotal: DefaultMaxTotalBytes,
		ptrSize:  8,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Alloc implements ports.Memory.
func (a *Arena) Alloc(size uint64) (entities.Addr, error) {
	a.mu.Lock()
	if size > MaxBlockSize || (a.maxTotal > 0 && a.stats.LiveBytes+size > a.maxTotal) {
		err := &abierrors.AllocationError{
			Requested: size,
			Current:   a.stats.LiveBytes,
			Limit:     min(a.maxTotal, MaxBlockSize),
			Err:       abierrors.ErrLimitExceeded,
		}
		if a.maxTotal == 0 {
			err.Limit = MaxBlockSize
		}
		a.stats.Failures++
		a.mu.Unlock()
		for _, o := range a.observers {
			o.OnAllocFailure(size, err)
		}
		return entities.Null, err
	}

	s := slot{buf: make([]byte, size), live: true}
	var index uint32
	if n := len(a.freeList); n > 0 {
		index = a.freeList[n-1]
		a.freeList = a.freeList[:n-1]
		s.gen = a.slots[index].gen
		a.slots[index] = s
	} else {
		if a.ptrSize == 4 && len(a.slots) > entities.MaxSlot32Index {
			err := &abierrors.AllocationError{Requested: size, Err: errSlotsExhausted}
			a.stats.Failures++
			a.mu.Unlock()
			for _, o := range a.observers {
				o.OnAllocFailure(size, err)
			}
			return entities.Null, err
		}
		index = uint32(len(a.slots)) //nolint:gosec // G115: slot count is bounded by maxTotal
		a.slots = append(a.slots, s)
	}

	a.stats.LiveBlocks++
	a.stats.LiveBytes += size
	a.stats.TotalAllocs++
	a.stats.PeakBytes = max(a.stats.PeakBytes, a.stats.LiveBytes)
	addr := a.pack(index, s.gen)
	a.mu.Unlock()

	for _, o := range a.observers {
		o.OnAlloc(addr, size)
	}
	return addr, nil
}

// Free implements ports.Memory. A stale, unknown or already released
// address returns errors.ErrInvalidAddress and leaves the arena unchanged.
func (a *Arena) Free(addr entities.Addr) error {
	if addr.IsNull() {
		return nil
	}

	a.mu.Lock()
	s, err := a.lookup(addr)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	size := uint64(len(s.buf))
	s.buf = nil
	s.live = false
	s.gen++
	index, _, _ := a.unpack(addr)
	a.freeList = append(a.freeList, index)
	a.stats.LiveBlocks--
	a.stats.LiveBytes -= size
	a.stats.TotalFrees++
	a.mu.Unlock()

	for _, o := range a.observers {
		o.OnFree(addr, size)
	}
	return nil
}

// Read implements ports.Memory. The returned slice is a copy.
func (a *Arena) Read(addr entities.Addr, off, n uint32) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(addr)
	if err != nil {
		return nil, err
	}
	end := uint64(off) + uint64(n)
	if end > uint64(len(s.buf)) {
		return nil, fmt.Errorf("%w: read [%d:%d) of %d-byte block %s", abierrors.ErrOutOfBounds, off, end, len(s.buf), addr)
	}
	return slices.Clone(s.buf[off:end]), nil
}

// Write implements ports.Memory.
func (a *Arena) Write(addr entities.Addr, off uint32, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(addr)
	if err != nil {
		return err
	}
	end := uint64(off) + uint64(len(data))
	if end > uint64(len(s.buf)) {
		return fmt.Errorf("%w: write [%d:%d) of %d-byte block %s", abierrors.ErrOutOfBounds, off, end, len(s.buf), addr)
	}
	copy(s.buf[off:], data)
	return nil
}

// PtrSize implements ports.Memory.
func (a *Arena) PtrSize() int {
	return a.ptrSize
}

// Size returns the size of a live block.
func (a *Arena) Size(addr entities.Addr) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookup(addr)
	if err != nil {
		return 0, err
	}
	return uint64(len(s.buf)), nil
}

// Stats returns a snapshot of the allocation counters.
func (a *Arena) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Live returns the addresses of all live blocks in slot order.
func (a *Arena) Live() []entities.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()

	live := make([]entities.Addr, 0, a.stats.LiveBlocks)
	for i, s := range a.slots {
		if s.live {
			live = append(live, a.pack(uint32(i), s.gen)) //nolint:gosec // G115: see Alloc
		}
	}
	return live
}

// Reset releases every live block. Addresses handed out before Reset become
// invalid. Observers are not notified.
func (a *Arena) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.slots {
		if a.slots[i].live {
			a.slots[i].buf = nil
			a.slots[i].live = false
			a.slots[i].gen++
			a.freeList = append(a.freeList, uint32(i)) //nolint:gosec // G115: see Alloc
		}
	}
	a.stats.LiveBlocks = 0
	a.stats.LiveBytes = 0
}

// lookup resolves a live slot. Caller holds a.mu.
func (a *Arena) lookup(addr entities.Addr) (*slot, error) {
	if addr.IsNull() {
		return nil, abierrors.ErrNullAddress
	}
	index, _, ok := a.unpack(addr)
	if !ok || int(index) >= len(a.slots) {
		return nil, fmt.Errorf("%w: %s", abierrors.ErrInvalidAddress, addr)
	}
	s := &a.slots[index]
	if !s.live || a.pack(index, s.gen) != addr {
		return nil, fmt.Errorf("%w: %s is stale or already released", abierrors.ErrInvalidAddress, addr)
	}
	return s, nil
}

// pack and unpack choose the address encoding for the pointer width, so
// that every address fits the envelope's value field.
func (a *Arena) pack(index, gen uint32) entities.Addr {
	if a.ptrSize == 4 {
		return entities.PackSlot32(index, gen)
	}
	return entities.PackSlot(index, gen)
}

func (a *Arena) unpack(addr entities.Addr) (index, gen uint32, ok bool) {
	if a.ptrSize == 4 {
		return entities.UnpackSlot32(addr)
	}
	return entities.UnpackSlot(addr)
}

var _ ports.Memory = (*Arena)(nil)
