package ports

import "github.com/reglet-dev/nativeabi/domain/entities"

// Memory is the allocator both sides of the boundary share.
// Every block that crosses the boundary is allocated from, and released to,
// the same Memory. Implementations must be safe for concurrent use.
type Memory interface {
	// Alloc returns a new block of at least size bytes. A zero size still
	// yields a distinct, releasable, non-null block.
	Alloc(size uint64) (entities.Addr, error)

	// Free releases a block obtained from Alloc. Freeing null is a no-op.
	// Implementations that can detect it report a second release of the
	// same block, or an unknown address, as errors.ErrInvalidAddress.
	Free(addr entities.Addr) error

	// Read copies n bytes starting at offset off within the block.
	Read(addr entities.Addr, off, n uint32) ([]byte, error)

	// Write copies data into the block starting at offset off.
	Write(addr entities.Addr, off uint32, data []byte) error

	// PtrSize is the width of a pointer on the other side, 4 or 8.
	PtrSize() int
}

// AllocationObserver receives allocation events from a Memory.
// Callbacks run outside the allocator's lock and must not block.
type AllocationObserver interface {
	OnAlloc(addr entities.Addr, size uint64)
	OnFree(addr entities.Addr, size uint64)
	OnAllocFailure(size uint64, err error)
}

// StringReader is implemented by a Memory that hands out blocks whose size it
// cannot know, such as strings the C caller allocated. Chunked reads of such
// blocks could run past the terminator into unmapped memory.
type StringReader interface {
	// ReadString16 returns the bytes before the first zero 16-bit unit at
	// addr, scanning at most maxUnits+1 units and reading nothing past the
	// terminator. found is false when no terminator was seen within the bound.
	ReadString16(addr entities.Addr, maxUnits int) (data []byte, found bool, err error)
}
