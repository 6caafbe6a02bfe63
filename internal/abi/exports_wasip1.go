//go:build wasip1

package abi

import "github.com/reglet-dev/nativeabi/domain/entities"

// Guest is the memory the host allocates argument strings in and releases
// envelopes to through the allocate/deallocate exports.
var Guest = NewPinned(MaxTotalAllocations)

// allocate reserves a block for the host. Failure is reported as null,
// which the host treats as out of memory.
//
//go:wasmexport allocate
func allocate(size uint32) uint32 {
	addr, err := Guest.Alloc(uint64(size))
	if err != nil {
		return 0
	}
	return uint32(addr) //nolint:gosec // G115: wasm32 addresses
}

// deallocate unpins a block. Unknown addresses are ignored; the host cannot
// act on a failure here.
//
//go:wasmexport deallocate
func deallocate(ptr uint32) {
	_ = Guest.Free(entities.Addr(ptr))
}
