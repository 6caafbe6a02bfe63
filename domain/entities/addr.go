package entities

import "fmt"

// Addr is an opaque address of a block owned by a Memory.
// It is meaningful only to the Memory that produced it: a C heap pointer,
// a guest linear-memory offset, or an arena slot reference.
// The zero Addr is null.
type Addr uint64

// Null is the null address.
const Null Addr = 0

// IsNull reports whether the address is null.
func (a Addr) IsNull() bool {
	return a == Null
}

// String formats the address in hexadecimal.
func (a Addr) String() string {
	return fmt.Sprintf("0x%x", uint64(a))
}

// PackSlot builds an arena-style address from a slot index and a generation.
// The low 32 bits hold index+1 so that slot 0 never yields a null address;
// the high 32 bits hold the generation.
func PackSlot(index, generation uint32) Addr {
	return Addr(uint64(generation)<<32 | (uint64(index) + 1))
}

// UnpackSlot splits an address built by PackSlot.
// ok is false for null addresses and addresses whose index part is zero.
func UnpackSlot(a Addr) (index, generation uint32, ok bool) {
	low := uint32(a) //nolint:gosec // G115: low half carries the slot index
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint32(a >> 32), true
}

// Slot32IndexBits is the number of low bits holding index+1 in a 32-bit
// slot address; the remaining high bits hold the generation.
const Slot32IndexBits = 20

// MaxSlot32Index is the largest index PackSlot32 can represent.
const MaxSlot32Index = 1<<Slot32IndexBits - 2

// PackSlot32 builds a slot address that fits a 4-byte pointer field.
// The generation is truncated to its low 12 bits, so a stale address is
// only detected until the slot has been reused 4096 times.
func PackSlot32(index, generation uint32) Addr {
	return Addr(generation<<Slot32IndexBits | (index + 1))
}

// UnpackSlot32 splits an address built by PackSlot32.
func UnpackSlot32(a Addr) (index, generation uint32, ok bool) {
	if uint64(a) > 0xFFFFFFFF {
		return 0, 0, false
	}
	low := uint32(a) & (1<<Slot32IndexBits - 1) //nolint:gosec // G115: checked above
	if low == 0 {
		return 0, 0, false
	}
	return low - 1, uint32(a) >> Slot32IndexBits, true //nolint:gosec // G115: checked above
}
