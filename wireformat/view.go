package wireformat

import (
	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

// View is a borrowed string. It is valid for the duration of the call that
// produced it and has no release operation: whoever lent it keeps ownership.
type View struct {
	s string
}

// Borrow returns a non-owning view over s. No memory is allocated.
func Borrow(s string) View {
	return View{s: s}
}

// BorrowAt decodes the WireString at addr as a borrowed argument.
// The caller that passed addr still owns it.
func BorrowAt(mem ports.Memory, addr entities.Addr) (View, error) {
	if addr.IsNull() {
		return View{}, nil
	}
	s, err := DecodeString(mem, addr)
	if err != nil {
		return View{}, err
	}
	return View{s: s}, nil
}

// String returns the viewed text.
func (v View) String() string {
	return v.s
}

// Len returns the length of the view in UTF-16 code units.
func (v View) Len() int {
	return UnitLength(v.s)
}

// Bytes returns the view's wire encoding, terminator included.
func (v View) Bytes() ([]byte, error) {
	return Encode(v.s)
}

// Copy places a new owned WireString with the view's contents in mem.
func (v View) Copy(mem ports.Memory) (entities.Addr, error) {
	return EncodeString(mem, v.s)
}
