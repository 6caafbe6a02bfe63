// Package wireformat encodes values into the byte layouts that cross the
// native boundary: NUL-terminated UTF-16 strings and fixed-width scalars,
// all in host byte order. Both sides must share endianness; nothing here
// swaps bytes.
package wireformat

import (
	"bytes"
	"encoding/binary"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/unicode"
)

// DefaultMaxStringUnits bounds how many code units DecodeString scans for
// the terminator before giving up.
const DefaultMaxStringUnits = 16 << 20

// UnitSize is the width of one UTF-16 code unit.
const UnitSize = 2

// scanUnits is how many code units DecodeString reads per round trip.
const scanUnits = 64

var utf16Host encoding.Encoding = unicode.UTF16(hostEndianness(), unicode.IgnoreBOM)

func hostEndianness() unicode.Endianness {
	if binary.NativeEndian.Uint16([]byte{1, 0}) == 1 {
		return unicode.LittleEndian
	}
	return unicode.BigEndian
}

// Encode returns s as UTF-16 code units in host byte order followed by a
// zero unit. Invalid UTF-8 is replaced with U+FFFD. A string containing NUL
// is rejected, because the receiver would see it truncated.
func Encode(s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, &abierrors.WireFormatError{Operation: "encode", Type: "string", Err: abierrors.ErrEmbeddedNUL}
	}
	units, err := utf16Host.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return nil, &abierrors.WireFormatError{Operation: "encode", Type: "string", Err: err}
	}
	return append(units, 0, 0), nil
}

// Decode interprets b as UTF-16 code units in host byte order, stopping at
// the first zero unit or the end of b. Unpaired surrogates decode to U+FFFD.
func Decode(b []byte) (string, error) {
	n := len(b) &^ 1
	for i := 0; i < n; i += UnitSize {
		if b[i] == 0 && b[i+1] == 0 {
			n = i
			break
		}
	}
	out, err := utf16Host.NewDecoder().Bytes(b[:n])
	if err != nil {
		return "", &abierrors.WireFormatError{Operation: "decode", Type: "string", Err: err}
	}
	return string(out), nil
}

// UnitLength returns the number of UTF-16 code units s encodes to, without
// the terminator.
func UnitLength(s string) int {
	units, err := utf16Host.NewEncoder().Bytes([]byte(s))
	if err != nil {
		return 0
	}
	return len(units) / UnitSize
}

// EncodeString allocates a new owned WireString in mem holding s.
// The caller owns the returned address and must release it through mem.
// Allocation failure is reported as *errors.AllocationError.
func EncodeString(mem ports.Memory, s string) (entities.Addr, error) {
	data, err := Encode(s)
	if err != nil {
		return entities.Null, err
	}
	return place(mem, data)
}

// place allocates a block exactly the size of data and copies data into it.
func place(mem ports.Memory, data []byte) (entities.Addr, error) {
	addr, err := mem.Alloc(uint64(len(data)))
	if err != nil {
		return entities.Null, asAllocationError(err, uint64(len(data)))
	}
	if err := mem.Write(addr, 0, data); err != nil {
		_ = mem.Free(addr)
		return entities.Null, &abierrors.WireFormatError{Operation: "write", Type: "string", Addr: addr, Err: err}
	}
	return addr, nil
}

func asAllocationError(err error, size uint64) error {
	var allocErr *abierrors.AllocationError
	if stdErrors.As(err, &allocErr) {
		return err
	}
	return &abierrors.AllocationError{Requested: size, Err: err}
}

// DecodeString copies the WireString at addr into a Go string. Ownership of
// addr does not change.
func DecodeString(mem ports.Memory, addr entities.Addr) (string, error) {
	return DecodeStringLimit(mem, addr, DefaultMaxStringUnits)
}

// DecodeStringLimit is DecodeString with an explicit bound on the number of
// code units scanned for the terminator. Memories implementing
// ports.StringReader scan for the terminator themselves; others are read in
// chunks, which relies on their reads being bounds-checked.
func DecodeStringLimit(mem ports.Memory, addr entities.Addr, maxUnits int) (string, error) {
	if addr.IsNull() {
		return "", &abierrors.WireFormatError{Operation: "decode", Type: "string", Addr: addr, Err: abierrors.ErrNullAddress}
	}
	if sr, ok := mem.(ports.StringReader); ok {
		data, found, err := sr.ReadString16(addr, maxUnits)
		if err != nil {
			return "", &abierrors.WireFormatError{Operation: "decode", Type: "string", Addr: addr, Err: err}
		}
		if !found {
			return "", unterminated(addr, maxUnits)
		}
		return Decode(data)
	}

	var buf bytes.Buffer
	chunk := uint32(scanUnits * UnitSize)
	for off := uint32(0); ; {
		if buf.Len()/UnitSize > maxUnits {
			return "", unterminated(addr, maxUnits)
		}

		data, err := mem.Read(addr, off, chunk)
		if stdErrors.Is(err, abierrors.ErrOutOfBounds) && chunk > UnitSize {
			// Near the end of the block; fall back to one unit at a time.
			chunk = UnitSize
			continue
		}
		if err != nil {
			return "", &abierrors.WireFormatError{Operation: "decode", Type: "string", Addr: addr, Err: err}
		}

		for i := 0; i+1 < len(data); i += UnitSize {
			if data[i] == 0 && data[i+1] == 0 {
				if (buf.Len()+i)/UnitSize > maxUnits {
					break
				}
				buf.Write(data[:i])
				return Decode(buf.Bytes())
			}
		}
		buf.Write(data)
		off += chunk
	}
}

func unterminated(addr entities.Addr, maxUnits int) error {
	return &abierrors.WireFormatError{
		Operation: "decode", Type: "string", Addr: addr,
		Err: fmt.Errorf("%w: no terminator within %d units", abierrors.ErrLimitExceeded, maxUnits),
	}
}
