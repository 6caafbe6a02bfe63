package wireformat

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

// PutBool writes v as one byte: 1 for true, 0 for false.
func PutBool(mem ports.Memory, addr entities.Addr, off uint32, v bool) error {
	var b byte
	if v {
		b = 1
	}
	return write(mem, addr, off, "bool", []byte{b})
}

// ReadBool reads one byte; any nonzero value is true.
func ReadBool(mem ports.Memory, addr entities.Addr, off uint32) (bool, error) {
	data, err := read(mem, addr, off, 1, "bool")
	if err != nil {
		return false, err
	}
	return data[0] != 0, nil
}

// PutInt32 writes v as 4 bytes in host byte order.
func PutInt32(mem ports.Memory, addr entities.Addr, off uint32, v int32) error {
	return PutUint32(mem, addr, off, uint32(v)) //nolint:gosec // G115: bit pattern is preserved
}

// ReadInt32 reads 4 bytes in host byte order as a signed integer.
func ReadInt32(mem ports.Memory, addr entities.Addr, off uint32) (int32, error) {
	v, err := ReadUint32(mem, addr, off)
	return int32(v), err //nolint:gosec // G115: bit pattern is preserved
}

// PutUint32 writes v as 4 bytes in host byte order.
func PutUint32(mem ports.Memory, addr entities.Addr, off uint32, v uint32) error {
	return write(mem, addr, off, "uint32", binary.NativeEndian.AppendUint32(nil, v))
}

// ReadUint32 reads 4 bytes in host byte order.
func ReadUint32(mem ports.Memory, addr entities.Addr, off uint32) (uint32, error) {
	data, err := read(mem, addr, off, 4, "uint32")
	if err != nil {
		return 0, err
	}
	return binary.NativeEndian.Uint32(data), nil
}

// PutAddr writes v as a pointer-width field of mem.PtrSize() bytes.
// On a 4-byte Memory an address above 32 bits is an error.
func PutAddr(mem ports.Memory, addr entities.Addr, off uint32, v entities.Addr) error {
	switch mem.PtrSize() {
	case 4:
		if uint64(v) > math.MaxUint32 {
			return &abierrors.WireFormatError{
				Operation: "encode", Type: "ptr", Addr: addr,
				Err: fmt.Errorf("address %s does not fit in 32 bits", v),
			}
		}
		return write(mem, addr, off, "ptr", binary.NativeEndian.AppendUint32(nil, uint32(v)))
	default:
		return write(mem, addr, off, "ptr", binary.NativeEndian.AppendUint64(nil, uint64(v)))
	}
}

// ReadAddr reads a pointer-width field of mem.PtrSize() bytes.
func ReadAddr(mem ports.Memory, addr entities.Addr, off uint32) (entities.Addr, error) {
	width := uint32(mem.PtrSize()) //nolint:gosec // G115: 4 or 8
	data, err := read(mem, addr, off, width, "ptr")
	if err != nil {
		return entities.Null, err
	}
	if width == 4 {
		return entities.Addr(binary.NativeEndian.Uint32(data)), nil
	}
	return entities.Addr(binary.NativeEndian.Uint64(data)), nil
}

func write(mem ports.Memory, addr entities.Addr, off uint32, typ string, data []byte) error {
	if err := mem.Write(addr, off, data); err != nil {
		return &abierrors.WireFormatError{Operation: "write", Type: typ, Addr: addr, Err: err}
	}
	return nil
}

func read(mem ports.Memory, addr entities.Addr, off, n uint32, typ string) ([]byte, error) {
	data, err := mem.Read(addr, off, n)
	if err != nil {
		return nil, &abierrors.WireFormatError{Operation: "read", Type: typ, Addr: addr, Err: err}
	}
	return data, nil
}
