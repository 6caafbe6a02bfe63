// Package marshal holds the helpers exported functions use to hand values
// across the boundary: owned copies, scoped copies released on return,
// borrowed views, and boxed fixed-size values.
package marshal

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/wireformat"
)

// Copy places an owned WireString holding s in mem. The caller owns the
// result and must release it exactly once.
func Copy(mem ports.Memory, s string) (entities.Addr, error) {
	return wireformat.EncodeString(mem, s)
}

// NoCopy returns a borrowed view of s. Nothing is allocated and there is
// nothing to release.
func NoCopy(s string) wireformat.View {
	return wireformat.Borrow(s)
}

// Owned is a block with exactly one owner. Release frees it unless it was
// already released or moved out with Take; either way the block is freed
// at most once.
type Owned struct {
	mem  ports.Memory
	err  error
	addr entities.Addr
	mu   sync.Mutex
	done bool
}

// Own wraps an address the caller already owns.
func Own(mem ports.Memory, addr entities.Addr) *Owned {
	return &Owned{mem: mem, addr: addr}
}

// CopyWithFree places an owned WireString in mem and returns it wrapped for
// scoped release:
//
//	o, err := marshal.CopyWithFree(mem, s)
//	if err != nil { ... }
//	defer o.Release()
func CopyWithFree(mem ports.Memory, s string) (*Owned, error) {
	addr, err := Copy(mem, s)
	if err != nil {
		return nil, err
	}
	return Own(mem, addr), nil
}

// Addr returns the block's address without moving it. It is null after Take
// or Release.
func (o *Owned) Addr() entities.Addr {
	if o == nil {
		return entities.Null
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.addr
}

// Take moves the address out. The caller becomes responsible for it and a
// later Release does nothing.
func (o *Owned) Take() entities.Addr {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return entities.Null
	}
	addr := o.addr
	o.addr = entities.Null
	o.done = true
	return addr
}

// Release frees the block if it is still owned. It is safe to call more than
// once and after Take.
func (o *Owned) Release() error {
	if o == nil {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done {
		return o.err
	}
	o.done = true
	o.err = o.mem.Free(o.addr)
	o.addr = entities.Null
	return o.err
}

// Create boxes v into a new block using encoding/binary layout rules in host
// byte order. T must be a fixed-size value (see binary.Size).
func Create[T any](mem ports.Memory, v T) (entities.Addr, error) {
	size := binary.Size(v)
	if size < 0 {
		return entities.Null, fmt.Errorf("create: %T is not a fixed-size value", v)
	}
	data, err := binary.Append(make([]byte, 0, size), binary.NativeEndian, v)
	if err != nil {
		return entities.Null, fmt.Errorf("create %T: %w", v, err)
	}
	addr, err := mem.Alloc(uint64(size)) //nolint:gosec // G115: size checked non-negative
	if err != nil {
		return entities.Null, err
	}
	if err := mem.Write(addr, 0, data); err != nil {
		_ = mem.Free(addr)
		return entities.Null, &abierrors.WireFormatError{Operation: "write", Type: fmt.Sprintf("%T", v), Addr: addr, Err: err}
	}
	return addr, nil
}

// Load reads a value boxed by Create. Ownership of addr does not change.
func Load[T any](mem ports.Memory, addr entities.Addr) (T, error) {
	var v T
	size := binary.Size(v)
	if size < 0 {
		return v, fmt.Errorf("load: %T is not a fixed-size value", v)
	}
	data, err := mem.Read(addr, 0, uint32(size)) //nolint:gosec // G115: size checked non-negative
	if err != nil {
		return v, &abierrors.WireFormatError{Operation: "read", Type: fmt.Sprintf("%T", v), Addr: addr, Err: err}
	}
	if _, err := binary.Decode(data, binary.NativeEndian, &v); err != nil {
		return v, fmt.Errorf("load %T: %w", v, err)
	}
	return v, nil
}
