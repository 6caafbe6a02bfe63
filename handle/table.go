// Package handle maps opaque addresses to producer-side Go values.
//
// Go pointers must not be handed to foreign code, so an exported function
// that returns an object returns a handle from a Table instead. Handles carry
// a generation: a handle used after removal, or removed twice, is reported
// rather than resolving to whatever reused its slot.
package handle

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
)

// ErrClosed is returned by Insert after Close.
var ErrClosed = errors.New("handle table closed")

// Table is a concurrency-safe handle table. The values themselves must
// provide their own synchronization if they are shared between callers.
type Table[T any] struct {
	entries  []entry[T]
	freeList []uint32
	ptrSize  int
	mu       sync.RWMutex
	closed   bool
}

type entry[T any] struct {
	value T
	gen   uint32
	valid bool
}

// Option configures a Table.
type Option func(*options)

type options struct {
	ptrSize int
}

// WithPtrSize makes handles fit pointer fields of n bytes (4 or 8).
func WithPtrSize(n int) Option {
	return func(o *options) {
		if n == 4 || n == 8 {
			o.ptrSize = n
		}
	}
}

// NewTable creates an empty Table.
func NewTable[T any](opts ...Option) *Table[T] {
	o := options{ptrSize: 8}
	for _, opt := range opts {
		opt(&o)
	}
	return &Table[T]{
		entries:  make([]entry[T], 0, 16),
		freeList: make([]uint32, 0, 16),
		ptrSize:  o.ptrSize,
	}
}

// Insert stores v and returns its handle.
func (t *Table[T]) Insert(v T) (entities.Addr, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return entities.Null, ErrClosed
	}

	if n := len(t.freeList); n > 0 {
		index := t.freeList[n-1]
		t.freeList = t.freeList[:n-1]
		e := &t.entries[index]
		e.value = v
		e.valid = true
		return t.pack(index, e.gen), nil
	}

	if t.ptrSize == 4 && len(t.entries) > entities.MaxSlot32Index {
		return entities.Null, fmt.Errorf("handle table full: %d entries", len(t.entries))
	}
	t.entries = append(t.entries, entry[T]{value: v, valid: true})
	return t.pack(uint32(len(t.entries)-1), 0), nil //nolint:gosec // G115: bounded above
}

// Get resolves a handle.
func (t *Table[T]) Get(h entities.Addr) (T, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	e := t.lookup(h)
	if e == nil {
		var zero T
		return zero, false
	}
	return e.value, true
}

// MustGet resolves a handle or returns an error naming it.
func (t *Table[T]) MustGet(h entities.Addr) (T, error) {
	v, ok := t.Get(h)
	if !ok {
		return v, fmt.Errorf("%w: unknown handle %s", abierrors.ErrInvalidAddress, h)
	}
	return v, nil
}

// Remove deletes a handle and returns the value it referred to.
// ok is false for unknown, stale or already removed handles.
func (t *Table[T]) Remove(h entities.Addr) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	e := t.lookup(h)
	if e == nil {
		return zero, false
	}
	v := e.value
	e.value = zero
	e.valid = false
	e.gen++
	index, _, _ := t.unpack(h)
	t.freeList = append(t.freeList, index)
	return v, true
}

// Len returns the number of live handles.
func (t *Table[T]) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries) - len(t.freeList)
}

// Close invalidates every handle. Values implementing io.Closer are closed
// and their errors joined.
func (t *Table[T]) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true

	var errs []error
	for i := range t.entries {
		if !t.entries[i].valid {
			continue
		}
		if c, ok := any(t.entries[i].value).(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	t.entries = nil
	t.freeList = nil
	return errors.Join(errs...)
}

// lookup returns the live entry for h. Caller holds t.mu.
func (t *Table[T]) lookup(h entities.Addr) *entry[T] {
	index, _, ok := t.unpack(h)
	if !ok || int(index) >= len(t.entries) {
		return nil
	}
	e := &t.entries[index]
	if !e.valid || t.pack(index, e.gen) != h {
		return nil
	}
	return e
}

func (t *Table[T]) pack(index, gen uint32) entities.Addr {
	if t.ptrSize == 4 {
		return entities.PackSlot32(index, gen)
	}
	return entities.PackSlot(index, gen)
}

func (t *Table[T]) unpack(h entities.Addr) (index, gen uint32, ok bool) {
	if t.ptrSize == 4 {
		return entities.UnpackSlot32(h)
	}
	return entities.UnpackSlot(h)
}
