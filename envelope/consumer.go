package envelope

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/wireformat"
)

// Consumer reads envelopes and releases what they own.
type Consumer struct {
	mem      ports.Memory
	static   map[entities.Addr]struct{}
	function string
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(*Consumer)

// WithStatic marks envelopes that live for the whole process, such as the
// one dealloc returns on success. They are read but never released.
func WithStatic(addrs ...entities.Addr) ConsumerOption {
	return func(c *Consumer) {
		for _, a := range addrs {
			if !a.IsNull() {
				c.static[a] = struct{}{}
			}
		}
	}
}

// NewConsumer creates a Consumer releasing blocks to mem.
func NewConsumer(mem ports.Memory, opts ...ConsumerOption) *Consumer {
	c := &Consumer{mem: mem, static: make(map[entities.Addr]struct{})}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// For returns a Consumer whose errors name function.
func (c *Consumer) For(function string) *Consumer {
	return &Consumer{mem: c.mem, static: c.static, function: function}
}

// Envelope gives raw access to an envelope's fields. It does not release
// anything; the typed Consumer methods do.
type Envelope struct {
	mem    ports.Memory
	Layout entities.Layout
	Addr   entities.Addr
	Error  entities.Addr
}

// Open reads the error field of the envelope at addr.
func (c *Consumer) Open(addr entities.Addr, kind entities.Kind) (*Envelope, error) {
	if addr.IsNull() {
		return nil, fmt.Errorf("open %s: %w", kind.CType(), abierrors.ErrNullAddress)
	}
	l := entities.LayoutOf(kind, c.mem.PtrSize())
	errAddr, err := wireformat.ReadAddr(c.mem, addr, uint32(l.ErrorOffset)) //nolint:gosec // G115: offset is a pointer width
	if err != nil {
		return nil, err
	}
	return &Envelope{mem: c.mem, Layout: l, Addr: addr, Error: errAddr}, nil
}

// Failed reports whether the error field is set.
func (e *Envelope) Failed() bool {
	return !e.Error.IsNull()
}

// ErrorText decodes the error message without releasing it.
func (e *Envelope) ErrorText() (string, error) {
	return wireformat.DecodeString(e.mem, e.Error)
}

// ValueAddr reads a pointer-width value field (string, json, ptr).
func (e *Envelope) ValueAddr() (entities.Addr, error) {
	return wireformat.ReadAddr(e.mem, e.Addr, e.valueOffset())
}

// ValueBool reads a bool value field.
func (e *Envelope) ValueBool() (bool, error) {
	return wireformat.ReadBool(e.mem, e.Addr, e.valueOffset())
}

// ValueInt32 reads an int32 value field.
func (e *Envelope) ValueInt32() (int32, error) {
	return wireformat.ReadInt32(e.mem, e.Addr, e.valueOffset())
}

// ValueUint32 reads a uint32 value field.
func (e *Envelope) ValueUint32() (uint32, error) {
	return wireformat.ReadUint32(e.mem, e.Addr, e.valueOffset())
}

func (e *Envelope) valueOffset() uint32 {
	return uint32(e.Layout.ValueOffset) //nolint:gosec // G115: offset is a pointer width
}

// Void consumes a void envelope.
func (c *Consumer) Void(addr entities.Addr) error {
	return c.consume(addr, entities.KindVoid, func(*Envelope) error { return nil })
}

// String consumes a string envelope and releases its payload.
// A null payload reads as the empty string.
func (c *Consumer) String(addr entities.Addr) (string, error) {
	var s string
	err := c.consume(addr, entities.KindString, func(e *Envelope) error {
		var err error
		s, err = c.takeString(e)
		return err
	})
	return s, err
}

// Text consumes a structured-text envelope and releases its payload.
func (c *Consumer) Text(addr entities.Addr) ([]byte, error) {
	var s string
	err := c.consume(addr, entities.KindText, func(e *Envelope) error {
		var err error
		s, err = c.takeString(e)
		return err
	})
	if err != nil || s == "" {
		return nil, err
	}
	return []byte(s), nil
}

// TextInto consumes a structured-text envelope and decodes it into v.
func (c *Consumer) TextInto(addr entities.Addr, v any) error {
	data, err := c.Text(addr)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &abierrors.DecodeError{Caller: c.function, Type: fmt.Sprintf("%T", v), Text: string(data), Err: err}
	}
	return nil
}

// Bool consumes a bool envelope.
func (c *Consumer) Bool(addr entities.Addr) (bool, error) {
	var v bool
	err := c.consume(addr, entities.KindBool, func(e *Envelope) error {
		var err error
		v, err = e.ValueBool()
		return err
	})
	return v, err
}

// Int32 consumes an int32 envelope.
func (c *Consumer) Int32(addr entities.Addr) (int32, error) {
	var v int32
	err := c.consume(addr, entities.KindInt32, func(e *Envelope) error {
		var err error
		v, err = e.ValueInt32()
		return err
	})
	return v, err
}

// Uint32 consumes a uint32 envelope.
func (c *Consumer) Uint32(addr entities.Addr) (uint32, error) {
	var v uint32
	err := c.consume(addr, entities.KindUint32, func(e *Envelope) error {
		var err error
		v, err = e.ValueUint32()
		return err
	})
	return v, err
}

// Handle consumes a handle envelope. The envelope is released; the handle
// is not, and now belongs to the caller.
func (c *Consumer) Handle(addr entities.Addr) (entities.Addr, error) {
	var v entities.Addr
	err := c.consume(addr, entities.KindHandle, func(e *Envelope) error {
		var err error
		v, err = e.ValueAddr()
		return err
	})
	return v, err
}

// consume checks the error field before anything else. On failure the value
// field is never read; the message and the envelope are released and the
// message is returned as *errors.NativeCallError. On success read extracts
// the value and the envelope is released afterwards.
func (c *Consumer) consume(addr entities.Addr, kind entities.Kind, read func(*Envelope) error) error {
	env, err := c.Open(addr, kind)
	if err != nil {
		return err
	}

	if env.Failed() {
		msg, decodeErr := env.ErrorText()
		freeErr := c.mem.Free(env.Error)
		releaseErr := c.mem.Free(addr)
		if decodeErr != nil {
			return errors.Join(decodeErr, freeErr, releaseErr)
		}
		callErr := &abierrors.NativeCallError{Function: c.function, Message: msg}
		if freeErr != nil || releaseErr != nil {
			return errors.Join(callErr, freeErr, releaseErr)
		}
		return callErr
	}

	readErr := read(env)
	if _, ok := c.static[addr]; ok {
		return readErr
	}
	return errors.Join(readErr, c.mem.Free(addr))
}

// takeString decodes and releases an owned string payload.
func (c *Consumer) takeString(e *Envelope) (string, error) {
	payload, err := e.ValueAddr()
	if err != nil || payload.IsNull() {
		return "", err
	}
	s, decodeErr := wireformat.DecodeString(c.mem, payload)
	return s, errors.Join(decodeErr, c.mem.Free(payload))
}
