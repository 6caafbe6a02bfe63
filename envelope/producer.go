package envelope

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/wireformat"
)

// Producer builds envelopes in a Memory. Every constructor returns exactly
// one non-null envelope whose ownership passes to the caller.
type Producer struct {
	mem    ports.Memory
	term   ports.Terminator
	logger *slog.Logger
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithTerminator sets what happens when no envelope can be built.
// The default logs and exits with DefaultExitCode.
func WithTerminator(t ports.Terminator) ProducerOption {
	return func(p *Producer) {
		p.term = t
	}
}

// WithLogger sets the logger for error envelopes. Defaults to slog.Default().
func WithLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) {
		p.logger = l
	}
}

// NewProducer creates a Producer allocating from mem.
func NewProducer(mem ports.Memory, opts ...ProducerOption) *Producer {
	p := &Producer{mem: mem}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.term == nil {
		p.term = ExitTerminator{Logger: p.logger}
	}
	return p
}

// Memory returns the Memory envelopes are allocated from.
func (p *Producer) Memory() ports.Memory {
	return p.mem
}

// Void returns a void envelope, carrying err's message when err is non-nil.
func (p *Producer) Void(err error) entities.Addr {
	if err != nil {
		return p.FailErr(entities.KindVoid, err)
	}
	addr, _ := p.envelope(entities.KindVoid)
	return addr
}

// Fail returns an error envelope of the given kind carrying msg.
func (p *Producer) Fail(kind entities.Kind, msg string) entities.Addr {
	addr, l := p.envelope(kind)
	defer p.releaseOnPanic(addr)
	p.failInto(addr, l, msg)
	return addr
}

// FailErr is Fail with an error's message. The error's structured detail is
// logged with its type, code and cause before it is flattened onto the wire.
func (p *Producer) FailErr(kind entities.Kind, err error) entities.Addr {
	if d := abierrors.ToErrorDetail(err); d != nil {
		attrs := []any{"kind", kind.String(), "type", d.Type, "code", d.Code}
		if d.Wrapped != nil {
			attrs = append(attrs, "cause_type", d.Wrapped.Type, "cause", d.Wrapped.Error())
		}
		if len(d.Details) > 0 {
			attrs = append(attrs, "details", d.Details)
		}
		p.logger.Debug("envelope: export failed", attrs...)
	}
	return p.Fail(kind, err.Error())
}

// String returns a string envelope. The value is placed in a freshly
// allocated WireString owned by the caller.
func (p *Producer) String(r entities.Result[string]) entities.Addr {
	return p.owned(entities.KindString, r)
}

// Text returns a structured-text envelope holding data, which should be a
// JSON document.
func (p *Producer) Text(r entities.Result[[]byte]) entities.Addr {
	if msg, failed := r.Err(); failed {
		return p.Fail(entities.KindText, msg)
	}
	data, _ := r.Value()
	return p.owned(entities.KindText, entities.Ok(string(data)))
}

// TextValue marshals v to JSON and returns a structured-text envelope.
// A non-nil err, or a marshaling failure, yields an error envelope.
func (p *Producer) TextValue(v any, err error) entities.Addr {
	if err != nil {
		return p.FailErr(entities.KindText, err)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return p.Fail(entities.KindText, fmt.Sprintf("failed to serialize %T: %v", v, err))
	}
	return p.owned(entities.KindText, entities.Ok(string(data)))
}

// Bool returns a bool envelope.
func (p *Producer) Bool(r entities.Result[bool]) entities.Addr {
	return inline(p, entities.KindBool, r, func(addr entities.Addr, off uint32, v bool) error {
		return wireformat.PutBool(p.mem, addr, off, v)
	})
}

// Int32 returns an int32 envelope.
func (p *Producer) Int32(r entities.Result[int32]) entities.Addr {
	return inline(p, entities.KindInt32, r, func(addr entities.Addr, off uint32, v int32) error {
		return wireformat.PutInt32(p.mem, addr, off, v)
	})
}

// Uint32 returns a uint32 envelope.
func (p *Producer) Uint32(r entities.Result[uint32]) entities.Addr {
	return inline(p, entities.KindUint32, r, func(addr entities.Addr, off uint32, v uint32) error {
		return wireformat.PutUint32(p.mem, addr, off, v)
	})
}

// Handle returns a handle envelope. Ownership of the handle passes to the
// caller with the envelope; it is released through its own deallocation
// entry point, never by releasing the envelope.
func (p *Producer) Handle(r entities.Result[entities.Addr]) entities.Addr {
	return inline(p, entities.KindHandle, r, func(addr entities.Addr, off uint32, v entities.Addr) error {
		return wireformat.PutAddr(p.mem, addr, off, v)
	})
}

func inline[T any](p *Producer, kind entities.Kind, r entities.Result[T], put func(entities.Addr, uint32, T) error) entities.Addr {
	if msg, failed := r.Err(); failed {
		return p.Fail(kind, msg)
	}
	v, _ := r.Value()
	addr, l := p.envelope(kind)
	defer p.releaseOnPanic(addr)
	if err := put(addr, uint32(l.ValueOffset), v); err != nil { //nolint:gosec // G115: offset is a pointer width
		p.failInto(addr, l, err.Error())
	}
	return addr
}

// owned builds a string-valued envelope: the envelope first, then the
// payload. A payload that cannot be placed turns the envelope into an error
// envelope instead.
func (p *Producer) owned(kind entities.Kind, r entities.Result[string]) entities.Addr {
	if msg, failed := r.Err(); failed {
		return p.Fail(kind, msg)
	}
	v, _ := r.Value()
	addr, l := p.envelope(kind)
	defer p.releaseOnPanic(addr)

	payload, err := wireformat.EncodeString(p.mem, v)
	if err != nil {
		p.failInto(addr, l, payloadFailure(err))
		return addr
	}
	if err := wireformat.PutAddr(p.mem, addr, uint32(l.ValueOffset), payload); err != nil { //nolint:gosec // G115: see inline
		_ = p.mem.Free(payload)
		p.failInto(addr, l, err.Error())
	}
	return addr
}

func payloadFailure(err error) string {
	var allocErr *abierrors.AllocationError
	if errors.As(err, &allocErr) {
		return err.Error()
	}
	return fmt.Sprintf("invalid value: %v", err)
}

// envelope allocates and zeroes an envelope struct. Failure here leaves
// nothing to report through, so it terminates.
func (p *Producer) envelope(kind entities.Kind) (entities.Addr, entities.Layout) {
	l := entities.LayoutOf(kind, p.mem.PtrSize())
	addr, err := p.mem.Alloc(uint64(l.Size)) //nolint:gosec // G115: layout sizes are small
	if err != nil {
		p.fatal(fmt.Errorf("allocate %s: %w", kind.CType(), err))
	}
	// Native allocators hand out uninitialized memory.
	if err := p.mem.Write(addr, 0, make([]byte, l.Size)); err != nil {
		_ = p.mem.Free(addr)
		p.fatal(fmt.Errorf("initialize %s: %w", kind.CType(), err))
	}
	return addr, l
}

// failInto writes msg into the error field of a zeroed envelope. On an
// unrecoverable failure the envelope itself is released by the caller's
// deferred releaseOnPanic.
func (p *Producer) failInto(addr entities.Addr, l entities.Layout, msg string) {
	p.logger.Debug("envelope: returning error", "kind", l.Kind.String(), "error", msg)

	// NUL would truncate the message on the wire.
	msg = strings.ReplaceAll(msg, "\x00", "\uFFFD")
	errAddr, err := wireformat.EncodeString(p.mem, msg)
	if err != nil {
		p.fatal(fmt.Errorf("allocate error message %q: %w", msg, err))
	}
	if l.Kind.HasValue() {
		if err := p.mem.Write(addr, uint32(l.ValueOffset), make([]byte, l.ValueSize)); err != nil { //nolint:gosec // G115: see inline
			p.abandon(errAddr, err)
		}
	}
	if err := wireformat.PutAddr(p.mem, addr, uint32(l.ErrorOffset), errAddr); err != nil { //nolint:gosec // G115: see inline
		p.abandon(errAddr, err)
	}
}

func (p *Producer) abandon(errAddr entities.Addr, err error) {
	_ = p.mem.Free(errAddr)
	p.fatal(fmt.Errorf("write error field: %w", err))
}

// releaseOnPanic frees an envelope whose construction is unwinding, so a
// recovering caller that builds a replacement leaves nothing behind. It must
// be deferred directly by the function that allocated addr.
func (p *Producer) releaseOnPanic(addr entities.Addr) {
	if r := recover(); r != nil {
		_ = p.mem.Free(addr)
		panic(r)
	}
}

func (p *Producer) fatal(reason error) {
	p.term.Terminate(reason)
	panic(fmt.Sprintf("envelope: terminator returned after unrecoverable failure: %v", reason))
}
