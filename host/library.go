package host

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/reglet-dev/nativeabi/application/schema"
	"github.com/reglet-dev/nativeabi/domain/entities"
	abierrors "github.com/reglet-dev/nativeabi/domain/errors"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/envelope"
	"github.com/reglet-dev/nativeabi/exports"
	"github.com/reglet-dev/nativeabi/marshal"
)

// ErrUnknownFunction is returned for names the manifest does not declare.
var ErrUnknownFunction = errors.New("function not declared")

// Caller invokes exported functions by name and returns the envelope each
// call produced. *wazero.Instance is a Caller; InProcess adapts a registry.
type Caller interface {
	Call(ctx context.Context, name string, args ...uint64) (entities.Addr, error)
	Memory() ports.Memory
}

type inProcess struct {
	reg *exports.Registry
}

// InProcess returns a Caller for a registry living in this process.
func InProcess(reg *exports.Registry) Caller {
	return inProcess{reg: reg}
}

func (c inProcess) Call(ctx context.Context, name string, args ...uint64) (entities.Addr, error) {
	return c.reg.Invoke(ctx, name, args...)
}

func (c inProcess) Memory() ports.Memory {
	return c.reg.Memory()
}

// LibraryOption configures a Library.
type LibraryOption func(*Library)

// WithPayloadValidation checks structured-text results against the schema
// their declaration carries before they are decoded.
func WithPayloadValidation(v *schema.PayloadValidator) LibraryOption {
	return func(l *Library) {
		l.payloads = v
	}
}

// WithLibraryLogger sets the logger used for release failures.
func WithLibraryLogger(logger *slog.Logger) LibraryOption {
	return func(l *Library) {
		l.logger = logger
	}
}

// Library is the consumer side of a native library: it encodes Go arguments
// into the callee's memory, calls through a Caller and turns the returned
// envelope back into a Go value and error, releasing everything the callee
// handed over.
type Library struct {
	caller   Caller
	manifest *entities.LibraryManifest
	decls    map[string]entities.Declaration
	consumer *envelope.Consumer
	payloads *schema.PayloadValidator
	logger   *slog.Logger
}

// Open binds a manifest to the Caller that implements it.
func Open(caller Caller, m *entities.LibraryManifest, opts ...LibraryOption) (*Library, error) {
	if caller == nil {
		return nil, errors.New("host: caller is required")
	}
	if m == nil {
		return nil, errors.New("host: manifest is required")
	}

	l := &Library{
		caller:   caller,
		manifest: m,
		decls:    make(map[string]entities.Declaration, len(m.Exports)),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	for _, d := range m.Exports {
		l.decls[d.Name] = d
	}

	var cOpts []envelope.ConsumerOption
	if in, ok := caller.(inProcess); ok {
		cOpts = append(cOpts, envelope.WithStatic(in.reg.DeallocResult()))
	}
	l.consumer = envelope.NewConsumer(caller.Memory(), cOpts...)
	return l, nil
}

// Manifest returns the manifest the library was opened with.
func (l *Library) Manifest() *entities.LibraryManifest {
	return l.manifest
}

// Declaration returns the declaration of name.
func (l *Library) Declaration(name string) (entities.Declaration, bool) {
	d, ok := l.decls[name]
	return d, ok
}

// CallVoid calls a function returning return_value_void.
func (l *Library) CallVoid(ctx context.Context, name string, args ...any) error {
	addr, c, err := l.invoke(ctx, name, entities.KindVoid, args)
	if err != nil {
		return err
	}
	return c.Void(addr)
}

// CallString calls a function returning return_value_string.
func (l *Library) CallString(ctx context.Context, name string, args ...any) (string, error) {
	addr, c, err := l.invoke(ctx, name, entities.KindString, args)
	if err != nil {
		return "", err
	}
	return c.String(addr)
}

// CallJSON calls a function returning return_value_json and returns the
// payload text. With payload validation enabled the text is checked against
// the declared schema.
func (l *Library) CallJSON(ctx context.Context, name string, args ...any) ([]byte, error) {
	addr, c, err := l.invoke(ctx, name, entities.KindText, args)
	if err != nil {
		return nil, err
	}
	data, err := c.Text(addr)
	if err != nil {
		return nil, err
	}
	if l.payloads != nil {
		if err := l.payloads.Validate(l.decls[name], data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// CallText calls a function returning return_value_json and decodes the
// payload into v.
func (l *Library) CallText(ctx context.Context, name string, v any, args ...any) error {
	data, err := l.CallJSON(ctx, name, args...)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &abierrors.DecodeError{Caller: name, Type: fmt.Sprintf("%T", v), Text: string(data), Err: err}
	}
	return nil
}

// CallBool calls a function returning return_value_bool.
func (l *Library) CallBool(ctx context.Context, name string, args ...any) (bool, error) {
	addr, c, err := l.invoke(ctx, name, entities.KindBool, args)
	if err != nil {
		return false, err
	}
	return c.Bool(addr)
}

// CallInt32 calls a function returning return_value_int32.
func (l *Library) CallInt32(ctx context.Context, name string, args ...any) (int32, error) {
	addr, c, err := l.invoke(ctx, name, entities.KindInt32, args)
	if err != nil {
		return 0, err
	}
	return c.Int32(addr)
}

// CallUint32 calls a function returning return_value_uint32.
func (l *Library) CallUint32(ctx context.Context, name string, args ...any) (uint32, error) {
	addr, c, err := l.invoke(ctx, name, entities.KindUint32, args)
	if err != nil {
		return 0, err
	}
	return c.Uint32(addr)
}

// CallHandle calls a function returning return_value_ptr. The handle is the
// caller's to give back through the function that releases it.
func (l *Library) CallHandle(ctx context.Context, name string, args ...any) (entities.Addr, error) {
	addr, c, err := l.invoke(ctx, name, entities.KindHandle, args)
	if err != nil {
		return entities.Null, err
	}
	return c.Handle(addr)
}

// Alloc asks the library for a block of size bytes.
func (l *Library) Alloc(ctx context.Context, size uint64) (entities.Addr, error) {
	return l.CallHandle(ctx, exports.AllocName, size)
}

// Dealloc hands a block back to the library. The success envelope of dealloc
// is shared and is never released; an error envelope is.
func (l *Library) Dealloc(ctx context.Context, block entities.Addr) error {
	addr, c, err := l.invoke(ctx, exports.DeallocName, entities.KindVoid, []any{block})
	if err != nil {
		return err
	}
	env, err := c.Open(addr, entities.KindVoid)
	if err != nil {
		return err
	}
	if !env.Failed() {
		return nil
	}
	return c.Void(addr)
}

func (l *Library) invoke(ctx context.Context, name string, want entities.Kind, args []any) (entities.Addr, *envelope.Consumer, error) {
	decl, ok := l.decls[name]
	if !ok {
		return entities.Null, nil, fmt.Errorf("%w: %q", ErrUnknownFunction, name)
	}
	if decl.Returns != want {
		return entities.Null, nil, fmt.Errorf("%s returns %s, not %s", name, decl.Returns.CType(), want.CType())
	}
	if len(args) != len(decl.Params) {
		return entities.Null, nil, fmt.Errorf("%s: expected %d arguments, got %d", name, len(decl.Params), len(args))
	}

	mem := l.caller.Memory()
	words := make([]uint64, len(args))
	var owned []*marshal.Owned
	defer func() {
		for _, o := range owned {
			if err := o.Release(); err != nil {
				l.logger.WarnContext(ctx, "host: release argument", "function", name, "error", err)
			}
		}
	}()
	for i, p := range decl.Params {
		w, o, err := encodeArg(mem, p, args[i])
		if err != nil {
			return entities.Null, nil, fmt.Errorf("%s: argument %s: %w", name, p.Name, err)
		}
		if o != nil {
			owned = append(owned, o)
		}
		words[i] = w
	}

	addr, err := l.caller.Call(ctx, name, words...)
	if err != nil {
		return entities.Null, nil, err
	}
	return addr, l.consumer.For(name), nil
}

// encodeArg turns one Go argument into the word passed for p. Strings are
// copied into the callee's memory and lent for the duration of the call.
func encodeArg(mem ports.Memory, p entities.Param, v any) (uint64, *marshal.Owned, error) {
	switch p.Type {
	case entities.ParamString:
		s, ok := v.(string)
		if !ok {
			return 0, nil, mismatch(p, v)
		}
		o, err := marshal.CopyWithFree(mem, s)
		if err != nil {
			return 0, nil, err
		}
		return uint64(o.Addr()), o, nil
	case entities.ParamText:
		var text []byte
		switch t := v.(type) {
		case json.RawMessage:
			text = t
		case []byte:
			text = t
		case string:
			text = []byte(t)
		default:
			var err error
			if text, err = json.Marshal(v); err != nil {
				return 0, nil, err
			}
		}
		o, err := marshal.CopyWithFree(mem, string(text))
		if err != nil {
			return 0, nil, err
		}
		return uint64(o.Addr()), o, nil
	case entities.ParamBool:
		b, ok := v.(bool)
		if !ok {
			return 0, nil, mismatch(p, v)
		}
		if b {
			return 1, nil, nil
		}
		return 0, nil, nil
	case entities.ParamInt32:
		switch n := v.(type) {
		case int32:
			return uint64(uint32(n)), nil, nil
		case int:
			return int32Word(int64(n))
		case int64:
			return int32Word(n)
		}
		return 0, nil, mismatch(p, v)
	case entities.ParamUint32:
		switch n := v.(type) {
		case uint32:
			return uint64(n), nil, nil
		case int:
			if n < 0 || uint64(n) > math.MaxUint32 {
				return 0, nil, fmt.Errorf("%d overflows uint32", n)
			}
			return uint64(n), nil, nil
		}
		return 0, nil, mismatch(p, v)
	case entities.ParamHandle:
		h, ok := v.(entities.Addr)
		if !ok {
			return 0, nil, mismatch(p, v)
		}
		return uint64(h), nil, nil
	case entities.ParamSize:
		switch n := v.(type) {
		case uint64:
			return n, nil, nil
		case uint32:
			return uint64(n), nil, nil
		case int:
			if n < 0 {
				return 0, nil, fmt.Errorf("negative size %d", n)
			}
			return uint64(n), nil, nil
		}
		return 0, nil, mismatch(p, v)
	default:
		return 0, nil, fmt.Errorf("unknown parameter type %q", p.Type)
	}
}

func int32Word(n int64) (uint64, *marshal.Owned, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, nil, fmt.Errorf("%d overflows int32", n)
	}
	return uint64(uint32(int32(n))), nil, nil
}

func mismatch(p entities.Param, v any) error {
	return fmt.Errorf("want %s, got %T", p.Type, v)
}
