package exports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/envelope"
)

// ErrUnknownExport is returned by Invoke for names that are not registered.
var ErrUnknownExport = errors.New("unknown export")

// Registry is an immutable collection of named exports.
// Once created via NewRegistry, exports cannot be added or removed.
// This keeps lookups lock-free during calls.
type Registry struct {
	exports   map[string]Export
	producer  *envelope.Producer
	mem       ports.Memory
	names     []string // sorted for consistent iteration
	deallocOK entities.Addr
	closeOnce sync.Once
}

// RegistryOption is a functional option for configuring a Registry.
type RegistryOption func(*registryBuilder)

type registryBuilder struct {
	exports       map[string]Export
	middleware    []Middleware
	producerOpts  []envelope.ProducerOption
	errors        []error
	allowReserved bool
}

// NewRegistry creates an immutable Registry allocating from mem.
// Returns an error if any export name is registered twice, or if an export
// takes one of the builtin names.
//
// Example usage:
//
//	registry, err := NewRegistry(mem,
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(textkit.Bundle()),
//	    WithExport(custom),
//	)
func NewRegistry(mem ports.Memory, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{mem: mem}
	b := &registryBuilder{exports: make(map[string]Export)}

	b.allowReserved = true
	for _, e := range r.builtins() {
		if err := b.add(e); err != nil {
			return nil, err
		}
	}
	b.allowReserved = false

	for _, opt := range opts {
		opt(b)
	}
	if len(b.errors) > 0 {
		return nil, errors.Join(b.errors...)
	}

	names := make([]string, 0, len(b.exports))
	for name := range b.exports {
		names = append(names, name)
	}
	sort.Strings(names)

	// Apply middleware in reverse order so first middleware wraps outermost.
	wrapped := make(map[string]Export, len(b.exports))
	for name, e := range b.exports {
		h := e.Handler
		for i := len(b.middleware) - 1; i >= 0; i-- {
			h = b.middleware[i](h)
		}
		e.Handler = h
		wrapped[name] = e
	}

	r.exports = wrapped
	r.names = names
	r.producer = envelope.NewProducer(mem, b.producerOpts...)
	r.deallocOK = r.producer.Void(nil)
	return r, nil
}

// Invoke calls the export name with raw argument words and returns the
// envelope it produced. An unknown name is a Go error, since there is no
// declared kind to build an envelope of; a wrong argument count is an error
// envelope.
func (r *Registry) Invoke(ctx context.Context, name string, args ...uint64) (entities.Addr, error) {
	e, ok := r.exports[name]
	if !ok {
		return entities.Null, fmt.Errorf("%w: %q", ErrUnknownExport, name)
	}
	decl := e.Declaration
	if len(args) != len(decl.Params) {
		return r.producer.Fail(decl.Returns, fmt.Sprintf("%s: expected %d arguments, got %d", name, len(decl.Params), len(args))), nil
	}

	cc := CallContextFrom(ctx, decl)
	return e.Handler(cc, r.producer, NewArgs(r.mem, decl.Params, args...)), nil
}

// Has returns true if an export with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.exports[name]
	return ok
}

// Names returns a sorted list of all export names, builtins included.
func (r *Registry) Names() []string {
	result := make([]string, len(r.names))
	copy(result, r.names)
	return result
}

// Declarations returns the declarations of all exports, sorted by name.
func (r *Registry) Declarations() []entities.Declaration {
	decls := make([]entities.Declaration, 0, len(r.names))
	for _, name := range r.names {
		decls = append(decls, r.exports[name].Declaration)
	}
	return decls
}

// Exports returns all exports, sorted by name.
func (r *Registry) Exports() []Export {
	out := make([]Export, 0, len(r.names))
	for _, name := range r.names {
		out = append(out, r.exports[name])
	}
	return out
}

// Memory returns the Memory the registry allocates from.
func (r *Registry) Memory() ports.Memory {
	return r.mem
}

// DeallocResult is the envelope dealloc returns on success. It lives until
// Close and must not be released by callers; releasing it through dealloc
// is a no-op.
func (r *Registry) DeallocResult() entities.Addr {
	return r.deallocOK
}

// Consumer returns a consumer for this registry's envelopes that treats
// DeallocResult as static.
func (r *Registry) Consumer() *envelope.Consumer {
	return envelope.NewConsumer(r.mem, envelope.WithStatic(r.deallocOK))
}

// Close releases the shared dealloc result. The registry must not be
// invoked afterwards.
func (r *Registry) Close() error {
	var err error
	r.closeOnce.Do(func() {
		err = r.mem.Free(r.deallocOK)
	})
	return err
}

func (b *registryBuilder) add(e Export) error {
	name := e.Declaration.Name
	if name == "" {
		return fmt.Errorf("export name cannot be empty")
	}
	if e.Handler == nil {
		return fmt.Errorf("export %q has no handler", name)
	}
	if !e.Declaration.Returns.Valid() {
		return fmt.Errorf("export %q returns invalid kind %s", name, e.Declaration.Returns)
	}
	if IsReserved(name) && !b.allowReserved {
		return fmt.Errorf("export name %q is reserved", name)
	}
	if _, exists := b.exports[name]; exists {
		return fmt.Errorf("duplicate export name: %q", name)
	}
	b.exports[name] = e
	return nil
}

// WithExport registers exports.
func WithExport(exports ...Export) RegistryOption {
	return func(b *registryBuilder) {
		for _, e := range exports {
			if err := b.add(e); err != nil {
				b.errors = append(b.errors, err)
			}
		}
	}
}

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps first).
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}

// WithProducerOptions configures the envelope producer, e.g. its terminator.
func WithProducerOptions(opts ...envelope.ProducerOption) RegistryOption {
	return func(b *registryBuilder) {
		b.producerOpts = append(b.producerOpts, opts...)
	}
}

// WithLogger routes producer diagnostics to logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return WithProducerOptions(envelope.WithLogger(logger))
}
