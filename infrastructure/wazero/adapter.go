package wazero

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/exports"
	"github.com/reglet-dev/nativeabi/infrastructure/arena"
)

// AdapterConfig holds configuration for the wazero adapter.
type AdapterConfig struct {
	// ModuleName is the host module name guests import from (default: "nativeabi").
	ModuleName string

	// MemoryOptions configure the guest Memory each registry allocates from.
	MemoryOptions []MemoryOption
}

// AdapterOption configures the adapter.
type AdapterOption func(*AdapterConfig)

// WithModuleName sets the host module name (default: "nativeabi").
func WithModuleName(name string) AdapterOption {
	return func(c *AdapterConfig) {
		c.ModuleName = name
	}
}

// WithMemoryOptions configures how the calling guest's allocator is found.
func WithMemoryOptions(opts ...MemoryOption) AdapterOption {
	return func(c *AdapterConfig) {
		c.MemoryOptions = append(c.MemoryOptions, opts...)
	}
}

// defaultAdapterConfig returns the default adapter configuration.
func defaultAdapterConfig() AdapterConfig {
	return AdapterConfig{
		ModuleName: "nativeabi",
	}
}

// RegistryFactory builds the export registry serving one guest module,
// allocating from that guest's memory.
type RegistryFactory func(mem ports.Memory) (*exports.Registry, error)

// Host exposes a Go export registry to wasm guests as imported functions.
// Envelopes are built in the calling guest's linear memory, so the guest
// reads them directly and releases them through its own deallocator or the
// imported dealloc.
type Host struct {
	factory RegistryFactory
	cfg     AdapterConfig
	guests  map[api.Module]*guest
	mu      sync.Mutex
}

// guest is the registry serving one module and the memory it allocates from.
type guest struct {
	reg *exports.Registry
	mem *Memory
}

// RegisterWithRuntime registers every export the factory's registries carry
// as a host function of the configured module. The declarations are read
// from a registry built once over a scratch arena.
//
// Every parameter and result is an i32: guests are wasm32, so pointers and
// size_t are 32 bits wide.
//
// Example:
//
//	host, err := wazero.RegisterWithRuntime(ctx, runtime,
//	    func(mem ports.Memory) (*exports.Registry, error) {
//	        return exports.NewRegistry(mem, exports.WithBundle(textkit.Bundle()))
//	    },
//	    wazero.WithModuleName("textkit"),
//	)
//	defer host.Close()
func RegisterWithRuntime(ctx context.Context, runtime wazero.Runtime, factory RegistryFactory, opts ...AdapterOption) (*Host, error) {
	cfg := defaultAdapterConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	probe, err := factory(arena.New(arena.WithPtrSize(4)))
	if err != nil {
		return nil, fmt.Errorf("wazero: build registry: %w", err)
	}
	decls := probe.Declarations()
	_ = probe.Close()

	h := &Host{factory: factory, cfg: cfg, guests: make(map[api.Module]*guest)}
	builder := runtime.NewHostModuleBuilder(cfg.ModuleName)
	for _, decl := range decls {
		params := make([]api.ValueType, len(decl.Params))
		for i := range params {
			params[i] = api.ValueTypeI32
		}
		name := decl.Name // capture for closure
		builder.NewFunctionBuilder().
			WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, mod api.Module, stack []uint64) {
				stack[0] = h.call(ctx, mod, name, stack[:len(params)])
			}), params, []api.ValueType{api.ValueTypeI32}).
			WithParameterNames(paramNames(decl)...).
			Export(name)
	}

	if _, err := builder.Instantiate(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// call invokes name on the registry serving mod. A failure that leaves no
// envelope is reported to the guest as null, the same as a C caller would
// see from a library that could not allocate its result.
func (h *Host) call(ctx context.Context, mod api.Module, name string, stack []uint64) uint64 {
	g, err := h.guestFor(ctx, mod)
	if err != nil {
		slog.ErrorContext(ctx, "wazero: guest cannot host envelopes", "module", mod.Name(), "function", name, "error", err)
		return 0
	}

	args := make([]uint64, len(stack))
	for i, w := range stack {
		args[i] = uint64(api.DecodeU32(w))
	}
	defer g.mem.bind(ctx)()
	addr, err := g.reg.Invoke(ctx, name, args...)
	if err != nil {
		slog.ErrorContext(ctx, "wazero: invocation failed", "module", mod.Name(), "function", name, "error", err)
		return 0
	}
	return api.EncodeU32(uint32(addr)) //nolint:gosec // G115: guest addresses are 32-bit
}

// guestFor returns the registry serving mod, building it on mod's first call.
// The factory allocates from the guest, so it runs outside h.mu and under the
// calling context.
func (h *Host) guestFor(ctx context.Context, mod api.Module) (*guest, error) {
	h.mu.Lock()
	g, ok := h.guests[mod]
	h.mu.Unlock()
	if ok {
		return g, nil
	}

	mem, err := NewMemory(context.WithoutCancel(ctx), mod, h.cfg.MemoryOptions...)
	if err != nil {
		return nil, err
	}
	restore := mem.bind(ctx)
	reg, err := h.factory(mem)
	restore()
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	if won, ok := h.guests[mod]; ok {
		h.mu.Unlock()
		_ = reg.Close()
		return won, nil
	}
	g = &guest{reg: reg, mem: mem}
	h.guests[mod] = g
	h.mu.Unlock()
	return g, nil
}

// Registry returns the registry serving mod, if mod has called in.
func (h *Host) Registry(mod api.Module) (*exports.Registry, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	g, ok := h.guests[mod]
	if !ok {
		return nil, false
	}
	return g.reg, true
}

// Close releases the registries' shared envelopes. Guests must be closed
// after the host, since releasing calls into them.
func (h *Host) Close() error {
	h.mu.Lock()
	guests := h.guests
	h.guests = make(map[api.Module]*guest)
	h.mu.Unlock()

	var errs []error
	for mod, g := range guests {
		if err := g.reg.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", mod.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func paramNames(decl entities.Declaration) []string {
	names := make([]string, len(decl.Params))
	for i, p := range decl.Params {
		names[i] = p.Name
	}
	return names
}
