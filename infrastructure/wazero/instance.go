package wazero

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/domain/ports"
)

// Instance calls a guest library that follows the envelope protocol: each
// export returns the i32 address of an envelope in guest memory.
type Instance struct {
	mod api.Module
	mem *Memory
}

// NewInstance wraps an instantiated guest module. ctx's values, without its
// cancellation, serve the allocator calls made between calls, such as
// releasing envelopes after a call returned.
func NewInstance(ctx context.Context, mod api.Module, opts ...MemoryOption) (*Instance, error) {
	mem, err := NewMemory(context.WithoutCancel(ctx), mod, opts...)
	if err != nil {
		return nil, err
	}
	return &Instance{mod: mod, mem: mem}, nil
}

// Memory returns the guest memory envelopes are read from and released to.
func (i *Instance) Memory() ports.Memory {
	return i.mem
}

// Module returns the guest module.
func (i *Instance) Module() api.Module {
	return i.mod
}

// Call invokes the guest export name with raw i32 arguments and returns the
// envelope address it produced. The caller owns the envelope.
func (i *Instance) Call(ctx context.Context, name string, args ...uint64) (entities.Addr, error) {
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return entities.Null, fmt.Errorf("wazero: module %q has no export %q", i.mod.Name(), name)
	}
	if got, want := len(args), len(fn.Definition().ParamTypes()); got != want {
		return entities.Null, fmt.Errorf("wazero: %s expects %d arguments, got %d", name, want, got)
	}
	if len(fn.Definition().ResultTypes()) != 1 {
		return entities.Null, fmt.Errorf("wazero: %s does not return an envelope", name)
	}

	defer i.mem.bind(ctx)()
	results, err := fn.Call(ctx, args...)
	if err != nil {
		return entities.Null, fmt.Errorf("wazero: call %s: %w", name, err)
	}
	return entities.Addr(api.DecodeU32(results[0])), nil
}
