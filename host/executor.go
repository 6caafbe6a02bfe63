package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/reglet-dev/nativeabi/domain/entities"
	"github.com/reglet-dev/nativeabi/domain/ports"
	"github.com/reglet-dev/nativeabi/exports"
	wazeroadapter "github.com/reglet-dev/nativeabi/infrastructure/wazero"
)

// Executor manages a wazero runtime whose guests are native libraries
// following the envelope protocol.
type Executor struct {
	runtime wazero.Runtime
	host    *wazeroadapter.Host
	cfg     executorConfig
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	cfg := defaultExecutorConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	var rt wazero.Runtime
	if cfg.runtimeConfig != nil {
		rt = wazero.NewRuntimeWithConfig(ctx, cfg.runtimeConfig)
	} else {
		rt = wazero.NewRuntime(ctx)
	}
	e := &Executor{runtime: rt, cfg: cfg}

	if cfg.wasi {
		if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("failed to instantiate wasi: %w", err)
		}
	}

	if err := e.registerHostExports(ctx); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host exports: %w", err)
	}
	return e, nil
}

func (e *Executor) registerHostExports(ctx context.Context) error {
	bundles := e.cfg.bundles
	if e.cfg.guestLogging {
		bundles = append(bundles, logBundle(e.cfg.logger))
	}
	if len(bundles) == 0 {
		return nil
	}

	bundle := exports.Compose(bundles...)
	factory := func(mem ports.Memory) (*exports.Registry, error) {
		return exports.NewRegistry(mem,
			exports.WithBundle(bundle),
			exports.WithMiddleware(e.cfg.middleware...),
			exports.WithLogger(e.cfg.logger),
		)
	}
	host, err := wazeroadapter.RegisterWithRuntime(ctx, e.runtime, factory,
		wazeroadapter.WithModuleName(e.cfg.hostModule),
		wazeroadapter.WithMemoryOptions(e.cfg.memoryOptions...),
	)
	if err != nil {
		return err
	}
	e.host = host
	return nil
}

// Runtime returns the underlying wazero runtime.
func (e *Executor) Runtime() wazero.Runtime {
	return e.runtime
}

// Close releases resources held by the executor. Host envelopes are released
// before the guests they live in are closed.
func (e *Executor) Close(ctx context.Context) error {
	var hostErr error
	if e.host != nil {
		hostErr = e.host.Close()
	}
	return errors.Join(hostErr, e.runtime.Close(ctx))
}

// LoadLibrary instantiates a guest module and binds it to m. The guest must
// export its memory and the allocator named by the executor's memory
// options; every function m declares must be exported by the guest.
func (e *Executor) LoadLibrary(ctx context.Context, name string, wasmBytes []byte, m *entities.LibraryManifest, opts ...LibraryOption) (*Library, error) {
	if m == nil {
		return nil, errors.New("host: manifest is required")
	}

	mod, err := e.runtime.InstantiateWithConfig(ctx, wasmBytes,
		wazero.NewModuleConfig().WithName(name).WithStartFunctions())
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	// Reactor modules (-buildmode=c-shared for wasip1) initialise here.
	if init := mod.ExportedFunction("_initialize"); init != nil {
		if _, err := init.Call(ctx); err != nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("failed to call _initialize: %w", err)
		}
	}

	for _, d := range m.Exports {
		if mod.ExportedFunction(d.Name) == nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("module %q does not export %s", name, d.Signature())
		}
	}

	inst, err := wazeroadapter.NewInstance(ctx, mod, e.cfg.memoryOptions...)
	if err != nil {
		_ = mod.Close(ctx)
		return nil, err
	}
	return Open(inst, m, append([]LibraryOption{WithLibraryLogger(e.cfg.logger)}, opts...)...)
}
