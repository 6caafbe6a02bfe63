package host

import (
	"log/slog"

	"github.com/tetratelabs/wazero"

	"github.com/reglet-dev/nativeabi/exports"
	wazeroadapter "github.com/reglet-dev/nativeabi/infrastructure/wazero"
)

// executorConfig holds configuration for the Executor.
type executorConfig struct {
	runtimeConfig wazero.RuntimeConfig
	logger        *slog.Logger
	hostModule    string
	bundles       []exports.Bundle
	middleware    []exports.Middleware
	memoryOptions []wazeroadapter.MemoryOption
	guestLogging  bool
	wasi          bool
}

func defaultExecutorConfig() executorConfig {
	return executorConfig{
		hostModule: "nativeabi",
		wasi:       true,
	}
}

// Option defines a functional option for configuring the Executor.
type Option func(*executorConfig)

// WithRuntimeConfig sets the wazero runtime configuration.
func WithRuntimeConfig(cfg wazero.RuntimeConfig) Option {
	return func(c *executorConfig) {
		c.runtimeConfig = cfg
	}
}

// WithLogger sets the logger for the executor and for guest log messages.
func WithLogger(logger *slog.Logger) Option {
	return func(c *executorConfig) {
		c.logger = logger
	}
}

// WithHostExports exposes the bundles' exports to guests as imports of the
// host module.
func WithHostExports(bundles ...exports.Bundle) Option {
	return func(c *executorConfig) {
		c.bundles = append(c.bundles, bundles...)
	}
}

// WithHostMiddleware wraps every host export.
func WithHostMiddleware(mw ...exports.Middleware) Option {
	return func(c *executorConfig) {
		c.middleware = append(c.middleware, mw...)
	}
}

// WithHostModuleName sets the module name guests import host exports from
// (default: "nativeabi").
func WithHostModuleName(name string) Option {
	return func(c *executorConfig) {
		c.hostModule = name
	}
}

// WithGuestMemory configures how a guest's allocator exports are found.
func WithGuestMemory(opts ...wazeroadapter.MemoryOption) Option {
	return func(c *executorConfig) {
		c.memoryOptions = append(c.memoryOptions, opts...)
	}
}

// WithGuestLogging adds the log_message host export.
func WithGuestLogging(enabled bool) Option {
	return func(c *executorConfig) {
		c.guestLogging = enabled
	}
}

// WithWASI enables/disables the wasi_snapshot_preview1 host module
// (default: enabled). Guests built with GOOS=wasip1 import it.
func WithWASI(enabled bool) Option {
	return func(c *executorConfig) {
		c.wasi = enabled
	}
}
