// Package log routes log/slog records to a zap logger.
//
// Packages in this module log through slog call sites. A program that wants
// those records in its zap pipeline installs a logger once:
//
//	log.SetLogger(zapLogger)
//
// Until then the package logger is a no-op and slog's own default applies.
package log

import (
	"context"
	"log/slog"
	"runtime"
	"slices"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapHandler implements slog.Handler on top of a *zap.Logger.
type ZapHandler struct {
	logger *zap.Logger
	fields []zap.Field
	groups []group
	opts   handlerConfig
}

// group is an open slog group and the attributes added inside it.
type group struct {
	name   string
	fields []zap.Field
}

// HandlerOption configures the ZapHandler.
type HandlerOption func(*handlerConfig)

type handlerConfig struct {
	level     slog.Leveler
	addSource bool
}

func defaultHandlerConfig() handlerConfig {
	return handlerConfig{
		level: slog.LevelInfo,
	}
}

// WithLevel sets the minimum log level to report.
func WithLevel(level slog.Leveler) HandlerOption {
	return func(c *handlerConfig) {
		c.level = level
	}
}

// WithSource enables reporting of source location (file/line).
func WithSource(enabled bool) HandlerOption {
	return func(c *handlerConfig) {
		c.addSource = enabled
	}
}

// NewHandler creates a ZapHandler writing to logger.
func NewHandler(logger *zap.Logger, opts ...HandlerOption) *ZapHandler {
	cfg := defaultHandlerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapHandler{logger: logger, opts: cfg}
}

// Enabled reports whether both the handler and the zap core accept level.
func (h *ZapHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.level.Level() && h.logger.Core().Enabled(zapLevel(level))
}

// Handle converts the record's attributes to zap fields and writes it.
func (h *ZapHandler) Handle(_ context.Context, record slog.Record) error {
	ce := h.logger.Check(zapLevel(record.Level), record.Message)
	if ce == nil {
		return nil
	}
	if !record.Time.IsZero() {
		ce.Time = record.Time
	}
	if h.opts.addSource && record.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{record.PC})
		f, _ := frames.Next()
		ce.Caller = zapcore.NewEntryCaller(f.PC, f.File, f.Line, true)
	}

	attrs := make([]zap.Field, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		if f, ok := toField(a); ok {
			attrs = append(attrs, f)
		}
		return true
	})
	ce.Write(append(slices.Clone(h.fields), h.nest(attrs)...)...)
	return nil
}

// WithAttrs returns a handler that includes attrs in every record.
func (h *ZapHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	converted := make([]zap.Field, 0, len(attrs))
	for _, a := range attrs {
		if f, ok := toField(a); ok {
			converted = append(converted, f)
		}
	}
	clone := *h
	if n := len(h.groups); n > 0 {
		clone.groups = slices.Clone(h.groups)
		last := &clone.groups[n-1]
		last.fields = append(slices.Clone(last.fields), converted...)
	} else {
		clone.fields = append(slices.Clone(h.fields), converted...)
	}
	return &clone
}

// WithGroup returns a handler that nests subsequent attributes under name.
func (h *ZapHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(slices.Clone(h.groups), group{name: name})
	return &clone
}

// nest wraps fields in the open groups, innermost last. Groups that end up
// empty are omitted.
func (h *ZapHandler) nest(fields []zap.Field) []zap.Field {
	for i := len(h.groups) - 1; i >= 0; i-- {
		g := h.groups[i]
		inner := append(slices.Clone(g.fields), fields...)
		if len(inner) == 0 {
			fields = nil
			continue
		}
		fields = []zap.Field{zap.Dict(g.name, inner...)}
	}
	return fields
}

func zapLevel(l slog.Level) zapcore.Level {
	switch {
	case l >= slog.LevelError:
		return zapcore.ErrorLevel
	case l >= slog.LevelWarn:
		return zapcore.WarnLevel
	case l >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

var _ slog.Handler = (*ZapHandler)(nil)
