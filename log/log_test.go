package log

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed(t *testing.T, level zapcore.Level, opts ...HandlerOption) (*slog.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(level)
	return slog.New(NewHandler(zap.New(core), opts...)), logs
}

func TestZapHandler_Levels(t *testing.T) {
	tests := []struct {
		slog slog.Level
		zap  zapcore.Level
	}{
		{slog.LevelDebug, zapcore.DebugLevel},
		{slog.LevelInfo, zapcore.InfoLevel},
		{slog.LevelWarn, zapcore.WarnLevel},
		{slog.LevelError, zapcore.ErrorLevel},
		{slog.LevelError + 4, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		t.Run(tt.slog.String(), func(t *testing.T) {
			logger, logs := observed(t, zapcore.DebugLevel, WithLevel(slog.LevelDebug))
			logger.Log(context.Background(), tt.slog, "msg")

			require.Equal(t, 1, logs.Len())
			assert.Equal(t, tt.zap, logs.All()[0].Level)
		})
	}
}

func TestZapHandler_Attributes(t *testing.T) {
	logger, logs := observed(t, zapcore.DebugLevel)
	when := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	logger.Info("call",
		slog.String("function", "greet"),
		slog.Int("args", 2),
		slog.Uint64("size", 64),
		slog.Bool("ok", true),
		slog.Float64("ratio", 0.5),
		slog.Duration("took", 3*time.Millisecond),
		slog.Time("at", when),
		slog.Any("error", errors.New("boom")),
		slog.Group("envelope", slog.String("kind", "string"), slog.Int("size", 16)),
	)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "call", entry.Message)

	ctx := entry.ContextMap()
	assert.Equal(t, "greet", ctx["function"])
	assert.Equal(t, int64(2), ctx["args"])
	assert.Equal(t, uint64(64), ctx["size"])
	assert.Equal(t, true, ctx["ok"])
	assert.Equal(t, 0.5, ctx["ratio"])
	assert.Equal(t, 3*time.Millisecond, ctx["took"])
	assert.Equal(t, when, ctx["at"])
	assert.Equal(t, "boom", ctx["error"])
	assert.Equal(t, map[string]interface{}{"kind": "string", "size": int64(16)}, ctx["envelope"])
}

func TestZapHandler_DropsEmptyAttributes(t *testing.T) {
	logger, logs := observed(t, zapcore.DebugLevel)

	logger.Info("msg", slog.Attr{}, slog.Group("empty"))

	require.Equal(t, 1, logs.Len())
	assert.Empty(t, logs.All()[0].Context)
}

func TestZapHandler_WithAttrsAndGroup(t *testing.T) {
	logger, logs := observed(t, zapcore.DebugLevel)

	logger.With("library", "textkit").
		WithGroup("call").
		With("function", "parse_int").
		Info("failed", "error", "invalid integer")

	require.Equal(t, 1, logs.Len())
	ctx := logs.All()[0].ContextMap()
	assert.Equal(t, "textkit", ctx["library"])

	call, ok := ctx["call"].(map[string]interface{})
	require.True(t, ok, "call group: %#v", ctx["call"])
	assert.Equal(t, map[string]interface{}{"function": "parse_int", "error": "invalid integer"}, call)
}

func TestZapHandler_EmptyGroupIsIgnored(t *testing.T) {
	logger, logs := observed(t, zapcore.DebugLevel)

	logger.WithGroup("").Info("msg", "k", "v")
	logger.WithGroup("unused").Info("msg")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "v", logs.All()[0].ContextMap()["k"])
	assert.Empty(t, logs.All()[1].Context)
}

func TestZapHandler_WithLevel(t *testing.T) {
	logger, logs := observed(t, zapcore.DebugLevel, WithLevel(slog.LevelWarn))

	logger.Info("dropped")
	logger.Warn("kept")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestZapHandler_CoreLevelWins(t *testing.T) {
	logger, logs := observed(t, zapcore.ErrorLevel, WithLevel(slog.LevelDebug))

	assert.False(t, logger.Enabled(context.Background(), slog.LevelWarn))
	logger.Warn("dropped")
	logger.Error("kept")

	assert.Equal(t, 1, logs.Len())
}

func TestZapHandler_Source(t *testing.T) {
	logger, logs := observed(t, zapcore.DebugLevel, WithSource(true))

	logger.Info("msg")

	require.Equal(t, 1, logs.Len())
	caller := logs.All()[0].Caller
	assert.True(t, caller.Defined)
	assert.Contains(t, caller.File, "log_test.go")
}

func TestNewHandler_NilLogger(t *testing.T) {
	h := NewHandler(nil)
	assert.False(t, h.Enabled(context.Background(), slog.LevelError))
	assert.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelError, "msg", 0)))
}

func TestSetLogger(t *testing.T) {
	prevSlog := slog.Default()
	prevZap := Logger()
	t.Cleanup(func() {
		loggerMu.Lock()
		logger = nil
		loggerMu.Unlock()
		slog.SetDefault(prevSlog)
	})

	assert.NotNil(t, prevZap)

	core, logs := observer.New(zapcore.InfoLevel)
	zl := zap.New(core)
	SetLogger(zl)

	assert.Same(t, zl, Logger())
	slog.Warn("envelope: cannot report failure", "function", "greet")

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zapcore.WarnLevel, entry.Level)
	assert.Equal(t, "greet", entry.ContextMap()["function"])
}
