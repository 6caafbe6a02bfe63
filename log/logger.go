package log

import (
	"log/slog"
	"sync"

	"go.uber.org/zap"
)

var (
	logger   *zap.Logger
	loggerMu sync.RWMutex
)

// Logger returns the package's zap logger. It is a no-op logger until
// SetLogger is called.
func Logger() *zap.Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	if logger == nil {
		return zap.NewNop()
	}
	return logger
}

// SetLogger installs l and makes slog's default logger write to it, so the
// slog call sites throughout the module end up in l.
func SetLogger(l *zap.Logger, opts ...HandlerOption) {
	loggerMu.Lock()
	logger = l
	loggerMu.Unlock()
	slog.SetDefault(slog.New(NewHandler(l, opts...)))
}
