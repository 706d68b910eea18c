package diag

import (
	"context"
	"log/slog"
	"os"
	"sync/atomic"
)

// opLogger is the operational logger for boundary/dispatch/registry
// diagnostics: an atomic pointer so the output format can be swapped
// without a lock on the hot logging path.
var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)
)

func init() {
	logLevel.Set(slog.LevelInfo)
	opLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
}

// Op returns the shared operational logger.
func Op() *slog.Logger {
	return opLogger.Load()
}

// SetLevelFromString sets the operational log level from a string: debug,
// info, warn, error. Unrecognized values are ignored.
func SetLevelFromString(level string) {
	switch level {
	case "debug", "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "info", "INFO":
		logLevel.Set(slog.LevelInfo)
	case "warn", "WARN", "warning":
		logLevel.Set(slog.LevelWarn)
	case "error", "ERROR":
		logLevel.Set(slog.LevelError)
	}
}

// InitStructured reconfigures the operational logger's output format.
// format is "text" (default) or "json".
func InitStructured(format, level string) {
	SetLevelFromString(level)
	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	opLogger.Store(slog.New(handler))
}

func logError(err *Error) {
	level := slog.LevelWarn
	if err.Kind == KindPanic {
		level = slog.LevelError
	}
	Op().Log(context.Background(), level, "ffi error recorded", "kind", string(err.Kind), "message", err.Message)
}
