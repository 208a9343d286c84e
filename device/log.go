package device

import (
	"log/slog"
	"os"
	"sync"
)

var (
	logLevel = new(slog.LevelVar)

	logMu sync.RWMutex
	base  *slog.Logger
)

func init() {
	logLevel.Set(slog.LevelInfo)
	base = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
}

// SetLogLevel sets the minimum level for every logger handed out by Logger
func SetLogLevel(l slog.Level) {
	logLevel.Set(l)
}

// SetLogHandler replaces the handler behind every logger handed out by Logger
// after the call.  Loggers already handed out keep their handler.
func SetLogHandler(h slog.Handler) {
	logMu.Lock()
	defer logMu.Unlock()
	base = slog.New(h)
}

// Logger returns a logger tagged with the given component
func Logger(component string) *slog.Logger {
	logMu.RLock()
	defer logMu.RUnlock()
	return base.With("component", component)
}
