// Package log configures the process-wide structured logger shared by the
// fieldflow daemons.
package log

import (
	"log/slog"
	"os"
)

// Setup installs a text slog handler on stderr at the given level as the
// default logger.
func Setup(logLevel string) {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(logLevel),
	})

	slog.SetDefault(slog.New(handler))
}

// WithModule returns the default logger tagged with a module name, the
// attribute every fieldflow component logs under.
func WithModule(module string) *slog.Logger {
	return slog.With("module", module)
}

// parseLevel maps a level name to its slog level. Unknown names fall back
// to info.
func parseLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
