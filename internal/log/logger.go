package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"
)

// Verbosity levels
const (
	LevelQuiet = iota // Default: only errors and warnings
	LevelInfo         // -v: cycle summaries, subscriptions, deliveries
	LevelDebug        // -vv: API calls, per-pair progress, filter decisions
	LevelTrace        // -vvv: full details, rate limit headers
)

// Output formats
const (
	FormatAuto = "auto" // text on a terminal, json otherwise
	FormatText = "text"
	FormatJSON = "json"
)

// Custom slog levels mapped to our verbosity
const (
	slogLevelTrace = slog.Level(-8) // Below debug
)

var (
	verbosity int
	format    = FormatAuto
	logger    *slog.Logger
	output    io.Writer
)

// Initialize sets up the global logger with the specified verbosity level
func Initialize(level int, w io.Writer) {
	verbosity = level
	output = w
	logger = slog.New(newHandler(w, level, format))
}

// SetFormat selects the output format and rebuilds the logger.
// Unknown formats fall back to auto-detection.
func SetFormat(f string) {
	switch f {
	case FormatText, FormatJSON:
		format = f
	default:
		format = FormatAuto
	}
	logger = slog.New(newHandler(output, verbosity, format))
}

func newHandler(w io.Writer, level int, f string) slog.Handler {
	// Map our verbosity to slog levels
	var slogLevel slog.Level
	switch {
	case level >= LevelTrace:
		slogLevel = slogLevelTrace
	case level >= LevelDebug:
		slogLevel = slog.LevelDebug
	case level >= LevelInfo:
		slogLevel = slog.LevelInfo
	default:
		slogLevel = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: slogLevel}

	var handler slog.Handler
	if resolveFormat(w, f) == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return NewContextHandler(handler)
}

// resolveFormat turns FormatAuto into text for terminals and json for
// everything else (files, pipes, container log collectors).
func resolveFormat(w io.Writer, f string) string {
	if f != FormatAuto {
		return f
	}
	if file, ok := w.(*os.File); ok && term.IsTerminal(int(file.Fd())) {
		return FormatText
	}
	return FormatJSON
}

// Logger returns the underlying slog logger, for libraries that accept one.
func Logger() *slog.Logger {
	return logger
}

// Info logs at info level (-v)
func Info(msg string, args ...any) {
	InfoContext(context.Background(), msg, args...)
}

// Debug logs at debug level (-vv)
func Debug(msg string, args ...any) {
	DebugContext(context.Background(), msg, args...)
}

// Trace logs at trace level (-vvv)
func Trace(msg string, args ...any) {
	if verbosity >= LevelTrace {
		logger.Log(context.Background(), slogLevelTrace, msg, args...)
	}
}

// Warn logs at warn level (always visible)
func Warn(msg string, args ...any) {
	logger.WarnContext(context.Background(), msg, args...)
}

// Error logs at error level (always visible)
func Error(msg string, args ...any) {
	logger.ErrorContext(context.Background(), msg, args...)
}

// InfoContext logs at info level, attaching correlation ids from ctx.
func InfoContext(ctx context.Context, msg string, args ...any) {
	if verbosity >= LevelInfo {
		logger.InfoContext(ctx, msg, args...)
	}
}

// DebugContext logs at debug level, attaching correlation ids from ctx.
func DebugContext(ctx context.Context, msg string, args ...any) {
	if verbosity >= LevelDebug {
		logger.DebugContext(ctx, msg, args...)
	}
}

// WarnContext logs at warn level, attaching correlation ids from ctx.
func WarnContext(ctx context.Context, msg string, args ...any) {
	logger.WarnContext(ctx, msg, args...)
}

// ErrorContext logs at error level, attaching correlation ids from ctx.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	logger.ErrorContext(ctx, msg, args...)
}

// IsInfo returns true if info-level logging is enabled
func IsInfo() bool {
	return verbosity >= LevelInfo
}

// IsDebug returns true if debug-level logging is enabled
func IsDebug() bool {
	return verbosity >= LevelDebug
}

// IsTrace returns true if trace-level logging is enabled
func IsTrace() bool {
	return verbosity >= LevelTrace
}

// Verbosity returns the current verbosity level
func Verbosity() int {
	return verbosity
}

func init() {
	// Default initialization with quiet mode to stderr
	output = os.Stderr
	verbosity = LevelQuiet
	logger = slog.New(newHandler(output, verbosity, format))
}
