// Package logger is the process-wide structured logging facade. It wraps
// log/slog with a console handler for interactive use and a JSON handler
// for machine consumption. The *Ctx variants inject request-scoped fields
// carried by the context, so handlers log once and the request id, store
// id and session id ride along automatically.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config selects the log level, output format and destination.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	mu       sync.RWMutex
	minLevel = new(slog.LevelVar) // zero value is Info
	format   = "text"
	sink     io.Writer = os.Stdout
	useColor bool
	active   *slog.Logger
)

func init() {
	useColor = isTerminal(os.Stdout)
	rebuild()
}

// rebuild swaps the active logger for the current sink and format.
// Callers hold mu (package init is single-threaded).
func rebuild() {
	opts := &slog.HandlerOptions{Level: minLevel}
	if format == "json" {
		active = slog.New(slog.NewJSONHandler(sink, opts))
		return
	}
	active = slog.New(newConsoleHandler(sink, opts, useColor))
}

// parseLevel maps a config level name onto slog's scale.
func parseLevel(name string) (slog.Level, bool) {
	switch strings.ToUpper(name) {
	case "DEBUG":
		return slog.LevelDebug, true
	case "INFO":
		return slog.LevelInfo, true
	case "WARN":
		return slog.LevelWarn, true
	case "ERROR":
		return slog.LevelError, true
	}
	return 0, false
}

// Init configures the process logger. Output may be stdout, stderr or a
// file path; files are opened append-only and never colored. Invalid
// level or format names leave the previous setting in place.
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	switch strings.ToLower(cfg.Output) {
	case "", "stdout":
		sink = os.Stdout
		useColor = isTerminal(os.Stdout)
	case "stderr":
		sink = os.Stderr
		useColor = isTerminal(os.Stderr)
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		sink = f
		useColor = false
	}

	if lv, ok := parseLevel(cfg.Level); ok {
		minLevel.Set(lv)
	}
	if f := strings.ToLower(cfg.Format); f == "text" || f == "json" {
		format = f
	}
	rebuild()
	return nil
}

// InitWithWriter points the logger at an arbitrary writer, mainly for
// tests.
func InitWithWriter(w io.Writer, levelName, formatName string, color bool) {
	mu.Lock()
	defer mu.Unlock()
	sink = w
	useColor = color
	if lv, ok := parseLevel(levelName); ok {
		minLevel.Set(lv)
	}
	if f := strings.ToLower(formatName); f == "text" || f == "json" {
		format = f
	}
	rebuild()
}

// SetLevel adjusts the minimum level at runtime. Unknown names are
// ignored.
func SetLevel(name string) {
	if lv, ok := parseLevel(name); ok {
		minLevel.Set(lv)
	}
}

// SetFormat switches between text and json output. Unknown formats are
// ignored.
func SetFormat(name string) {
	name = strings.ToLower(name)
	if name != "text" && name != "json" {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	format = name
	rebuild()
}

func current() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return active
}

// Debug logs a key/value record at debug level.
func Debug(msg string, args ...any) { current().Debug(msg, args...) }

// Info logs a key/value record at info level.
func Info(msg string, args ...any) { current().Info(msg, args...) }

// Warn logs a key/value record at warn level.
func Warn(msg string, args ...any) { current().Warn(msg, args...) }

// Error logs a key/value record at error level.
func Error(msg string, args ...any) { current().Error(msg, args...) }

// DebugCtx is Debug with the request fields carried by ctx prepended.
func DebugCtx(ctx context.Context, msg string, args ...any) {
	current().Debug(msg, withContextFields(ctx, args)...)
}

// InfoCtx is Info with the request fields carried by ctx prepended.
func InfoCtx(ctx context.Context, msg string, args ...any) {
	current().Info(msg, withContextFields(ctx, args)...)
}

// WarnCtx is Warn with the request fields carried by ctx prepended.
func WarnCtx(ctx context.Context, msg string, args ...any) {
	current().Warn(msg, withContextFields(ctx, args)...)
}

// ErrorCtx is Error with the request fields carried by ctx prepended.
func ErrorCtx(ctx context.Context, msg string, args ...any) {
	current().Error(msg, withContextFields(ctx, args)...)
}

// withContextFields prepends the LogContext fields so they lead the
// record.
func withContextFields(ctx context.Context, args []any) []any {
	lc := FromContext(ctx)
	if lc == nil {
		return args
	}
	out := make([]any, 0, 8+len(args))
	if lc.RequestID != "" {
		out = append(out, KeyRequestID, lc.RequestID)
	}
	if lc.StoreID != "" {
		out = append(out, KeyStoreID, lc.StoreID)
	}
	if lc.SessionID != "" {
		out = append(out, KeySessionID, lc.SessionID)
	}
	if lc.ClientIP != "" {
		out = append(out, KeyClientIP, lc.ClientIP)
	}
	return append(out, args...)
}
