package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"
)

// ANSI escape sequences for level and key coloring.
const (
	ansiReset  = "\033[0m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
	ansiGray   = "\033[90m"
)

// consoleHandler renders slog records as single-line text for humans:
//
//	[2026-08-24 15:04:05] [INFO] session committed store_id=ab12 root_hash=cd34
//
// Levels and attribute keys are colored when the sink is a terminal.
type consoleHandler struct {
	opts  *slog.HandlerOptions
	mu    *sync.Mutex
	out   io.Writer
	color bool
	bound []slog.Attr
}

func newConsoleHandler(out io.Writer, opts *slog.HandlerOptions, color bool) *consoleHandler {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	return &consoleHandler{opts: opts, mu: new(sync.Mutex), out: out, color: color}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	min := slog.LevelInfo
	if h.opts.Level != nil {
		min = h.opts.Level.Level()
	}
	return level >= min
}

func (h *consoleHandler) Handle(_ context.Context, rec slog.Record) error {
	// The line is assembled in a local buffer; the mutex only guards the
	// final write.
	line := make([]byte, 0, 256)
	line = append(line, '[')
	line = rec.Time.AppendFormat(line, "2006-01-02 15:04:05")
	line = append(line, "] ["...)
	line = h.appendLevel(line, rec.Level)
	line = append(line, "] "...)
	line = append(line, rec.Message...)

	for _, a := range h.bound {
		line = h.appendAttr(line, a)
	}
	rec.Attrs(func(a slog.Attr) bool {
		line = h.appendAttr(line, a)
		return true
	})
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(line)
	return err
}

func (h *consoleHandler) appendLevel(line []byte, level slog.Level) []byte {
	name, color := "INFO", ansiGreen
	switch {
	case level < slog.LevelInfo:
		name, color = "DEBUG", ansiGray
	case level >= slog.LevelError:
		name, color = "ERROR", ansiRed
	case level >= slog.LevelWarn:
		name, color = "WARN", ansiYellow
	}
	if !h.color {
		return append(line, name...)
	}
	line = append(line, color...)
	line = append(line, name...)
	return append(line, ansiReset...)
}

func (h *consoleHandler) appendAttr(line []byte, a slog.Attr) []byte {
	if a.Equal(slog.Attr{}) {
		return line
	}
	a.Value = a.Value.Resolve()
	line = append(line, ' ')
	if h.color {
		line = append(line, ansiCyan...)
		line = append(line, a.Key...)
		line = append(line, ansiReset...)
	} else {
		line = append(line, a.Key...)
	}
	line = append(line, '=')
	return appendValue(line, a.Value)
}

func appendValue(line []byte, v slog.Value) []byte {
	switch v.Kind() {
	case slog.KindInt64:
		return strconv.AppendInt(line, v.Int64(), 10)
	case slog.KindUint64:
		return strconv.AppendUint(line, v.Uint64(), 10)
	case slog.KindFloat64:
		return strconv.AppendFloat(line, v.Float64(), 'f', -1, 64)
	case slog.KindBool:
		return strconv.AppendBool(line, v.Bool())
	case slog.KindDuration:
		return append(line, v.Duration().String()...)
	case slog.KindTime:
		return v.Time().AppendFormat(line, time.RFC3339)
	case slog.KindAny:
		return fmt.Appendf(line, "%v", v.Any())
	default:
		return append(line, v.String()...)
	}
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.bound = append(append([]slog.Attr(nil), h.bound...), attrs...)
	return &clone
}

// WithGroup is accepted but not rendered; the daemon logs flat records.
func (h *consoleHandler) WithGroup(string) slog.Handler {
	return h
}
