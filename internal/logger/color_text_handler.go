package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

const ansiReset = "\033[0m"

// ColorTextHandler writes an ANSI-colored level tag followed by a slog.TextHandler line.
// The tag is written outside the TextHandler, which would otherwise quote the escape codes.
type ColorTextHandler struct {
	w     io.Writer
	mu    *sync.Mutex
	inner slog.Handler
}

// NewColorTextHandler wraps a TextHandler writing to w. The level attribute moves into the tag.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *ColorTextHandler {
	var o slog.HandlerOptions
	if opts != nil {
		o = *opts
	}
	prev := o.ReplaceAttr
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 && a.Key == slog.LevelKey {
			return slog.Attr{}
		}
		if prev != nil {
			return prev(groups, a)
		}
		return a
	}
	return &ColorTextHandler{w: w, mu: &sync.Mutex{}, inner: slog.NewTextHandler(w, &o)}
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // red
	case l >= slog.LevelWarn:
		return "\033[33m" // yellow
	case l >= slog.LevelInfo:
		return "\033[32m" // green
	default:
		return "\033[36m" // cyan
	}
}

func (h *ColorTextHandler) Enabled(ctx context.Context, l slog.Level) bool {
	return h.inner.Enabled(ctx, l)
}

func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := fmt.Fprintf(h.w, "%s%-5s%s ", levelColor(r.Level), r.Level.String(), ansiReset); err != nil {
		return err
	}
	return h.inner.Handle(ctx, r)
}

// WithAttrs and WithGroup share the writer lock with the parent.
func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{w: h.w, mu: h.mu, inner: h.inner.WithAttrs(attrs)}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{w: h.w, mu: h.mu, inner: h.inner.WithGroup(name)}
}
