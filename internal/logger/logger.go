package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for the diagnostic log.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"

	FormatText = "text"
	FormatJSON = "json"
)

// SlogConfig controls the console logger.
type SlogConfig struct {
	Level      string `mapstructure:"level" toml:"level"`
	Format     string `mapstructure:"format" toml:"format"`
	Color      bool   `mapstructure:"color" toml:"color"`
	TimeStamps bool   `mapstructure:"timestamps" toml:"timestamps"`
	Source     bool   `mapstructure:"source" toml:"source"`
}

// FileConfig enables the append-only diagnostic log. Empty Path disables it.
// Rotation parameters follow lumberjack semantics.
type FileConfig struct {
	Path       string `mapstructure:"path" toml:"path"`
	Level      string `mapstructure:"level" toml:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
	Compress   bool   `mapstructure:"compress" toml:"compress"`
}

// Config groups console and file logging.
type Config struct {
	Slog SlogConfig `mapstructure:"slog" toml:"slog"`
	File FileConfig `mapstructure:"file" toml:"file"`
}

// ParseLevel maps a level name to slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn, "warning":
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FileWriter returns the rotating writer for the diagnostic log, or nil when disabled.
func (c Config) FileWriter() io.WriteCloser {
	if strings.TrimSpace(c.File.Path) == "" {
		return nil
	}
	return &lj.Logger{
		Filename:   c.File.Path,
		MaxSize:    valOr(c.File.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(c.File.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(c.File.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   c.File.Compress,
	}
}

// NewSlogger builds a logger writing to stderr and, when configured, to the diagnostic log.
func (c Config) NewSlogger() *slog.Logger {
	l, _ := c.Build(os.Stderr)
	return l
}

// Build is NewSlogger with an explicit console writer. The returned closer
// flushes the diagnostic log; it is a no-op when no file is configured.
func (c Config) Build(console io.Writer) (*slog.Logger, io.Closer) {
	handlers := []slog.Handler{c.consoleHandler(console)}
	var closer io.Closer = nopCloser{}
	if fw := c.FileWriter(); fw != nil {
		lvl := c.File.Level
		if lvl == "" {
			lvl = c.Slog.Level
		}
		handlers = append(handlers, slog.NewJSONHandler(fw, &slog.HandlerOptions{
			Level:     ParseLevel(lvl),
			AddSource: c.Slog.Source,
		}))
		closer = fw
	}
	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer
	}
	return slog.New(&fanout{handlers: handlers}), closer
}

func (c Config) consoleHandler(w io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(c.Slog.Level), AddSource: c.Slog.Source}
	if !c.Slog.TimeStamps {
		opts.ReplaceAttr = dropTime
	}
	switch {
	case strings.EqualFold(c.Slog.Format, FormatJSON):
		return slog.NewJSONHandler(w, opts)
	case c.Slog.Color:
		return NewColorTextHandler(w, opts)
	default:
		return slog.NewTextHandler(w, opts)
	}
}

func dropTime(groups []string, a slog.Attr) slog.Attr {
	if len(groups) == 0 && a.Key == slog.TimeKey {
		return slog.Attr{}
	}
	return a
}

// fanout sends each record to every handler that accepts its level.
type fanout struct {
	handlers []slog.Handler
}

func (f *fanout) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanout{handlers: hs}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &fanout{handlers: hs}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
