package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the logging surface handed to commands and the server. Storage
// and recovery components take the *slog.Logger returned by Slog.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	Slog() *slog.Logger
}

// Config selects the level, encoding and destination of log output.
type Config struct {
	Level     string // debug, info, warn or error; empty means info
	Format    string // json (default) or text
	Output    io.Writer
	AddSource bool
}

// level is shared by every logger built with New so that SetLevel takes
// effect process-wide.
var level = new(slog.LevelVar)

// New builds a logger from cfg and makes cfg.Level the process level.
func New(cfg Config) (Logger, error) {
	lv, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	level.Set(lv)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:       level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: replaceAttr,
	}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		h = slog.NewJSONHandler(out, opts)
	case "text", "console":
		h = slog.NewTextHandler(out, opts)
	default:
		return nil, fmt.Errorf("logger: unknown format %q", cfg.Format)
	}
	return &slogLogger{l: slog.New(contextHandler{h})}, nil
}

// SetLevel changes the level of every logger built by New. Unknown names
// are ignored.
func SetLevel(name string) {
	if lv, err := parseLevel(name); err == nil {
		level.Set(lv)
	}
}

// GetLevel returns the current level name.
func GetLevel() string {
	return strings.ToLower(level.Level().String())
}

func parseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("logger: unknown level %q", name)
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, args ...any) { s.l.Debug(msg, args...) }
func (s *slogLogger) Info(msg string, args ...any)  { s.l.Info(msg, args...) }
func (s *slogLogger) Warn(msg string, args ...any)  { s.l.Warn(msg, args...) }
func (s *slogLogger) Error(msg string, args ...any) { s.l.Error(msg, args...) }

func (s *slogLogger) With(args ...any) Logger {
	return &slogLogger{l: s.l.With(args...)}
}

func (s *slogLogger) Slog() *slog.Logger { return s.l }

var defaultLogger atomic.Pointer[slogLogger]

func init() {
	defaultLogger.Store(&slogLogger{l: slog.New(contextHandler{
		slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level, ReplaceAttr: replaceAttr}),
	})})
}

// SetDefault replaces the process logger and installs it as the slog
// default, so code logging through slog.Default is redacted too.
func SetDefault(l Logger) {
	if s, ok := l.(*slogLogger); ok {
		defaultLogger.Store(s)
		slog.SetDefault(s.l)
	}
}

// Default returns the process logger.
func Default() Logger {
	return defaultLogger.Load()
}
