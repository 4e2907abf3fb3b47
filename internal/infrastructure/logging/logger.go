package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/domneedham/galactic-unicorn-go/internal/infrastructure/config"
)

// Logger is a slog.Logger carrying the device's identifying fields.
// It is safe for concurrent use.
type Logger struct {
	*slog.Logger
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// parseLevel maps a configured level name to a slog level, case-insensitively.
// Unknown names mean info.
func parseLevel(name string) slog.Level {
	if lvl, ok := levels[strings.ToLower(name)]; ok {
		return lvl
	}
	return slog.LevelInfo
}

// New builds the logger described by cfg. Every entry carries
// service=unicorn, the firmware version and, when set, the device id.
func New(cfg config.LoggingConfig, version, deviceID string) *Logger {
	var out io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		out = os.Stderr
	}
	return NewWithWriter(out, cfg, version, deviceID)
}

// NewWithWriter is New writing to w regardless of cfg.Output.
func NewWithWriter(w io.Writer, cfg config.LoggingConfig, version, deviceID string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if strings.EqualFold(cfg.Format, "text") {
		h = slog.NewTextHandler(w, opts)
	}

	fields := []slog.Attr{slog.String("service", "unicorn"), slog.String("version", version)}
	if deviceID != "" {
		fields = append(fields, slog.String("device_id", deviceID))
	}
	return &Logger{Logger: slog.New(h.WithAttrs(fields))}
}

// With returns a child logger with extra fields.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Component returns a child logger tagged component=name.
func (l *Logger) Component(name string) *Logger {
	return l.With("component", name)
}

// Default is the JSON info-level logger used until the config is loaded.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, "dev", "")
}

// Discard drops every entry.
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}
