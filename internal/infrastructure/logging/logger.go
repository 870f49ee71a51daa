package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/nerrad567/mqtt-recorder/internal/infrastructure/config"
)

// serviceName is attached to every entry.
const serviceName = "mqtt-recorder"

// levels maps configured level names to slog levels.
var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// Logger is the recorder's structured logger. It satisfies the small Logger
// interfaces declared by the session, recorder, player and mqtt packages.
//
// Safe for concurrent use.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from cfg, writing to stdout or stderr.
func New(cfg config.LoggingConfig, version string) *Logger {
	return NewWithWriter(cfg, version, outputWriter(cfg.Output))
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(cfg config.LoggingConfig, version string, output io.Writer) *Logger {
	handler := newHandler(strings.ToLower(cfg.Format), output, parseLevel(cfg.Level))
	handler = handler.WithAttrs([]slog.Attr{
		slog.String("service", serviceName),
		slog.String("version", version),
	})
	return &Logger{Logger: slog.New(handler)}
}

// newHandler picks the handler for format. Unknown formats fall back to text.
func newHandler(format string, output io.Writer, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "json":
		return slog.NewJSONHandler(output, opts)
	case "console":
		return newConsoleHandler(output, level)
	default:
		return slog.NewTextHandler(output, opts)
	}
}

// outputWriter returns stdout only when asked for; everything else goes to
// stderr so log lines never interleave with exported data.
func outputWriter(name string) io.Writer {
	if strings.EqualFold(name, "stdout") {
		return os.Stdout
	}
	return os.Stderr
}

// parseLevel converts a level name, case-insensitively. Unknown names are info.
func parseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(level)]; ok {
		return l
	}
	return slog.LevelInfo
}

// With returns a child Logger carrying args on every entry.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default is the logger used before the config file has been read:
// text on stderr at info level.
func Default() *Logger {
	return New(config.LoggingConfig{Level: "info", Format: "text", Output: "stderr"}, "dev")
}
