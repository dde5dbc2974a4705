// Package logging builds the process logger. Output is JSON via log/slog,
// optionally teed into a size-rotated file.
package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"attendance/internal/config"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns the application logger and a closer for its file sink.
func New(cfg config.LogConfig) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)
	if cfg.File != "" {
		maxSize := int64(cfg.MaxSizeMB) * 1024 * 1024
		if maxSize <= 0 {
			maxSize = 20 * 1024 * 1024
		}
		fw, err := NewRotatingFileWriter(cfg.File, maxSize, cfg.MaxBackups)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, fw)
		closer = fw
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(cfg.Level)})
	return slog.New(h).With("service", "attendance-auth"), closer, nil
}

// ParseLevel maps debug|info|warn|error onto slog levels, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StdLogger bridges l into a *log.Logger for libraries that print lines,
// such as the chi request logger.
func StdLogger(l *slog.Logger) *log.Logger {
	return slog.NewLogLogger(l.Handler(), slog.LevelInfo)
}

// Discard returns a logger that drops everything. Meant for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
