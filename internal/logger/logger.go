// Package logger builds the process-wide slog logger.
package logger

import (
	"errors"
	"io"
	"log/slog"
	"strings"
)

var (
	ErrEmptySetting  = errors.New("logLevel and logFormat must not be empty")
	ErrInvalidLevel  = errors.New("invalid logLevel")
	ErrInvalidFormat = errors.New("invalid logFormat")
)

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(logLevel string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(logLevel)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, errors.Join(ErrInvalidLevel, errors.New(logLevel))
	}
}

// New sets up the slog logger with level and format from arguments and
// installs it as the default logger.
// logLevel: "info", "debug", "warn", "error"
// logFormat: "json" or "text"
func New(logLevel, logFormat string, w io.Writer) (*slog.Logger, error) {
	if strings.TrimSpace(logLevel) == "" || strings.TrimSpace(logFormat) == "" {
		return nil, ErrEmptySetting
	}
	level, err := ParseLevel(logLevel)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{Key: "timestamp", Value: a.Value}
			}
			return a
		},
	}

	var handler slog.Handler
	switch strings.ToLower(logFormat) {
	case "json":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		return nil, errors.Join(ErrInvalidFormat, errors.New(logFormat))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, nil
}
