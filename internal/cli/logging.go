package cli

import (
	"io"
	"log/slog"

	"github.com/clean-dependency-project/droidrepo/internal/logger"
)

// NewLoggers creates the stdout/stderr logger pair used across the CLI.
// Both write to w (stderr in production) so stdout stays clean for
// annotations and JSON output.
func NewLoggers(levelStr, format string, w io.Writer) (*slog.Logger, *slog.Logger, error) {
	l, err := logger.New(levelStr, format, w)
	if err != nil {
		return nil, nil, err
	}
	return l, l, nil
}
