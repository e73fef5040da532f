// package shared holds the helpers every other package leans on: logging,
// identifiers, configuration, and the database layer.
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger builds the application logger, writing to w. A nil writer means
// [os.Stderr]. Timestamps and caller reporting are on; the level starts at
// the library default and is raised through [SetLogLevel].
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}

	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		ReportCaller:    true,
	})
}

// WithLogger derives a child logger carrying the given key-value pairs on
// every entry. Components tag their loggers with it so entries from
// concurrent pipeline stages stay attributable.
func WithLogger(logger *log.Logger, kv ...any) *log.Logger {
	return logger.With(kv...)
}

// SetLogLevel adjusts the logger's minimum level in place. The CLI's
// --verbose flag lowers it to debug.
func SetLogLevel(logger *log.Logger, level log.Level) {
	logger.SetLevel(level)
}

// GenerateID returns a fresh v4 UUID string, the id format for every record.
func GenerateID() string {
	return uuid.New().String()
}
