package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// Init configures the global slog default with the given level and format.
// If w is nil, os.Stderr is used. Format must be "text" or "json".
func Init(level slog.Level, format string, w ...io.Writer) {
	var writer io.Writer = os.Stderr
	if len(w) > 0 && w[0] != nil {
		writer = w[0]
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(writer, opts)
	default:
		handler = slog.NewTextHandler(writer, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// InitDaily configures the default logger to write to stderr and to the
// day's log file under dir. The file is append-only; concurrent workers
// may interleave lines, and each line carries its own timestamp.
// The returned closer releases the file handle.
func InitDaily(level slog.Level, format, dir string) (io.Closer, error) {
	if err := os.MkdirAll(dir, 0775); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := DailyLogPath(dir, time.Now())
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0664)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	Init(level, format, io.MultiWriter(os.Stderr, f))
	return f, nil
}

// DailyLogPath returns the log file path for the given day (one file per
// calendar day).
func DailyLogPath(dir string, day time.Time) string {
	return filepath.Join(dir, "neuropipe-"+day.Format("20060102")+".log")
}

// New returns a logger with a "component" attribute for module-scoped logging.
func New(component string) *slog.Logger {
	return slog.Default().With(slog.String("component", component))
}
