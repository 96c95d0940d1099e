// Package logging provides leveled logging and plan event tracing for
// namsweep. It offers two complementary outputs:
//   - A leveled zerolog.Logger for stderr (operational output)
//   - An EventLogger for structured JSONL plan events (.namsweep/events.jsonl)
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// ParseLevel maps a level name to a zerolog.Level. Supported values are
// "trace", "debug", "info", "warn" and "error" (case-insensitive). Unknown
// values default to info.
func ParseLevel(s string) zerolog.Level {
	switch strings.ToLower(s) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a leveled logger writing to w. Terminals get zerolog's
// console format; anything else gets one JSON object per line.
func NewLogger(level string, w io.Writer) zerolog.Logger {
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
}

// WithComponent returns a child logger annotated with a component name.
func WithComponent(logger zerolog.Logger, component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}

// EventLogger writes structured plan events to a JSONL file. It is safe for
// concurrent use. A nil EventLogger is safe to use; all methods are no-ops
// on a nil receiver.
type EventLogger struct {
	mu   sync.Mutex
	file *os.File
	log  zerolog.Logger
}

// NewEventLogger creates an event logger writing to dir/events.jsonl.
// At info level and above it returns nil and no file is created.
// It also returns nil if the file cannot be opened.
func NewEventLogger(dir string, level string) *EventLogger {
	if ParseLevel(level) > zerolog.DebugLevel {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, "events.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &EventLogger{
		file: f,
		log:  zerolog.New(f).With().Timestamp().Logger(),
	}
}

// Log writes one event line with the given fields. The caller's map is not
// mutated. Safe to call on a nil receiver.
func (el *EventLogger) Log(event string, fields map[string]any) {
	if el == nil {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	if el.file == nil {
		return
	}
	el.log.Log().Str("event", event).Fields(fields).Send()
}

// Close closes the underlying file. Safe to call on a nil receiver.
func (el *EventLogger) Close() {
	if el == nil {
		return
	}

	el.mu.Lock()
	defer el.mu.Unlock()

	if el.file != nil {
		el.file.Close()
		el.file = nil
	}
}
