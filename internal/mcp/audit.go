package mcp

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/nvandessel/namsweep/internal/pathutil"
	"github.com/nvandessel/namsweep/internal/store"
)

// AuditFile is the tool call log, relative to the project root.
var AuditFile = filepath.Join(store.DirName, "audit.jsonl")

// AuditLogger appends one JSON line per tool call. A nil AuditLogger is
// valid and discards everything.
type AuditLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger zerolog.Logger
}

// NewAuditLogger opens root/.namsweep/audit.jsonl for appending. It returns
// nil and prints a warning when the file cannot be opened.
func NewAuditLogger(root string) *AuditLogger {
	path := filepath.Join(root, AuditFile)
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", pathutil.RedactPath(filepath.Dir(path)), err)
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", pathutil.RedactPath(path), err)
		return nil
	}
	return &AuditLogger{
		file:   f,
		logger: zerolog.New(f).With().Timestamp().Logger(),
	}
}

// Log records a tool call. Only params listed by sanitizeToolParams are
// written, never document content.
func (a *AuditLogger) Log(tool string, start time.Time, err error, params map[string]string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}

	ev := a.logger.Log().
		Str("tool", tool).
		Int64("duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		ev = ev.Str("status", "error").Str("error", err.Error())
	} else {
		ev = ev.Str("status", "success")
	}
	if len(params) > 0 {
		d := zerolog.Dict()
		for k, v := range params {
			d = d.Str(k, v)
		}
		ev = ev.Dict("params", d)
	}
	ev.Send()
}

// Close closes the log file.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// sanitizeToolParams keeps values of known-safe params and records only the
// presence of paths.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	safeValue := map[string]bool{
		"experiment": true,
		"seed":       true,
		"offset":     true,
		"limit":      true,
	}
	presenceOnly := map[string]bool{
		"path": true,
	}

	out := make(map[string]string, len(params))
	for k, v := range params {
		switch {
		case safeValue[k]:
			out[k] = fmt.Sprintf("%v", v)
		case presenceOnly[k]:
			out[k] = "(set)"
		}
	}
	out["_param_count"] = fmt.Sprintf("%d", len(params))
	return out
}

func (s *Server) auditTool(tool string, start time.Time, err error, params map[string]string) {
	s.auditLogger.Log(tool, start, err, params)
}
