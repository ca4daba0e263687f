// Package audit keeps a JSONL trail of every orchestrated request.
package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// Entry represents a single audit log entry.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id,omitempty"`
	Source     string    `json:"source"` // http, cli, watch, shell
	Operation  string    `json:"operation"`
	InputFile  string    `json:"input_file,omitempty"`
	OutputFile string    `json:"output_file,omitempty"`
	Query      string    `json:"query,omitempty"`
	Status     string    `json:"status"` // success or error
	ErrorKind  string    `json:"error_kind,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	RowsBefore int       `json:"rows_before,omitempty"`
	RowsAfter  int       `json:"rows_after,omitempty"`
	DurationMs int64     `json:"duration_ms"`
}

// Logger appends entries to a file. The zero value and a nil *Logger are disabled.
type Logger struct {
	FilePath string
	Enabled  bool

	mu sync.Mutex
}

// NewLogger creates a Logger writing to filePath when enabled.
func NewLogger(filePath string, enabled bool) *Logger {
	return &Logger{FilePath: filePath, Enabled: enabled}
}

// Log writes a single audit entry. Best-effort: failures never reach the request.
func (l *Logger) Log(_ context.Context, entry Entry) error {
	if l == nil || !l.Enabled || l.FilePath == "" {
		return nil
	}
	entry.Query = Redact(entry.Query)

	data, err := json.Marshal(entry)
	if err != nil {
		return nil
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	// Ensure parent directory exists
	if err := os.MkdirAll(filepath.Dir(l.FilePath), 0755); err != nil {
		return nil // silently fail — never block requests
	}
	f, err := os.OpenFile(l.FilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil
	}
	defer f.Close()
	_, _ = f.Write(data)
	return nil
}

// ReadEntries reads all audit entries from the log file.
func ReadEntries(filePath string) ([]Entry, error) {
	f, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue // skip malformed lines
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}

// Filter selects entries. Zero fields match everything.
type Filter struct {
	Since     time.Time
	Until     time.Time
	Operation string
	Status    string
}

// FilterEntries returns entries matching the given criteria.
func FilterEntries(entries []Entry, f Filter) []Entry {
	var result []Entry
	for _, e := range entries {
		if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
			continue
		}
		if !f.Until.IsZero() && e.Timestamp.After(f.Until) {
			continue
		}
		if f.Operation != "" && !strings.Contains(e.Operation, f.Operation) {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		result = append(result, e)
	}
	return result
}

// LogSize returns the size of the audit log in bytes, or 0 if not found.
func LogSize(filePath string) int64 {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Clear truncates the audit log file.
func Clear(filePath string) error {
	return os.Truncate(filePath, 0)
}

// secretPattern matches API keys that users sometimes paste into queries.
var secretPattern = regexp.MustCompile(`\b(sk-ant-[A-Za-z0-9_-]+|sk-[A-Za-z0-9_-]{16,}|AIza[0-9A-Za-z_-]{20,}|Bearer\s+\S+)`)

// Redact replaces API keys in free text with [REDACTED].
func Redact(s string) string {
	return secretPattern.ReplaceAllString(s, "[REDACTED]")
}
