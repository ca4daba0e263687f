// Package output provides formatting utilities for CLI output.
package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/klytics/xlengine/cmd/version"
	"github.com/klytics/xlengine/internal/apperr"
)

// Exit codes for consistent error reporting.
const (
	ExitOK          = 0 // success
	ExitUserError   = 1 // bad arguments, missing file, failed operation
	ExitSystemError = 2 // IO error, provider failure, anything unclassified
)

// JSONResult is the standard JSON output envelope for all commands.
type JSONResult struct {
	OK      bool        `json:"ok"`
	Command string      `json:"command"`
	Version string      `json:"version"`
	Data    any         `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    apperr.Kind `json:"kind,omitempty"`
	Code    int         `json:"code,omitempty"`
}

// ExitCode maps an error onto a process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	switch apperr.KindOf(err) {
	case apperr.InvalidRequest, apperr.NotFound, apperr.ResourceUnreadable, apperr.OperationFailed:
		return ExitUserError
	}
	return ExitSystemError
}

// PrintJSON writes a success envelope to w.
func PrintJSON(w io.Writer, cmd string, data any) error {
	return encode(w, JSONResult{
		OK:      true,
		Command: cmd,
		Version: version.Version,
		Data:    data,
	})
}

// PrintJSONError writes an error envelope to w.
func PrintJSONError(w io.Writer, cmd string, err error) error {
	result := JSONResult{
		OK:      false,
		Command: cmd,
		Version: version.Version,
		Error:   err.Error(),
		Kind:    apperr.KindOf(err),
		Code:    ExitCode(err),
	}
	if encErr := encode(w, result); encErr != nil {
		return fmt.Errorf("could not encode JSON error: %w", encErr)
	}
	return nil
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
