// Package apperr defines the failure taxonomy shared by every layer of the engine.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure for logging and for the HTTP status it maps to.
type Kind string

const (
	// InvalidRequest is a missing or malformed caller parameter.
	InvalidRequest Kind = "invalid_request"
	// NotFound is a spreadsheet path that does not exist.
	NotFound Kind = "not_found"
	// ResourceUnreadable is a spreadsheet that cannot be opened or parsed.
	ResourceUnreadable Kind = "resource_unreadable"
	// ResourceUnwritable is a spreadsheet that cannot be written.
	ResourceUnwritable Kind = "resource_unwritable"
	// OperationFailed is a dispatcher failure: bad column, type mismatch, bad predicate.
	OperationFailed Kind = "operation_failed"
	// AgentUnavailable means the external agent is not configured.
	AgentUnavailable Kind = "agent_unavailable"
	// AgentFailed is an error returned by, or while talking to, the external agent.
	AgentFailed Kind = "agent_failed"
	// Internal is anything that was not classified.
	Internal Kind = "internal"
)

// Error carries a Kind, the operation that failed, and the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return string(e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with a kind and operation name.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an Error whose cause is a formatted message. %w is honoured.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// HTTPStatus maps a failure onto the status code returned to HTTP callers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case InvalidRequest, ResourceUnreadable, OperationFailed:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
