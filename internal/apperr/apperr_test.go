package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := Errorf(OperationFailed, "filter", "column %q not found", "salary")
	wrapped := fmt.Errorf("request failed: %w", base)

	if got := KindOf(wrapped); got != OperationFailed {
		t.Errorf("KindOf = %q, want %q", got, OperationFailed)
	}
	if got := KindOf(errors.New("plain")); got != Internal {
		t.Errorf("KindOf(plain) = %q, want %q", got, Internal)
	}
	if !Is(wrapped, OperationFailed) {
		t.Error("Is should find the wrapped kind")
	}
}

func TestErrorMessage(t *testing.T) {
	err := New(ResourceUnreadable, "load", errors.New("bad zip"))
	if err.Error() != "load: bad zip" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if !errors.Is(err, err.Err) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		kind Kind
		want int
	}{
		{InvalidRequest, http.StatusBadRequest},
		{NotFound, http.StatusNotFound},
		{ResourceUnreadable, http.StatusBadRequest},
		{ResourceUnwritable, http.StatusInternalServerError},
		{OperationFailed, http.StatusBadRequest},
		{AgentUnavailable, http.StatusInternalServerError},
		{AgentFailed, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			if got := HTTPStatus(New(tt.kind, "x", nil)); got != tt.want {
				t.Errorf("HTTPStatus(%s) = %d, want %d", tt.kind, got, tt.want)
			}
		})
	}
	if got := HTTPStatus(errors.New("boom")); got != http.StatusInternalServerError {
		t.Errorf("unclassified error status = %d", got)
	}
}
