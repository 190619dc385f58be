package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestIsAppError(t *testing.T) {
	base := NotFound("conversation")
	wrapped := fmt.Errorf("load: %w", base)

	if !IsAppError(wrapped) {
		t.Error("wrapped AppError should be detected")
	}
	var got *AppError
	if !errors.As(wrapped, &got) || got != base {
		t.Errorf("errors.As(wrapped) = %v, want %v", got, base)
	}
	if IsAppError(errors.New("boom")) {
		t.Error("plain error is not an AppError")
	}
}

func TestStatusMapping(t *testing.T) {
	cause := errors.New("upstream")

	tests := []struct {
		name string
		err  *AppError
		want int
		code string
	}{
		{"invalid input", InvalidInput("message", "empty"), http.StatusBadRequest, CodeInvalidInput},
		{"missing field", MissingField("status"), http.StatusBadRequest, CodeMissingField},
		{"state conflict", StateConflict("c1", nil), http.StatusConflict, CodeStateConflict},
		{"invalid transition", InvalidTransition("resolved", "pending"), http.StatusConflict, CodeInvalidTransition},
		{"database", DatabaseError("insert", cause), http.StatusInternalServerError, CodeDatabaseError},
		{"external", ExternalError("openai", cause), http.StatusBadGateway, CodeExternalError},
		{"unavailable", ServiceUnavailable("postgres"), http.StatusServiceUnavailable, CodeServiceUnavailable},
		{"timeout", Timeout("analyze"), http.StatusGatewayTimeout, CodeTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Status != tt.want || tt.err.Code != tt.code {
				t.Errorf("got %d %s, want %d %s", tt.err.Status, tt.err.Code, tt.want, tt.code)
			}
		})
	}

	if !errors.Is(ExternalError("openai", cause), cause) {
		t.Error("ExternalError should unwrap to its cause")
	}
}

func TestWithDetail(t *testing.T) {
	err := StateConflict("c1", nil).WithDetail("max_retries", 5)
	if err.Details["conversation_id"] != "c1" || err.Details["max_retries"] != 5 {
		t.Errorf("Details = %v", err.Details)
	}

	bare := New(CodeTimeout, "slow", http.StatusGatewayTimeout).WithDetail("op", "x")
	if bare.Details["op"] != "x" {
		t.Errorf("Details = %v", bare.Details)
	}
}
