package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *APIError
		want string
	}{
		{"message only", &APIError{Status: 400, Message: "Invalid task"}, "Invalid task"},
		{"no message", &APIError{Status: 502}, "request failed with status 502"},
		{
			"fields sorted",
			&APIError{Status: 422, Message: "Invalid task", Fields: map[string]any{"title": "too long", "due": "in the past"}},
			"Invalid task: due in the past, title too long",
		},
		{
			"hidden fields",
			&APIError{Status: 401, Message: "Login required", Fields: map[string]any{"message": "x", "resend": true}},
			"Login required",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAPIError_Is(t *testing.T) {
	notFound := fmt.Errorf("load task: %w", &APIError{Status: 404})
	if !errors.Is(notFound, ErrNotFound) {
		t.Error("404 should match ErrNotFound")
	}
	if errors.Is(&APIError{Status: 500}, ErrNotFound) {
		t.Error("500 should not match ErrNotFound")
	}
}

func TestUnwrapError(t *testing.T) {
	if got := UnwrapError(nil); got != "Error" {
		t.Errorf("UnwrapError(nil) = %q", got)
	}
	wrapped := fmt.Errorf("save: %w", &APIError{Status: 400, Message: "Bad", Fields: map[string]any{"name": "taken"}})
	if got := UnwrapError(wrapped); got != "Bad: name taken" {
		t.Errorf("UnwrapError(api) = %q", got)
	}
	if got := UnwrapError(ErrNotBound); got != "no document bound" {
		t.Errorf("UnwrapError(plain) = %q", got)
	}
}
