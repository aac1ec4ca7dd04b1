package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// APIError is a structured failure returned by the storage API.
// Fields carries any extra keys of the nested error object besides "message".
type APIError struct {
	Status  int
	Message string
	Fields  map[string]any
}

// hiddenErrorFields are keys of the nested error object that are never rendered
var hiddenErrorFields = map[string]bool{
	"message": true,
	"resend":  true,
}

// Error renders "message: key1 value1, key2 value2" with keys in sorted order
func (e *APIError) Error() string {
	message := e.Message
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", e.Status)
	}

	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		if hiddenErrorFields[k] {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return message
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s %v", k, e.Fields[k]))
	}
	return message + ": " + strings.Join(parts, ", ")
}

// Is maps 404 responses onto ErrNotFound
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == 404
}

// UnwrapError renders an error for the document error slot.
// A nil error renders as "Error" and an API error keeps its field details.
func UnwrapError(err error) string {
	if err == nil {
		return "Error"
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}
