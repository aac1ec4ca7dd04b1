package services

import (
	"sync"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// ErrorSlot is the document-level error banner.
// It holds at most one rendered message; an empty message means no error.
type ErrorSlot struct {
	mu      sync.RWMutex
	message string

	changed Emitter[string]
}

// NewErrorSlot creates an empty error slot
func NewErrorSlot() *ErrorSlot {
	return &ErrorSlot{}
}

// Set renders err into the slot. A nil error clears it.
func (s *ErrorSlot) Set(err error) {
	if err == nil {
		s.SetMessage("")
		return
	}
	s.SetMessage(domain.UnwrapError(err))
}

// SetMessage replaces the message
func (s *ErrorSlot) SetMessage(message string) {
	s.mu.Lock()
	if s.message == message {
		s.mu.Unlock()
		return
	}
	s.message = message
	s.mu.Unlock()

	s.changed.Emit(message)
}

// Clear dismisses the banner
func (s *ErrorSlot) Clear() {
	s.SetMessage("")
}

// Message returns the current message
func (s *ErrorSlot) Message() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.message
}

// OnChange subscribes to message changes
func (s *ErrorSlot) OnChange(fn func(string)) func() {
	return s.changed.Subscribe(fn)
}
