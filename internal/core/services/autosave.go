package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/listnote/listnote-core/internal/clock"
	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
	"github.com/listnote/listnote-core/internal/debounce"
)

// DefaultSaveInterval is the quiet period after the last local edit before a save
const DefaultSaveInterval = 5 * time.Second

// Autosave persists the bound document after local edits settle, and
// flushes unsaved edits when the document is torn down or the app unloads.
type Autosave struct {
	binding  *Binding
	files    driven.FileStore
	errors   *ErrorSlot
	exec     Executor
	debounce *debounce.Debouncer
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	session *Session
	off     func()
	dirty   bool
	edits   uint64

	saved Emitter[domain.DocRef]
}

// AutosaveConfig holds dependencies for Autosave.
type AutosaveConfig struct {
	Binding  *Binding
	Files    driven.FileStore
	Errors   *ErrorSlot
	// Executor runs debounced saves; nil runs them on the timer
	Executor Executor
	Clock    clock.Clock
	Interval time.Duration
	Logger   *slog.Logger
}

// NewAutosave creates an autosave controller attached to the binding
func NewAutosave(cfg AutosaveConfig) *Autosave {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultSaveInterval
	}
	errSlot := cfg.Errors
	if errSlot == nil {
		errSlot = NewErrorSlot()
	}

	a := &Autosave{
		binding:  cfg.Binding,
		files:    cfg.Files,
		errors:   errSlot,
		exec:     executorOrInline(cfg.Executor),
		debounce: debounce.New(cfg.Clock),
		interval: interval,
		logger:   logger,
	}
	cfg.Binding.OnBound(a.attach)
	cfg.Binding.OnTeardown(a.teardown)
	return a
}

func saveKey(documentID string) string {
	return "save-" + documentID
}

func (a *Autosave) attach(s *Session) {
	off := s.OnChange(func(c Change) {
		if c.Unsaved() {
			a.markDirty(s)
		}
	})

	a.mu.Lock()
	a.session = s
	a.off = off
	a.dirty = false
	a.mu.Unlock()
}

func (a *Autosave) markDirty(s *Session) {
	a.mu.Lock()
	if a.session != s {
		a.mu.Unlock()
		return
	}
	a.dirty = true
	a.edits++
	a.mu.Unlock()

	a.debounce.Call(saveKey(s.Ref().DocumentID), func() {
		a.exec.Submit(func() { a.fire(s) })
	}, a.interval, debounce.ResetOnNew)
}

func (a *Autosave) fire(s *Session) {
	// the document may have changed since the save was scheduled
	if !a.binding.IsCurrent(s) {
		return
	}
	if err := a.save(context.Background(), s); err != nil {
		a.logger.Warn("autosave failed", "doc", s.Ref().Room(), "error", err)
	}
}

// save writes the full replica state. Dirty is cleared only when no local
// edit arrived while the write was in flight.
func (a *Autosave) save(ctx context.Context, s *Session) error {
	a.mu.Lock()
	edits := a.edits
	a.mu.Unlock()

	state, err := s.Encode()
	if err != nil {
		a.errors.Set(err)
		return fmt.Errorf("failed to encode document: %w", err)
	}

	ref := s.Ref()
	a.logger.Info("saving document", "doc", ref.Room(), "bytes", len(state))
	if err := a.files.WriteFile(ctx, ref.ProjectID, ref.DocumentID, domain.ReplicaContent(state)); err != nil {
		a.errors.Set(err)
		return fmt.Errorf("failed to save document: %w", err)
	}

	a.mu.Lock()
	if a.session == s && a.edits == edits {
		a.dirty = false
	}
	a.mu.Unlock()

	a.saved.Emit(ref)
	return nil
}

// teardown flushes unsaved edits before the session is destroyed
func (a *Autosave) teardown(ctx context.Context, s *Session) {
	a.mu.Lock()
	if a.session != s {
		a.mu.Unlock()
		return
	}
	dirty := a.dirty
	off := a.off
	a.mu.Unlock()

	a.debounce.Cancel(saveKey(s.Ref().DocumentID))
	if dirty {
		if err := a.save(ctx, s); err != nil {
			a.logger.Warn("flush on close failed", "doc", s.Ref().Room(), "error", err)
		}
	}
	if off != nil {
		off()
	}

	a.mu.Lock()
	a.session = nil
	a.off = nil
	a.dirty = false
	a.mu.Unlock()
}

// Flush saves the bound document now if it has unsaved edits
func (a *Autosave) Flush(ctx context.Context) error {
	a.mu.Lock()
	s := a.session
	dirty := a.dirty
	a.mu.Unlock()

	if s == nil || !dirty {
		return nil
	}
	a.debounce.Cancel(saveKey(s.Ref().DocumentID))
	return a.save(ctx, s)
}

// Dirty reports whether the bound document has unsaved local edits
func (a *Autosave) Dirty() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dirty
}

// Pending reports whether a debounced save is scheduled for the document
func (a *Autosave) Pending(documentID string) bool {
	return a.debounce.Pending(saveKey(documentID))
}

// OnSaved subscribes to successful saves
func (a *Autosave) OnSaved(fn func(domain.DocRef)) func() {
	return a.saved.Subscribe(fn)
}
