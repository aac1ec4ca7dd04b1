package services

import (
	"sync"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// ProjectContext holds the project the user is working in
type ProjectContext struct {
	mu      sync.RWMutex
	current *domain.Project

	changed Emitter[*domain.Project]
}

// NewProjectContext creates a context with no current project
func NewProjectContext() *ProjectContext {
	return &ProjectContext{}
}

// Current returns the current project, or nil
func (p *ProjectContext) Current() *domain.Project {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return nil
	}
	c := *p.current
	return &c
}

// CurrentID returns the current project id, or ""
func (p *ProjectContext) CurrentID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return ""
	}
	return p.current.ID
}

// SetCurrent switches the current project. Setting the same id again is a no-op.
func (p *ProjectContext) SetCurrent(project *domain.Project) {
	p.mu.Lock()
	if project != nil && p.current != nil && project.ID == p.current.ID {
		p.mu.Unlock()
		return
	}
	if project == nil {
		p.current = nil
	} else {
		c := *project
		p.current = &c
	}
	p.mu.Unlock()

	p.changed.Emit(p.Current())
}

// OnChange subscribes to project switches
func (p *ProjectContext) OnChange(fn func(*domain.Project)) func() {
	return p.changed.Subscribe(fn)
}
