package services

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/listnote/listnote-core/internal/adapters/driven/memory"
	"github.com/listnote/listnote-core/internal/adapters/driven/replica"
	"github.com/listnote/listnote-core/internal/clock"
	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven/mocks"
)

var testStart = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// backend is what several clients of the same account share
type backend struct {
	clock *clock.Fake
	files *mocks.MockFileStore
	tasks *mocks.MockTaskStore
	hub   *memory.Hub
}

func newBackend() *backend {
	return &backend{
		clock: clock.NewFake(testStart),
		files: mocks.NewMockFileStore(),
		tasks: mocks.NewMockTaskStore(),
		hub:   memory.NewHub(),
	}
}

// client is one running app wired the way the runtime wires it
type client struct {
	*backend
	project  *domain.Project
	local    *mocks.MockLocalStore
	userData *mocks.MockUserDataStore
	errors   *ErrorSlot
	projects *ProjectContext
	prompts  *PromptQueue
	registry *TaskRegistry
	fileSvc  *FileService
	binding  *Binding
	autosave *Autosave
	taskItem *TaskItem
	docs     *DocumentService
}

func newClient(t *testing.T, b *backend, name string) *client {
	t.Helper()
	logger := testLogger()
	c := &client{
		backend:  b,
		project:  &domain.Project{ID: "p1", Name: "Home"},
		local:    mocks.NewMockLocalStore(),
		userData: mocks.NewMockUserDataStore(),
		errors:   NewErrorSlot(),
		projects: NewProjectContext(),
	}
	c.prompts = NewPromptQueue(PromptQueueConfig{Clock: b.clock, Logger: logger})
	c.registry = NewTaskRegistry(TaskRegistryConfig{
		Store:    b.tasks,
		Topics:   b.hub,
		Projects: c.projects,
		Clock:    b.clock,
		Logger:   logger,
	})
	c.fileSvc = NewFileService(FileServiceConfig{
		Store:    b.files,
		UserData: c.userData,
		Topics:   b.hub,
		Errors:   c.errors,
		Clock:    b.clock,
		Logger:   logger,
	})
	c.binding = NewBinding(BindingConfig{
		Files:    b.files,
		Replicas: replica.NewFactory(),
		Collab:   b.hub,
		Self:     domain.Peer{ID: name, Name: name, Color: domain.PeerColor(name)},
		Errors:   c.errors,
		Logger:   logger,
	})
	c.autosave = NewAutosave(AutosaveConfig{
		Binding: c.binding,
		Files:   b.files,
		Errors:  c.errors,
		Clock:   b.clock,
		Logger:  logger,
	})
	c.taskItem = NewTaskItem(TaskItemConfig{
		Registry: c.registry,
		Binding:  c.binding,
		Files:    c.fileSvc,
		Prompts:  c.prompts,
		Local:    c.local,
		Errors:   c.errors,
		Clock:    b.clock,
		Logger:   logger,
	})
	c.docs = NewDocumentService(DocumentServiceConfig{
		Binding:  c.binding,
		Files:    c.fileSvc,
		Registry: c.registry,
		Projects: c.projects,
		Local:    c.local,
		Logger:   logger,
	})
	t.Cleanup(func() {
		c.binding.Unbind(context.Background())
		_ = c.registry.Close()
		_ = c.fileSvc.Close()
	})
	return c
}

func newTestClient(t *testing.T) *client {
	return newClient(t, newBackend(), "alice")
}

// open loads a document of the client's project and fails the test on error
func (c *client) open(t *testing.T, docID string) *Session {
	t.Helper()
	s, err := c.docs.Load(context.Background(), c.project, docID)
	if err != nil {
		t.Fatalf("Load(%s) error = %v", docID, err)
	}
	return s
}

// newDoc creates a document file in the client's project
func (c *client) newDoc(t *testing.T, name string) string {
	t.Helper()
	f, err := c.fileSvc.NewFile(context.Background(), c.project.ID, name, domain.FileTypeDoc, nil)
	if err != nil {
		t.Fatalf("NewFile(%s) error = %v", name, err)
	}
	return f.ID
}

// typeText types text at the end of a block
func typeText(t *testing.T, s *Session, block int, text string) {
	t.Helper()
	ed := s.Editor()
	end := len([]rune(ed.State().Doc[block].Text))
	if err := ed.InsertText(block, end, text); err != nil {
		t.Fatalf("InsertText() error = %v", err)
	}
}

func blockTexts(s *Session) []string {
	var out []string
	for _, b := range s.Editor().State().Doc {
		out = append(out, b.Type+":"+b.Text)
	}
	return out
}

func taskWithID(id, title string) *domain.Task {
	return &domain.Task{ID: id, Title: title}
}

func timePtr(t time.Time) *time.Time {
	return &t
}

// queueExec holds submitted work until flush, standing in for a client
// whose loop is busy while messages arrive
type queueExec struct {
	queue []func()
}

func (q *queueExec) Submit(fn func()) {
	q.queue = append(q.queue, fn)
}

func (q *queueExec) flush() {
	for len(q.queue) > 0 {
		fn := q.queue[0]
		q.queue = q.queue[1:]
		fn()
	}
}
