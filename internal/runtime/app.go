// Package runtime wires the ListNote services onto a set of backends.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/listnote/listnote-core/internal/adapters/driven/memory"
	"github.com/listnote/listnote-core/internal/adapters/driven/replica"
	"github.com/listnote/listnote-core/internal/clock"
	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/services"
	"github.com/listnote/listnote-core/internal/worker"
)

// Options configures an App
type Options struct {
	Backends *Backends

	// Self is this user's presence in collaboration rooms
	Self domain.Peer

	SaveInterval   time.Duration
	PromptDuration time.Duration

	// Executor runs peer messages, topic changes and debounced saves.
	// nil gives the App its own serial loop, which Do and the App's
	// methods share.
	Executor services.Executor

	Clock  clock.Clock
	Logger *slog.Logger
}

// App holds one client's services. Services reference each other
// explicitly; there is no global state.
type App struct {
	Errors   *services.ErrorSlot
	Projects *services.ProjectContext
	Prompts  *services.PromptQueue
	Registry *services.TaskRegistry
	Files    *services.FileService
	Binding  *services.Binding
	Autosave *services.Autosave
	TaskItem *services.TaskItem
	Docs     *services.DocumentService

	backends *Backends
	loop     *worker.Loop
	clock    clock.Clock
	logger   *slog.Logger
}

// New wires an App. The autosave controller and the task node lifecycle
// register with the binding before any document can be opened.
func New(opts Options) (*App, error) {
	b := opts.Backends
	if b == nil || b.Files == nil || b.Tasks == nil || b.UserData == nil || b.Local == nil {
		return nil, fmt.Errorf("%w: storage and local backends are required", domain.ErrInvalidInput)
	}
	if b.Topics == nil || b.Collab == nil {
		hub := memory.NewHub()
		if b.Topics == nil {
			b.Topics = hub
		}
		if b.Collab == nil {
			b.Collab = hub
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}

	self := opts.Self
	if self.Color == "" {
		self.Color = domain.PeerColor(self.ID)
	}

	a := &App{
		Errors:   services.NewErrorSlot(),
		Projects: services.NewProjectContext(),
		backends: b,
		clock:    c,
		logger:   logger,
	}
	exec := opts.Executor
	if exec == nil {
		a.loop = worker.NewLoop(worker.LoopConfig{Logger: logger.With("component", "worker")})
		a.loop.Start()
		exec = a.loop
	}
	a.Prompts = services.NewPromptQueue(services.PromptQueueConfig{
		Clock:    c,
		Duration: opts.PromptDuration,
		Logger:   logger.With("component", "prompts"),
	})
	a.Registry = services.NewTaskRegistry(services.TaskRegistryConfig{
		Store:    b.Tasks,
		Topics:   b.Topics,
		Projects: a.Projects,
		Executor: exec,
		Clock:    c,
		Logger:   logger.With("component", "tasks"),
	})
	a.Files = services.NewFileService(services.FileServiceConfig{
		Store:    b.Files,
		UserData: b.UserData,
		Topics:   b.Topics,
		Lock:     b.Lock,
		Errors:   a.Errors,
		Executor: exec,
		Clock:    c,
		Logger:   logger.With("component", "files"),
	})
	a.Binding = services.NewBinding(services.BindingConfig{
		Files:    b.Files,
		Replicas: replica.NewFactory(),
		Collab:   b.Collab,
		Self:     self,
		Executor: exec,
		Errors:   a.Errors,
		Logger:   logger.With("component", "binding"),
	})
	a.Autosave = services.NewAutosave(services.AutosaveConfig{
		Binding:  a.Binding,
		Files:    b.Files,
		Errors:   a.Errors,
		Executor: exec,
		Clock:    c,
		Interval: opts.SaveInterval,
		Logger:   logger.With("component", "autosave"),
	})
	a.TaskItem = services.NewTaskItem(services.TaskItemConfig{
		Registry: a.Registry,
		Binding:  a.Binding,
		Files:    a.Files,
		Prompts:  a.Prompts,
		Local:    b.Local,
		Errors:   a.Errors,
		Clock:    c,
		Logger:   logger.With("component", "task_item"),
	})
	a.Docs = services.NewDocumentService(services.DocumentServiceConfig{
		Binding:  a.Binding,
		Files:    a.Files,
		Registry: a.Registry,
		Projects: a.Projects,
		Local:    b.Local,
		Logger:   logger.With("component", "documents"),
	})
	return a, nil
}

// Do runs fn after everything already queued on the App's loop and
// waits for it. Code outside the App that reads or edits services goes
// through Do so it never overlaps with peer messages or saves. With an
// external executor fn runs on the calling goroutine.
func (a *App) Do(ctx context.Context, fn func() error) error {
	if a.loop == nil {
		return fn()
	}
	return a.loop.Do(ctx, fn)
}

// OpenProject makes project current and loads its tasks and file tree
func (a *App) OpenProject(ctx context.Context, project *domain.Project) error {
	return a.Do(ctx, func() error { return a.openProject(ctx, project) })
}

func (a *App) openProject(ctx context.Context, project *domain.Project) error {
	if project == nil || project.ID == "" {
		return domain.ErrNoCurrentProject
	}
	a.Projects.SetCurrent(project)

	if _, err := a.Registry.LoadTasks(ctx, project.ID); err != nil {
		return fmt.Errorf("failed to load tasks: %w", err)
	}
	if _, err := a.Files.LoadFiles(ctx, project); err != nil {
		return fmt.Errorf("failed to load files: %w", err)
	}
	return nil
}

// OpenToday opens today's journal of the current project, creating it
// when missing, and inserts the open tasks from other documents once
// per day. It returns the session and how many tasks were inserted.
func (a *App) OpenToday(ctx context.Context) (s *services.Session, n int, err error) {
	err = a.Do(ctx, func() (err error) {
		s, n, err = a.openToday(ctx)
		return err
	})
	return s, n, err
}

func (a *App) openToday(ctx context.Context) (*services.Session, int, error) {
	project := a.Projects.Current()
	if project == nil {
		return nil, 0, domain.ErrNoCurrentProject
	}

	docID, err := a.Files.NewDailyFile(ctx, project, a.clock.Now())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create journal: %w", err)
	}
	s, err := a.Docs.Load(ctx, project, docID)
	if err != nil {
		return nil, 0, err
	}

	n, err := a.TaskItem.InsertOpenTasks(ctx, s)
	if err != nil {
		return s, 0, err
	}
	a.logger.Info("opened journal", "doc_id", docID, "inserted", n)
	return s, n, nil
}

// ReopenLast binds the document opened last on this device, if any
func (a *App) ReopenLast(ctx context.Context) (s *services.Session, ok bool, err error) {
	err = a.Do(ctx, func() (err error) {
		s, ok, err = a.reopenLast(ctx)
		return err
	})
	return s, ok, err
}

func (a *App) reopenLast(ctx context.Context) (*services.Session, bool, error) {
	ref, ok := a.Docs.LastDoc(ctx)
	if !ok {
		return nil, false, nil
	}
	project := a.Projects.Current()
	if project == nil || project.ID != ref.ProjectID {
		project = &domain.Project{ID: ref.ProjectID}
	}
	s, err := a.Docs.Load(ctx, project, ref.DocumentID)
	if err != nil {
		return nil, false, err
	}
	return s, true, nil
}

// Now returns the app clock's current time
func (a *App) Now() time.Time {
	return a.clock.Now()
}

// Unload flushes a pending save the way a page unload would
func (a *App) Unload(ctx context.Context) error {
	return a.Do(ctx, func() error { return a.Autosave.Flush(ctx) })
}

// Close flushes pending edits, unbinds the document, stops topic
// subscriptions, drains the loop and releases the backends
func (a *App) Close(ctx context.Context) error {
	var errs []error
	err := a.Do(ctx, func() error {
		defer a.Docs.Close(ctx)
		return a.Autosave.Flush(ctx)
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if err := a.Registry.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := a.Files.Close(); err != nil {
		errs = append(errs, err)
	}
	if a.loop != nil {
		a.loop.Stop()
	}
	if err := a.backends.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
