package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/listnote/listnote-core/internal/clock"
	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
	"github.com/listnote/listnote-core/internal/core/ports/driving"
)

// Task topic naming
const (
	taskTopicPrefix = "tasks:"
	keyTask         = "task|"
)

// TaskTopicName returns the task topic of a project
func TaskTopicName(projectID string) string {
	return taskTopicPrefix + projectID
}

// Verify interface compliance
var _ driving.TaskService = (*TaskRegistry)(nil)

// TaskRegistry is the client-side registry of task records.
// It keeps a lookup map by id plus the ordered list last returned by the
// backend, and tells other sessions about changes through a per-project topic.
type TaskRegistry struct {
	store    driven.TaskStore
	topics   driven.TopicFactory
	projects *ProjectContext
	exec     Executor
	clock    clock.Clock
	logger   *slog.Logger

	mu         sync.Mutex
	tasks      map[string]*domain.Task
	list       []*domain.Task
	taskTopics map[string]driven.Topic

	deleted     Emitter[*domain.Task]
	changed     Emitter[*domain.Task]
	listChanged Emitter[[]*domain.Task]
}

// TaskRegistryConfig holds dependencies for TaskRegistry.
type TaskRegistryConfig struct {
	Store    driven.TaskStore
	Topics   driven.TopicFactory
	Projects *ProjectContext
	// Executor runs topic deliveries; nil runs them inline
	Executor Executor
	Clock    clock.Clock
	Logger   *slog.Logger
}

// NewTaskRegistry creates a task registry
func NewTaskRegistry(cfg TaskRegistryConfig) *TaskRegistry {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	projects := cfg.Projects
	if projects == nil {
		projects = NewProjectContext()
	}

	return &TaskRegistry{
		store:      cfg.Store,
		topics:     cfg.Topics,
		projects:   projects,
		exec:       executorOrInline(cfg.Executor),
		clock:      c,
		logger:     logger,
		tasks:      make(map[string]*domain.Task),
		taskTopics: make(map[string]driven.Topic),
	}
}

// Task returns a copy of the task with the given id
func (r *TaskRegistry) Task(id string) (*domain.Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Tasks returns a copy of the ordered display list
func (r *TaskRegistry) Tasks() []*domain.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneTasks(r.list)
}

func cloneTasks(tasks []*domain.Task) []*domain.Task {
	out := make([]*domain.Task, len(tasks))
	for i, t := range tasks {
		out[i] = t.Clone()
	}
	return out
}

// LoadTasks fetches every task of the project, replaces the display list
// and upserts the lookup map. Soft-deleted entries the backend no longer
// returns are evicted.
func (r *TaskRegistry) LoadTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	tasks, err := r.store.ListTasks(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	r.mu.Lock()
	returned := make(map[string]bool, len(tasks))
	list := make([]*domain.Task, 0, len(tasks))
	for _, t := range tasks {
		t = t.Clone()
		returned[t.ID] = true
		r.tasks[t.ID] = t
		list = append(list, t)
	}
	for id, t := range r.tasks {
		if t.IsDeleted() && !returned[id] {
			delete(r.tasks, id)
		}
	}
	r.list = list
	result := cloneTasks(list)
	r.mu.Unlock()

	r.logger.Debug("loaded tasks", "project_id", projectID, "count", len(result))
	r.ensureTopic(ctx, projectID)
	r.listChanged.Emit(cloneTasks(result))
	return result, nil
}

// LoadTask fetches a single task unless it is already known.
// With force it always refetches and overwrites the local copy.
func (r *TaskRegistry) LoadTask(ctx context.Context, id string, force bool) (*domain.Task, error) {
	if !force {
		if t, ok := r.Task(id); ok {
			return t, nil
		}
	}

	task, err := r.store.GetTask(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	r.upsert(task)
	return task.Clone(), nil
}

// CreateTask creates a task in the current project
func (r *TaskRegistry) CreateTask(ctx context.Context, patch domain.TaskPatch) (*domain.Task, error) {
	projectID := r.projects.CurrentID()
	if projectID == "" {
		return nil, domain.ErrNoCurrentProject
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	task, err := r.store.CreateTask(ctx, projectID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}
	r.logger.Info("created task", "task_id", task.ID, "project_id", projectID)
	r.upsert(task)
	return task.Clone(), nil
}

// SaveTask merges patch into the local copy immediately, then persists it.
// The backend response replaces the local copy and other sessions are told
// about the change. A failed save keeps the optimistic copy.
func (r *TaskRegistry) SaveTask(ctx context.Context, task *domain.Task, patch domain.TaskPatch) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidInput
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}

	r.upsert(task.Apply(patch))

	saved, err := r.store.UpdateTask(ctx, task.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update task: %w", err)
	}
	r.upsert(saved)
	r.broadcast(ctx, task.ID)
	return saved.Clone(), nil
}

// ToggleComplete checks or unchecks a task. Completing clears the
// in-progress marker.
func (r *TaskRegistry) ToggleComplete(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	patch := domain.TaskPatch{State: domain.Null[string]()}
	if task.IsCompleted() {
		patch.CompletedAt = domain.Null[time.Time]()
	} else {
		patch.CompletedAt = domain.Some(r.clock.Now())
	}
	return r.SaveTask(ctx, task, patch)
}

// ToggleArchived archives or unarchives a task
func (r *TaskRegistry) ToggleArchived(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	var patch domain.TaskPatch
	if task.IsArchived() {
		patch.ArchivedAt = domain.Null[time.Time]()
	} else {
		patch.ArchivedAt = domain.Some(r.clock.Now())
	}
	return r.SaveTask(ctx, task, patch)
}

// UndeleteTask clears the soft-delete marker
func (r *TaskRegistry) UndeleteTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	return r.SaveTask(ctx, task, domain.TaskPatch{DeletedAt: domain.Null[time.Time]()})
}

// DeleteTask soft-deletes a task. Listeners hear about the deletion and the
// task leaves the display list before the save is attempted, whatever its
// outcome.
func (r *TaskRegistry) DeleteTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	if task == nil {
		return nil, domain.ErrInvalidInput
	}
	r.deleted.Emit(task.Clone())

	r.mu.Lock()
	list := make([]*domain.Task, 0, len(r.list))
	for _, t := range r.list {
		if t.ID != task.ID {
			list = append(list, t)
		}
	}
	r.list = list
	snapshot := cloneTasks(list)
	r.mu.Unlock()
	r.listChanged.Emit(snapshot)

	return r.SaveTask(ctx, task, domain.TaskPatch{DeletedAt: domain.Some(r.clock.Now())})
}

// upsert stores a copy of task, keeping the display list entry in sync
func (r *TaskRegistry) upsert(task *domain.Task) {
	task = task.Clone()

	r.mu.Lock()
	r.tasks[task.ID] = task
	for i, t := range r.list {
		if t.ID == task.ID {
			r.list[i] = task
			break
		}
	}
	r.mu.Unlock()

	r.changed.Emit(task.Clone())
}

// OnDeleted subscribes to task deletions made through the registry
func (r *TaskRegistry) OnDeleted(fn func(*domain.Task)) func() {
	return r.deleted.Subscribe(fn)
}

// OnChange subscribes to changes of individual task records
func (r *TaskRegistry) OnChange(fn func(*domain.Task)) func() {
	return r.changed.Subscribe(fn)
}

// OnListChange subscribes to changes of the display list
func (r *TaskRegistry) OnListChange(fn func([]*domain.Task)) func() {
	return r.listChanged.Subscribe(fn)
}

// ensureTopic opens the project's task topic once
func (r *TaskRegistry) ensureTopic(ctx context.Context, projectID string) {
	if r.topics == nil || projectID == "" {
		return
	}

	r.mu.Lock()
	if _, ok := r.taskTopics[projectID]; ok {
		r.mu.Unlock()
		return
	}
	// reserve the slot so concurrent loads open a single topic
	r.taskTopics[projectID] = nil
	r.mu.Unlock()

	topic, err := r.topics.Topic(ctx, TaskTopicName(projectID))
	if err != nil {
		r.logger.Warn("failed to open task topic", "project_id", projectID, "error", err)
		r.mu.Lock()
		delete(r.taskTopics, projectID)
		r.mu.Unlock()
		return
	}
	topic.OnAllKeyChange(func(key, value string) {
		id, ok := strings.CutPrefix(key, keyTask)
		if !ok {
			return
		}
		r.exec.Submit(func() {
			if _, err := r.LoadTask(context.Background(), id, true); err != nil {
				r.logger.Warn("failed to reload changed task", "task_id", id, "error", err)
			}
		})
	})

	r.mu.Lock()
	r.taskTopics[projectID] = topic
	r.mu.Unlock()
}

// broadcast signals a task change on the current project's topic
func (r *TaskRegistry) broadcast(ctx context.Context, taskID string) {
	projectID := r.projects.CurrentID()

	r.mu.Lock()
	topic := r.taskTopics[projectID]
	r.mu.Unlock()
	if topic == nil {
		return
	}

	value := strconv.FormatInt(r.clock.Now().UnixMilli(), 10)
	if err := topic.SetSharedKey(ctx, keyTask+taskID, value); err != nil {
		r.logger.Warn("failed to broadcast task change", "task_id", taskID, "error", err)
	}
}

// Close releases the task topics
func (r *TaskRegistry) Close() error {
	r.mu.Lock()
	topics := r.taskTopics
	r.taskTopics = make(map[string]driven.Topic)
	r.mu.Unlock()

	for _, t := range topics {
		if t != nil {
			_ = t.Close()
		}
	}
	return nil
}
