package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/listnote/listnote-core/internal/core/domain"
)

func strPtr(s string) *string {
	return &s
}

func TestTaskRegistry_LoadTasks(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	c.tasks.Put("p1", taskWithID("t1", "one"))
	c.tasks.Put("p1", taskWithID("t2", "two"))
	c.tasks.Put("p2", taskWithID("t3", "elsewhere"))

	var lists [][]*domain.Task
	c.registry.OnListChange(func(l []*domain.Task) { lists = append(lists, l) })

	tasks, err := c.registry.LoadTasks(ctx, "p1")
	if err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}
	if len(tasks) != 2 || tasks[0].ID != "t1" || tasks[1].ID != "t2" {
		t.Fatalf("tasks = %v, want [t1 t2]", tasks)
	}
	if len(lists) != 1 {
		t.Errorf("list changed %d times, want 1", len(lists))
	}

	got, ok := c.registry.Task("t2")
	if !ok || got.Title != "two" {
		t.Fatalf("Task(t2) = %v, %v", got, ok)
	}

	// copies never alias registry state
	got.Title = "mutated"
	if again, _ := c.registry.Task("t2"); again.Title != "two" {
		t.Errorf("registry copy changed to %q", again.Title)
	}
}

func TestTaskRegistry_LoadTasksEvictsPurgedDeletedTasks(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	deleted := taskWithID("gone", "gone")
	deleted.DeletedAt = timePtr(testStart)
	c.tasks.Put("p1", deleted)
	c.tasks.Put("p1", taskWithID("kept", "kept"))

	if _, err := c.registry.LoadTasks(ctx, "p1"); err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}
	if _, ok := c.registry.Task("gone"); !ok {
		t.Fatal("soft-deleted task should be known after the first load")
	}

	c.tasks.Remove("gone")
	if _, err := c.registry.LoadTasks(ctx, "p1"); err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}

	if _, ok := c.registry.Task("gone"); ok {
		t.Error("soft-deleted task missing from the backend should be evicted")
	}
	if _, ok := c.registry.Task("kept"); !ok {
		t.Error("kept task was evicted")
	}
}

func TestTaskRegistry_LoadTask(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	c.tasks.Put("p1", taskWithID("t1", "v1"))

	fetches := 0
	c.tasks.GetTaskFn = func(id string) (*domain.Task, error) {
		fetches++
		return taskWithID(id, "fetched"), nil
	}

	task, err := c.registry.LoadTask(ctx, "t1", false)
	if err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if task.Title != "fetched" {
		t.Errorf("title = %q, want %q", task.Title, "fetched")
	}

	if _, err := c.registry.LoadTask(ctx, "t1", false); err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if fetches != 1 {
		t.Errorf("known task should not be refetched, fetches = %d", fetches)
	}

	if _, err := c.registry.LoadTask(ctx, "t1", true); err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}
	if fetches != 2 {
		t.Errorf("forced load should refetch, fetches = %d", fetches)
	}
}

func TestTaskRegistry_CreateTaskNeedsProject(t *testing.T) {
	c := newTestClient(t)

	_, err := c.registry.CreateTask(context.Background(), domain.TaskPatch{Title: strPtr("x")})
	if !errors.Is(err, domain.ErrNoCurrentProject) {
		t.Errorf("expected ErrNoCurrentProject, got %v", err)
	}

	c.projects.SetCurrent(c.project)
	task, err := c.registry.CreateTask(context.Background(), domain.TaskPatch{Title: strPtr("x")})
	if err != nil {
		t.Fatalf("CreateTask() error = %v", err)
	}
	if task.Title != "x" {
		t.Errorf("title = %q", task.Title)
	}
	if _, ok := c.registry.Task(task.ID); !ok {
		t.Error("created task missing from registry")
	}
}

func TestTaskRegistry_SaveTaskIsOptimistic(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	c.projects.SetCurrent(c.project)
	c.tasks.Put("p1", taskWithID("t1", "old"))
	task, err := c.registry.LoadTask(ctx, "t1", false)
	if err != nil {
		t.Fatalf("LoadTask() error = %v", err)
	}

	var during string
	c.tasks.UpdateTaskFn = func(id string, patch domain.TaskPatch) (*domain.Task, error) {
		local, _ := c.registry.Task(id)
		during = local.Title
		return nil, errors.New("offline")
	}

	if _, err := c.registry.SaveTask(ctx, task, domain.TaskPatch{Title: strPtr("new")}); err == nil {
		t.Fatal("expected the failed save to return an error")
	}
	if during != "new" {
		t.Errorf("local copy should change before the request, saw %q", during)
	}
	if local, _ := c.registry.Task("t1"); local.Title != "new" {
		t.Errorf("failed save should keep the optimistic copy, got %q", local.Title)
	}
}

func TestTaskRegistry_SaveTaskNotifiesOtherSessions(t *testing.T) {
	b := newBackend()
	alice := newClient(t, b, "alice")
	bob := newClient(t, b, "bob")
	ctx := context.Background()
	alice.projects.SetCurrent(alice.project)
	b.tasks.Put("p1", taskWithID("t1", "draft"))

	for _, c := range []*client{alice, bob} {
		if _, err := c.registry.LoadTasks(ctx, "p1"); err != nil {
			t.Fatalf("LoadTasks() error = %v", err)
		}
	}

	var changed []string
	bob.registry.OnChange(func(task *domain.Task) { changed = append(changed, task.Title) })

	task, _ := alice.registry.Task("t1")
	if _, err := alice.registry.SaveTask(ctx, task, domain.TaskPatch{Title: strPtr("final")}); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}

	if got, _ := bob.registry.Task("t1"); got.Title != "final" {
		t.Errorf("bob sees %q", got.Title)
	}
	if diff := cmp.Diff([]string{"final"}, changed); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestTaskRegistry_TopicDeliveriesRunOnExecutor(t *testing.T) {
	b := newBackend()
	alice := newClient(t, b, "alice")
	bob := newClient(t, b, "bob")
	ctx := context.Background()
	alice.projects.SetCurrent(alice.project)
	b.tasks.Put("p1", taskWithID("t1", "draft"))

	q := &queueExec{}
	bob.registry.exec = q
	for _, c := range []*client{alice, bob} {
		if _, err := c.registry.LoadTasks(ctx, "p1"); err != nil {
			t.Fatalf("LoadTasks() error = %v", err)
		}
	}

	task, _ := alice.registry.Task("t1")
	if _, err := alice.registry.SaveTask(ctx, task, domain.TaskPatch{Title: strPtr("final")}); err != nil {
		t.Fatalf("SaveTask() error = %v", err)
	}
	if got, _ := bob.registry.Task("t1"); got.Title != "draft" {
		t.Errorf("delivery ran before the executor did: bob sees %q", got.Title)
	}

	q.flush()
	if got, _ := bob.registry.Task("t1"); got.Title != "final" {
		t.Errorf("bob sees %q after the executor ran", got.Title)
	}
}

func TestTaskRegistry_ToggleComplete(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	task := taskWithID("t1", "write report")
	task.State = strPtr("started")
	c.tasks.Put("p1", task)

	done, err := c.registry.ToggleComplete(ctx, task)
	if err != nil {
		t.Fatalf("ToggleComplete() error = %v", err)
	}
	if !done.IsCompleted() || !done.CompletedAt.Equal(testStart) {
		t.Errorf("completed at %v, want %v", done.CompletedAt, testStart)
	}
	if done.InProgress() {
		t.Error("completing should clear the in-progress marker")
	}

	undone, err := c.registry.ToggleComplete(ctx, done)
	if err != nil {
		t.Fatalf("ToggleComplete() error = %v", err)
	}
	if undone.IsCompleted() {
		t.Error("second toggle should reopen the task")
	}
}

func TestTaskRegistry_ToggleArchived(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	task := taskWithID("t1", "old idea")
	c.tasks.Put("p1", task)

	archived, err := c.registry.ToggleArchived(ctx, task)
	if err != nil {
		t.Fatalf("ToggleArchived() error = %v", err)
	}
	if !archived.IsArchived() {
		t.Error("expected archived task")
	}

	restored, err := c.registry.ToggleArchived(ctx, archived)
	if err != nil {
		t.Fatalf("ToggleArchived() error = %v", err)
	}
	if restored.IsArchived() {
		t.Error("expected unarchived task")
	}
}

func TestTaskRegistry_DeleteTask(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	c.tasks.Put("p1", taskWithID("t1", "one"))
	c.tasks.Put("p1", taskWithID("t2", "two"))
	if _, err := c.registry.LoadTasks(ctx, "p1"); err != nil {
		t.Fatalf("LoadTasks() error = %v", err)
	}

	var events []string
	c.registry.OnDeleted(func(task *domain.Task) {
		events = append(events, "deleted:"+task.ID)
	})
	c.registry.OnListChange(func(l []*domain.Task) {
		events = append(events, "list")
	})
	c.tasks.UpdateTaskFn = func(id string, patch domain.TaskPatch) (*domain.Task, error) {
		events = append(events, "save")
		return nil, errors.New("offline")
	}

	task, _ := c.registry.Task("t1")
	if _, err := c.registry.DeleteTask(ctx, task); err == nil {
		t.Fatal("expected the failed save to return an error")
	}

	if diff := cmp.Diff([]string{"deleted:t1", "list", "save"}, events); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
	tasks := c.registry.Tasks()
	if len(tasks) != 1 || tasks[0].ID != "t2" {
		t.Errorf("deleted task should leave the list whatever the save outcome, got %v", tasks)
	}
}

func TestTaskRegistry_UndeleteTask(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	task := taskWithID("t1", "back")
	task.DeletedAt = timePtr(testStart.Add(-time.Hour))
	c.tasks.Put("p1", task)

	restored, err := c.registry.UndeleteTask(ctx, task)
	if err != nil {
		t.Fatalf("UndeleteTask() error = %v", err)
	}
	if restored.IsDeleted() {
		t.Error("expected undeleted task")
	}
}
