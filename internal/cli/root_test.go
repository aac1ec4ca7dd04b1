package cli

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listnote/listnote-core/internal/adapters/driven/memory"
	"github.com/listnote/listnote-core/internal/adapters/driven/sqlite"
	"github.com/listnote/listnote-core/internal/clock"
	"github.com/listnote/listnote-core/internal/config"
	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven/mocks"
	"github.com/listnote/listnote-core/internal/runtime"
)

var testNow = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

// backend is shared by every command run of one test, the way a server
// outlives the processes that talk to it
type backend struct {
	files *mocks.MockFileStore
	tasks *mocks.MockTaskStore
	local *sqlite.LocalStore
	hub   *memory.Hub

	connects int
	project  string
}

func newBackend(t *testing.T) *backend {
	t.Helper()
	t.Setenv("LISTNOTE_CONFIG", "")
	t.Setenv("LISTNOTE_STORAGE", "api")
	t.Setenv("LISTNOTE_API_URL", "http://listnote.test")
	t.Setenv("LISTNOTE_PROJECT_ID", "p1")
	t.Setenv("LISTNOTE_LOCAL_PATH", t.TempDir()+"/local.sqlite")

	local, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { local.Close() })

	return &backend{
		files: mocks.NewMockFileStore(),
		tasks: mocks.NewMockTaskStore(),
		local: local,
		hub:   memory.NewHub(),
	}
}

func (b *backend) connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*runtime.App, error) {
	b.connects++
	b.project = cfg.Project.ID
	return runtime.New(runtime.Options{
		Backends: &runtime.Backends{
			Files:    b.files,
			Tasks:    b.tasks,
			UserData: mocks.NewMockUserDataStore(),
			Local:    b.local,
			Topics:   b.hub,
			Collab:   b.hub,
		},
		Self:   domain.Peer{ID: cfg.User.ID, Name: cfg.User.Name},
		Clock:  clock.NewFake(testNow),
		Logger: logger,
	})
}

func (b *backend) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, logs bytes.Buffer
	cmd := NewRootCmd(Options{Connect: b.connect, Stderr: &logs})
	cmd.SetOut(&out)
	cmd.SetErr(&logs)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := NewRootCmd(Options{})
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"journal", "tasks", "add", "complete", "watch"} {
		assert.Contains(t, names, want)
	}
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))
	assert.NotNil(t, cmd.PersistentFlags().Lookup("project"))
}

func TestJournalCmd_InsertsOpenTasksOnce(t *testing.T) {
	b := newBackend(t)
	done := testNow.Add(-time.Hour)
	b.tasks.Put("p1", &domain.Task{ID: "open", Title: "buy milk", Doc: "p1/older"})
	b.tasks.Put("p1", &domain.Task{ID: "done", Title: "call mom", Doc: "p1/older", CompletedAt: &done})

	out, err := b.run(t, "journal")
	require.NoError(t, err)
	assert.Contains(t, out, "inserted 1 open task(s)")
	assert.Contains(t, out, "buy milk")
	assert.NotContains(t, out, "call mom")
	assert.Equal(t, 1, b.files.WriteCount())

	out, err = b.run(t, "journal")
	require.NoError(t, err)
	assert.Contains(t, out, "inserted 0 open task(s)")
	assert.Contains(t, out, "buy milk")
	assert.Equal(t, 2, b.connects)
}

func TestTasksCmd(t *testing.T) {
	b := newBackend(t)
	due := testNow.Add(48 * time.Hour)
	gone := testNow.Add(-time.Hour)
	b.tasks.Put("p1", &domain.Task{ID: "a", Title: "write report", DueAt: &due, Priority: 2})
	b.tasks.Put("p1", &domain.Task{ID: "b", Title: "old idea", DeletedAt: &gone})

	out, err := b.run(t, "tasks")
	require.NoError(t, err)
	assert.Equal(t, "[ ]  write report  due Mar 7  !!  #a\n", out)

	out, err = b.run(t, "tasks", "--all")
	require.NoError(t, err)
	assert.Contains(t, out, "DELETED  old idea  #b")
}

func TestTasksCmd_Empty(t *testing.T) {
	b := newBackend(t)
	out, err := b.run(t, "tasks")
	require.NoError(t, err)
	assert.Equal(t, "no tasks\n", out)
}

func TestAddAndCompleteCmd(t *testing.T) {
	b := newBackend(t)

	out, err := b.run(t, "add", "water", "plants", "--priority", "1", "--due", "2024-03-04")
	require.NoError(t, err)
	assert.Equal(t, "[ ]  water plants  due Mar 4 (overdue)  !  #task-1\n", out)

	out, err = b.run(t, "complete", "task-1")
	require.NoError(t, err)
	assert.Equal(t, "[x]  water plants  due Mar 4  !  #task-1\n", out)

	task, err := b.tasks.GetTask(context.Background(), "task-1")
	require.NoError(t, err)
	assert.True(t, task.IsCompleted())
}

func TestAddCmd_InvalidInput(t *testing.T) {
	b := newBackend(t)

	_, err := b.run(t, "add", "x", "--priority", "9")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = b.run(t, "add", "x", "--due", "tomorrow")
	assert.ErrorContains(t, err, "invalid --due")
	assert.Zero(t, b.connects)
}

func TestProjectFlagOverridesConfig(t *testing.T) {
	b := newBackend(t)
	_, err := b.run(t, "tasks", "--project", "p2")
	require.NoError(t, err)
	assert.Equal(t, "p2", b.project)
}

func TestOpen_Errors(t *testing.T) {
	b := newBackend(t)

	t.Setenv("LISTNOTE_PROJECT_ID", "")
	_, err := b.run(t, "tasks")
	assert.ErrorContains(t, err, "no project configured")

	t.Setenv("LISTNOTE_PROJECT_ID", "p1")
	t.Setenv("LISTNOTE_STORAGE", "carrier-pigeon")
	_, err = b.run(t, "tasks")
	assert.ErrorContains(t, err, "invalid config")

	t.Setenv("LISTNOTE_STORAGE", "api")
	b.tasks.ListTasksFn = func(string) ([]*domain.Task, error) {
		return nil, errors.New("backend down")
	}
	_, err = b.run(t, "tasks")
	assert.ErrorContains(t, err, "backend down")
}

func TestCompleteCmd_UnknownTask(t *testing.T) {
	b := newBackend(t)
	_, err := b.run(t, "complete", "missing")
	assert.Error(t, err)
}

func TestCompleteCmd_DeletedTask(t *testing.T) {
	b := newBackend(t)
	gone := testNow.Add(-time.Hour)
	b.tasks.Put("p1", &domain.Task{ID: "b", Title: "old idea", DeletedAt: &gone})

	_, err := b.run(t, "complete", "b")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Zero(t, b.tasks.UpdateCount())
}
