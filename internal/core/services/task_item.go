package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/listnote/listnote-core/internal/clock"
	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
	"github.com/listnote/listnote-core/internal/editor"
)

// TaskNodeName is the editor node type of an inline task
const TaskNodeName = "task"

// TasksInsertedPrefix prefixes the per-project marker naming the journal
// document that already received the open tasks
const TasksInsertedPrefix = "dti:"

var (
	taskShorthand = regexp.MustCompile(`^\s?\[\]\s(.*)$`)
	taskPrefix    = regexp.MustCompile(`^\s?\[\]\s*`)
)

// Verify interface compliance
var _ Extension = (*TaskItem)(nil)

// TaskItem keeps inline task nodes and task records consistent.
// It turns typed shorthand into task nodes, creates or renames tasks when a
// node loses focus, offers to delete tasks whose nodes were erased, strips
// nodes of tasks deleted elsewhere and retitles nodes of renamed tasks.
type TaskItem struct {
	registry *TaskRegistry
	binding  *Binding
	files    *FileService
	prompts  *PromptQueue
	local    driven.LocalStore
	errors   *ErrorSlot
	clock    clock.Clock
	logger   *slog.Logger

	mu       sync.Mutex
	deleting bool
}

// TaskItemConfig holds dependencies for TaskItem.
type TaskItemConfig struct {
	Registry *TaskRegistry
	Binding  *Binding
	Files    *FileService
	Prompts  *PromptQueue
	Local    driven.LocalStore
	Errors   *ErrorSlot
	Clock    clock.Clock
	Logger   *slog.Logger
}

// NewTaskItem creates the task node lifecycle and registers it with the binding
func NewTaskItem(cfg TaskItemConfig) *TaskItem {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	errSlot := cfg.Errors
	if errSlot == nil {
		errSlot = NewErrorSlot()
	}
	prompts := cfg.Prompts
	if prompts == nil {
		prompts = NewPromptQueue(PromptQueueConfig{Clock: c, Logger: logger})
	}

	t := &TaskItem{
		registry: cfg.Registry,
		binding:  cfg.Binding,
		files:    cfg.Files,
		prompts:  prompts,
		local:    cfg.Local,
		errors:   errSlot,
		clock:    c,
		logger:   logger,
	}
	t.binding.Use(t)
	t.binding.OnBound(func(*Session) { t.setDeleting(false) })
	t.registry.OnDeleted(t.removeDeleted)
	t.registry.OnChange(t.refreshTitle)
	return t
}

// NodeSpecs declares the task node. focus only lives in the editor.
func (t *TaskItem) NodeSpecs() []editor.NodeSpec {
	return []editor.NodeSpec{{
		Name:      TaskNodeName,
		TextBlock: true,
		Attrs: []editor.AttrSpec{
			{Name: "id"},
			{Name: "title"},
			{Name: "focus", Default: false, Transient: true},
		},
	}}
}

// InputRules turns "[] text" at the start of a line into a task node
func (t *TaskItem) InputRules() []editor.InputRule {
	return []editor.InputRule{{
		Find:    taskShorthand,
		Types:   []string{domain.NodeParagraph, domain.NodeHeading},
		Handler: t.handleShorthand,
	}}
}

func (t *TaskItem) handleShorthand(tr *editor.Transaction, state editor.State, pos int, match []string) {
	block := state.Doc[pos]
	title := taskPrefix.ReplaceAllString(block.Text, "")
	node := editor.Block{
		Type:  TaskNodeName,
		Attrs: map[string]any{"title": title, "focus": true},
		Text:  title,
	}

	last := pos == len(state.Doc)-1
	tr.Replace(pos, pos+1, node)
	if last {
		// losing the trailing paragraph is harmless
		_ = tr.Step(editor.ReplaceStep{
			From:   pos + 1,
			To:     pos + 1,
			Blocks: []editor.Block{{Type: domain.NodeParagraph}},
		})
	}
}

// Plugins returns the deletion guard
func (t *TaskItem) Plugins() []editor.Plugin {
	return []editor.Plugin{{
		Key:               "taskDeleteHandler",
		HandleKeyDown:     t.handleKeyDown,
		FilterTransaction: t.filterTransaction,
	}}
}

// handleKeyDown arms the guard for the edit a delete key produces. Any
// other key disarms it, so a delete key that changed nothing does not
// linger until some later edit.
func (t *TaskItem) handleKeyDown(_ *editor.Editor, key editor.Key) bool {
	t.setDeleting(key == editor.KeyBackspace || key == editor.KeyDelete)
	return false
}

func (t *TaskItem) setDeleting(v bool) {
	t.mu.Lock()
	t.deleting = v
	t.mu.Unlock()
}

// filterTransaction inspects the first transaction after a delete key.
// It never blocks the edit; erased task nodes only trigger a prompt.
func (t *TaskItem) filterTransaction(tr *editor.Transaction, _ editor.State) bool {
	if editor.IsChangeOrigin(tr) || tr.Meta(metaSystemEdit) != nil {
		return true
	}
	t.mu.Lock()
	armed := t.deleting
	t.deleting = false
	t.mu.Unlock()
	if !armed {
		return true
	}

	var ids []string
	seen := make(map[string]bool)
	for _, b := range tr.RemovedBlocks() {
		if b.Type != TaskNodeName {
			continue
		}
		id := b.Attr("id")
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	if len(ids) > 0 {
		t.promptDeletion(ids)
	}
	return true
}

func pluralize(noun string, n int) string {
	if n == 1 {
		return noun
	}
	return noun + "s"
}

func (t *TaskItem) promptDeletion(ids []string) Prompt {
	n := len(ids)
	action := "Delete them?"
	if n == 1 {
		action = "Delete it?"
	}
	return t.prompts.Show(PromptRequest{
		Message: fmt.Sprintf("%d %s removed from page.", n, pluralize("task", n)),
		Action:  action,
		Success: pluralize("Task", n) + " deleted",
		OnConfirm: func(ctx context.Context) error {
			var errs []error
			for _, id := range ids {
				task, err := t.registry.LoadTask(ctx, id, false)
				if err != nil {
					errs = append(errs, err)
					continue
				}
				if _, err := t.registry.DeleteTask(ctx, task); err != nil {
					errs = append(errs, err)
				}
			}
			if err := errors.Join(errs...); err != nil {
				t.errors.Set(err)
				return err
			}
			return nil
		},
	})
}

// removeDeleted strips nodes of a deleted task from the bound document
func (t *TaskItem) removeDeleted(task *domain.Task) {
	s := t.binding.Current()
	if s == nil {
		return
	}
	n, err := deleteBlocks(s, func(b editor.Block) bool {
		return b.Type == TaskNodeName && b.Attr("id") == task.ID
	})
	if err != nil {
		t.logger.Warn("failed to remove deleted task from document", "task_id", task.ID, "error", err)
		return
	}
	if n > 0 {
		t.logger.Debug("removed deleted task from document", "task_id", task.ID, "nodes", n)
	}
}

// refreshTitle shows a task's new title in its nodes. A node whose text the
// user changed since it last matched its task is left alone, and so is a
// focused node.
func (t *TaskItem) refreshTitle(task *domain.Task) {
	s := t.binding.Current()
	if s == nil || s.Closed() || task.Title == "" {
		return
	}
	ed := s.Editor()
	tr := ed.Tr()
	for i, b := range tr.Doc() {
		if b.Type != TaskNodeName || b.Attr("id") != task.ID || b.Flag("focus") {
			continue
		}
		switch {
		case b.Text == task.Title:
			if b.Attr("title") != task.Title {
				tr.SetAttrs(i, map[string]any{"title": task.Title})
			}
		case b.Text == "" || b.Text == b.Attr("title"):
			tr.ReplaceText(i, 0, len([]rune(b.Text)), task.Title).
				SetAttrs(i, map[string]any{"title": task.Title})
		}
	}
	if !tr.DocChanged() {
		return
	}
	if err := ed.Dispatch(tr.SetOrigin(editor.OriginSync)); err != nil {
		t.logger.Warn("failed to refresh task title", "task_id", task.ID, "error", err)
	}
}

// FocusOut is called when the task node at pos loses focus. A node without
// an id and with text creates a task; a node whose text differs from its
// task renames it. Failures land in the error slot.
func (t *TaskItem) FocusOut(ctx context.Context, s *Session, pos int) error {
	if s == nil || s.Closed() {
		return domain.ErrNotBound
	}
	doc := s.Editor().State().Doc
	if pos < 0 || pos >= len(doc) || doc[pos].Type != TaskNodeName {
		return fmt.Errorf("%w: no task node at %d", domain.ErrInvalidInput, pos)
	}
	node := doc[pos]
	title := strings.TrimSpace(node.Text)
	id := node.Attr("id")

	switch {
	case id == "" && title != "":
		path := s.Ref().Path()
		task, err := t.registry.CreateTask(ctx, domain.TaskPatch{Title: &title, Doc: &path})
		if err != nil {
			t.errors.Set(err)
			return err
		}
		return t.setNodeID(s, pos, node, task.ID)

	case id != "":
		task, ok := t.registry.Task(id)
		if !ok || task.Title == title {
			return t.clearFocus(s, pos, node)
		}
		if _, err := t.registry.SaveTask(ctx, task, domain.TaskPatch{Title: &title}); err != nil {
			t.errors.Set(err)
			return err
		}
		return nil
	}
	return t.clearFocus(s, pos, node)
}

// setNodeID stamps the created task id on the node in place. The node may
// have moved while the task was being created.
func (t *TaskItem) setNodeID(s *Session, pos int, node editor.Block, taskID string) error {
	if s.Closed() {
		return nil
	}
	ed := s.Editor()
	doc := ed.State().Doc
	if !sameTaskNode(doc, pos, node) {
		pos = -1
		for i := range doc {
			if sameTaskNode(doc, i, node) {
				pos = i
				break
			}
		}
		if pos < 0 {
			t.logger.Warn("task node vanished before its id was set", "task_id", taskID)
			return nil
		}
	}
	attrs := map[string]any{"id": taskID, "title": strings.TrimSpace(node.Text), "focus": nil}
	return ed.Dispatch(ed.Tr().SetAttrs(pos, attrs))
}

func sameTaskNode(doc []editor.Block, pos int, node editor.Block) bool {
	if pos < 0 || pos >= len(doc) {
		return false
	}
	b := doc[pos]
	return b.Type == TaskNodeName && b.Attr("id") == "" && b.Text == node.Text
}

func (t *TaskItem) clearFocus(s *Session, pos int, node editor.Block) error {
	if !node.Flag("focus") {
		return nil
	}
	ed := s.Editor()
	return ed.Dispatch(ed.Tr().SetAttrs(pos, map[string]any{"focus": nil}))
}

// taskNodes returns the task ids referenced by the document
func taskNodes(s *Session) map[string]bool {
	ids := make(map[string]bool)
	s.Editor().Descendants(func(b editor.Block, _ int) bool {
		if b.Type == TaskNodeName {
			ids[b.Attr("id")] = true
		}
		return true
	})
	return ids
}

// AvailableTasks lists open tasks from the display list that the document
// does not reference yet
func (t *TaskItem) AvailableTasks(s *Session) []*domain.Task {
	if s == nil {
		return nil
	}
	inDoc := taskNodes(s)
	var out []*domain.Task
	for _, task := range t.registry.Tasks() {
		if task.IsOpen() && !inDoc[task.ID] {
			out = append(out, task)
		}
	}
	return out
}

// InsertTasks inserts nodes for the given tasks after the cursor, followed
// by an empty paragraph, in one edit
func (t *TaskItem) InsertTasks(s *Session, ids []string) error {
	if s == nil || s.Closed() {
		return domain.ErrNotBound
	}
	if len(ids) == 0 {
		return nil
	}
	ed := s.Editor()
	tr := ed.Tr()
	at := ed.State().Selection + 1
	if at > len(tr.Doc()) {
		at = len(tr.Doc())
	}
	tr.Insert(at, t.taskBlocks(ids)...)
	return ed.Dispatch(tr)
}

// taskBlocks builds nodes showing the current titles of the given tasks,
// followed by an empty paragraph
func (t *TaskItem) taskBlocks(ids []string) []editor.Block {
	blocks := make([]editor.Block, 0, len(ids)+1)
	for _, id := range ids {
		b := editor.Block{Type: TaskNodeName, Attrs: map[string]any{"id": id}}
		if task, ok := t.registry.Task(id); ok {
			b.Text = task.Title
			b.Attrs["title"] = task.Title
		}
		blocks = append(blocks, b)
	}
	return append(blocks, editor.Block{Type: domain.NodeParagraph})
}

// IsTodayJournal reports whether the session shows today's journal document
func (t *TaskItem) IsTodayJournal(s *Session) bool {
	if s == nil || t.files == nil {
		return false
	}
	f, ok := t.files.File(s.Ref().DocumentID)
	return ok && f.Name == DailyFileTitle(t.clock.Now())
}

// OpenTasksInserted reports whether today's journal already received the
// open tasks. Other documents never carry the marker.
func (t *TaskItem) OpenTasksInserted(ctx context.Context, s *Session) bool {
	if !t.IsTodayJournal(s) {
		return false
	}
	docID, err := t.local.Get(ctx, TasksInsertedPrefix+s.Ref().ProjectID)
	return err == nil && docID == s.Ref().DocumentID
}

// InsertOpenTasks puts every open task created outside this document at the
// top of today's journal, once per journal document. Returns how many
// tasks were inserted.
func (t *TaskItem) InsertOpenTasks(ctx context.Context, s *Session) (int, error) {
	if s == nil || s.Closed() {
		return 0, domain.ErrNotBound
	}
	if !t.IsTodayJournal(s) || t.OpenTasksInserted(ctx, s) {
		return 0, nil
	}

	ref := s.Ref()
	tasks, err := t.registry.LoadTasks(ctx, ref.ProjectID)
	if err != nil {
		t.errors.Set(err)
		return 0, err
	}
	var ids []string
	for _, task := range tasks {
		if task.Doc != ref.Path() && task.IsOpen() {
			ids = append(ids, task.ID)
		}
	}

	if len(ids) > 0 {
		ed := s.Editor()
		if err := ed.Dispatch(ed.Tr().Insert(0, t.taskBlocks(ids)...)); err != nil {
			return 0, err
		}
	}
	if err := t.local.Set(ctx, TasksInsertedPrefix+ref.ProjectID, ref.DocumentID); err != nil {
		t.logger.Warn("failed to mark open tasks inserted", "doc", ref.Room(), "error", err)
	}
	t.logger.Info("inserted open tasks", "doc", ref.Room(), "count", len(ids))
	return len(ids), nil
}

// ToggleComplete checks or unchecks the task of a node. Deleted tasks show
// no checkbox and cannot be toggled.
func (t *TaskItem) ToggleComplete(ctx context.Context, taskID string) error {
	task, ok := t.registry.Task(taskID)
	if !ok {
		return domain.ErrNotFound
	}
	if !task.IsActionable() {
		return fmt.Errorf("%w: task %s is deleted", domain.ErrInvalidInput, taskID)
	}
	if _, err := t.registry.ToggleComplete(ctx, task); err != nil {
		t.errors.Set(err)
		return err
	}
	return nil
}

// TaskRowStatus is what the row shows in place of a checkbox
type TaskRowStatus int

const (
	RowCheckbox TaskRowStatus = iota
	RowDeleted
	RowArchived
)

// Label returns the text shown instead of the checkbox
func (s TaskRowStatus) Label() string {
	switch s {
	case RowDeleted:
		return "DELETED"
	case RowArchived:
		return "ARCHIVED"
	default:
		return ""
	}
}

// TaskRowView is everything a renderer needs to draw one task node
type TaskRowView struct {
	Pos   int
	ID    string
	Title string
	Focus bool
	// Known is false while the node has no task or the task is not loaded
	Known bool
	// Actionable is false for tasks that can no longer be checked off
	Actionable bool

	Status  TaskRowStatus
	Checked bool

	InProgress bool

	DueLabel string
	Overdue  bool

	Priority      int
	PriorityLabel string
}

// RowView describes the task node at pos
func (t *TaskItem) RowView(s *Session, pos int) (TaskRowView, error) {
	if s == nil {
		return TaskRowView{}, domain.ErrNotBound
	}
	doc := s.Editor().State().Doc
	if pos < 0 || pos >= len(doc) || doc[pos].Type != TaskNodeName {
		return TaskRowView{}, fmt.Errorf("%w: no task node at %d", domain.ErrInvalidInput, pos)
	}
	node := doc[pos]
	view := TaskRowView{
		Pos:   pos,
		ID:    node.Attr("id"),
		Title: node.Text,
		Focus: node.Flag("focus"),
	}
	if view.Title == "" {
		view.Title = node.Attr("title")
	}
	task, ok := t.registry.Task(view.ID)
	if view.ID == "" || !ok {
		return view, nil
	}

	row := TaskRow(task, t.clock.Now())
	row.Pos, row.ID, row.Focus = view.Pos, view.ID, view.Focus
	return row, nil
}

// TaskRow describes a loaded task the way its row is drawn
func TaskRow(task *domain.Task, now time.Time) TaskRowView {
	view := TaskRowView{
		ID:    task.ID,
		Title:      task.Title,
		Known:      true,
		Actionable: task.IsActionable(),
	}
	switch {
	case task.IsDeleted():
		view.Status = RowDeleted
	case task.IsArchived():
		view.Status = RowArchived
	}
	view.Checked = task.IsCompleted()
	view.InProgress = task.InProgress()
	if task.DueAt != nil {
		view.DueLabel = dueLabel(*task.DueAt, now)
		view.Overdue = !task.DueAt.After(now)
	}
	view.Priority = task.Priority
	view.PriorityLabel = strings.Repeat("!", task.Priority)
	return view
}

func dueLabel(due, now time.Time) string {
	if due.Year() == now.Year() {
		return due.Format("Jan 2")
	}
	return due.Format("Jan 2, 2006")
}
