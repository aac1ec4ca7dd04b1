package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// MaxPriority is the highest task priority; 0 means no priority
const MaxPriority = 3

// Task is a checklist item that can be embedded in documents
type Task struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// Doc is the path of the document the task was created in.
	// Set at creation and never changed afterwards.
	Doc string `json:"doc,omitempty"`

	// Soft-state flags, independent of each other
	CompletedAt *time.Time `json:"completed_at"`
	ArchivedAt  *time.Time `json:"archived_at"`
	DeletedAt   *time.Time `json:"deleted_at"`

	DueAt    *time.Time `json:"due_at"`
	Priority int        `json:"priority"`

	// State is a free-form "in progress" marker
	State *string `json:"state"`
}

// IsDeleted reports whether the task was soft-deleted
func (t *Task) IsDeleted() bool {
	return t.DeletedAt != nil
}

// IsCompleted reports whether the task is checked off
func (t *Task) IsCompleted() bool {
	return t.CompletedAt != nil
}

// IsArchived reports whether the task was archived
func (t *Task) IsArchived() bool {
	return t.ArchivedAt != nil
}

// IsActionable reports whether the task may be shown as something to act on
func (t *Task) IsActionable() bool {
	return !t.IsDeleted()
}

// IsOpen reports whether the task is neither completed, archived nor deleted
func (t *Task) IsOpen() bool {
	return !t.IsCompleted() && !t.IsArchived() && !t.IsDeleted()
}

// InProgress reports whether the task carries an in-progress marker
func (t *Task) InProgress() bool {
	return t.State != nil && *t.State != ""
}

// Clone returns a deep copy of the task
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.ArchivedAt = cloneTime(t.ArchivedAt)
	c.DeletedAt = cloneTime(t.DeletedAt)
	c.DueAt = cloneTime(t.DueAt)
	if t.State != nil {
		s := *t.State
		c.State = &s
	}
	return &c
}

// Apply returns a copy of the task with the patch merged in.
// Doc is only taken from the patch while the task has none.
func (t *Task) Apply(p TaskPatch) *Task {
	c := t.Clone()
	if p.Title != nil {
		c.Title = *p.Title
	}
	if p.Doc != nil && c.Doc == "" {
		c.Doc = *p.Doc
	}
	if p.CompletedAt.Set {
		c.CompletedAt = cloneTime(p.CompletedAt.Value)
	}
	if p.ArchivedAt.Set {
		c.ArchivedAt = cloneTime(p.ArchivedAt.Value)
	}
	if p.DeletedAt.Set {
		c.DeletedAt = cloneTime(p.DeletedAt.Value)
	}
	if p.DueAt.Set {
		c.DueAt = cloneTime(p.DueAt.Value)
	}
	if p.Priority != nil {
		c.Priority = *p.Priority
	}
	if p.State.Set {
		if p.State.Value == nil {
			c.State = nil
		} else {
			s := *p.State.Value
			c.State = &s
		}
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Nullable is an optional patch field that can also be explicitly cleared.
// Set=false leaves the field alone; Set=true with a nil Value clears it.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// Null returns a field update that clears the value
func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// Some returns a field update that sets the value
func Some[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// TaskPatch is a partial set of task attributes
type TaskPatch struct {
	Title       *string
	Doc         *string
	CompletedAt Nullable[time.Time]
	ArchivedAt  Nullable[time.Time]
	DeletedAt   Nullable[time.Time]
	DueAt       Nullable[time.Time]
	Priority    *int
	State       Nullable[string]
}

// Validate checks the patch values
func (p TaskPatch) Validate() error {
	if p.Priority != nil && (*p.Priority < 0 || *p.Priority > MaxPriority) {
		return fmt.Errorf("%w: priority %d out of range 0-%d", ErrInvalidInput, *p.Priority, MaxPriority)
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Doc == nil && !p.CompletedAt.Set && !p.ArchivedAt.Set &&
		!p.DeletedAt.Set && !p.DueAt.Set && p.Priority == nil && !p.State.Set
}

// MarshalJSON encodes only the fields that are set; cleared fields become null
func (p TaskPatch) MarshalJSON() ([]byte, error) {
	m := map[string]any{}
	if p.Title != nil {
		m["title"] = *p.Title
	}
	if p.Doc != nil {
		m["doc"] = *p.Doc
	}
	putNullable(m, "completed_at", p.CompletedAt)
	putNullable(m, "archived_at", p.ArchivedAt)
	putNullable(m, "deleted_at", p.DeletedAt)
	putNullable(m, "due_at", p.DueAt)
	if p.Priority != nil {
		m["priority"] = *p.Priority
	}
	putNullable(m, "state", p.State)
	return json.Marshal(m)
}

func putNullable[T any](m map[string]any, key string, v Nullable[T]) {
	if !v.Set {
		return
	}
	if v.Value == nil {
		m[key] = nil
		return
	}
	m[key] = *v.Value
}

// UnmarshalJSON decodes a patch; absent keys stay unset and null clears
func (p *TaskPatch) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*p = TaskPatch{}
	if v, ok := raw["title"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("title: %w", err)
		}
		p.Title = &s
	}
	if v, ok := raw["doc"]; ok {
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("doc: %w", err)
		}
		p.Doc = &s
	}
	if v, ok := raw["priority"]; ok {
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("priority: %w", err)
		}
		p.Priority = &n
	}

	fields := []struct {
		key string
		dst *Nullable[time.Time]
	}{
		{"completed_at", &p.CompletedAt},
		{"archived_at", &p.ArchivedAt},
		{"deleted_at", &p.DeletedAt},
		{"due_at", &p.DueAt},
	}
	for _, f := range fields {
		if v, ok := raw[f.key]; ok {
			if err := decodeNullable(v, f.dst); err != nil {
				return fmt.Errorf("%s: %w", f.key, err)
			}
		}
	}
	if v, ok := raw["state"]; ok {
		if err := decodeNullable(v, &p.State); err != nil {
			return fmt.Errorf("state: %w", err)
		}
	}
	return nil
}

func decodeNullable[T any](data json.RawMessage, dst *Nullable[T]) error {
	dst.Set = true
	if string(data) == "null" {
		dst.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	dst.Value = &v
	return nil
}
