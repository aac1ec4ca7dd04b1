package services

import (
	"testing"

	"github.com/listnote/listnote-core/internal/core/domain"
)

func TestEmitter_OrderAndUnsubscribe(t *testing.T) {
	var e Emitter[int]
	var got []string

	e.Subscribe(func(v int) { got = append(got, "a") })
	off := e.Subscribe(func(v int) { got = append(got, "b") })
	e.Subscribe(func(v int) { got = append(got, "c") })

	e.Emit(1)
	off()
	e.Emit(2)

	want := []string{"a", "b", "c", "a", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
	if e.Len() != 2 {
		t.Errorf("Len() = %d", e.Len())
	}
}

func TestEmitter_ReentrantCallbacks(t *testing.T) {
	var e Emitter[int]
	var seen []int

	var off func()
	off = e.Subscribe(func(v int) {
		seen = append(seen, v)
		if v < 3 {
			e.Emit(v + 1)
		}
		off()
	})

	e.Emit(1)
	if len(seen) != 3 {
		t.Errorf("seen = %v", seen)
	}
	if e.Len() != 0 {
		t.Errorf("subscriber should have removed itself")
	}
}

func TestErrorSlot(t *testing.T) {
	s := NewErrorSlot()
	var changes []string
	s.OnChange(func(m string) { changes = append(changes, m) })

	s.Set(&domain.APIError{Status: 400, Message: "Bad", Fields: map[string]any{"name": "empty", "resend": true}})
	if s.Message() != "Bad: name empty" {
		t.Errorf("Message() = %q", s.Message())
	}
	s.SetMessage("Bad: name empty")
	s.Clear()
	s.Set(nil)

	if len(changes) != 2 || changes[1] != "" {
		t.Errorf("changes = %q", changes)
	}
}

func TestProjectContext(t *testing.T) {
	p := NewProjectContext()
	var switches []string
	p.OnChange(func(proj *domain.Project) {
		if proj == nil {
			switches = append(switches, "<nil>")
			return
		}
		switches = append(switches, proj.ID)
	})

	if p.Current() != nil || p.CurrentID() != "" {
		t.Fatal("expected no current project")
	}
	p.SetCurrent(&domain.Project{ID: "p1"})
	p.SetCurrent(&domain.Project{ID: "p1", Name: "renamed"})
	p.SetCurrent(&domain.Project{ID: "p2"})
	p.SetCurrent(nil)

	want := []string{"p1", "p2", "<nil>"}
	if len(switches) != len(want) {
		t.Fatalf("switches = %v, want %v", switches, want)
	}
	for i := range want {
		if switches[i] != want[i] {
			t.Errorf("switches = %v, want %v", switches, want)
		}
	}

	p.SetCurrent(&domain.Project{ID: "p3"})
	c := p.Current()
	c.ID = "mutated"
	if p.CurrentID() != "p3" {
		t.Error("Current() should return a copy")
	}
}
