package debounce

import (
	"testing"
	"time"

	"github.com/listnote/listnote-core/internal/clock"
)

var start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func TestCall_ResetOnNew(t *testing.T) {
	c := clock.NewFake(start)
	d := New(c)

	var calls []string
	d.Call("k", func() { calls = append(calls, "first") }, 5*time.Second, ResetOnNew)
	c.Advance(3 * time.Second)
	d.Call("k", func() { calls = append(calls, "second") }, 5*time.Second, ResetOnNew)

	c.Advance(4 * time.Second)
	if len(calls) != 0 {
		t.Fatalf("fired early: %v", calls)
	}
	c.Advance(time.Second)
	if len(calls) != 1 || calls[0] != "second" {
		t.Errorf("calls = %v, want [second]", calls)
	}
	if d.Pending("k") {
		t.Error("key still pending after firing")
	}
}

func TestCall_IgnoreNew(t *testing.T) {
	c := clock.NewFake(start)
	d := New(c)

	var calls []string
	d.Call("k", func() { calls = append(calls, "first") }, 5*time.Second, IgnoreNew)
	c.Advance(3 * time.Second)
	d.Call("k", func() { calls = append(calls, "second") }, 5*time.Second, IgnoreNew)

	c.Advance(2 * time.Second)
	if len(calls) != 1 || calls[0] != "first" {
		t.Errorf("calls = %v, want [first]", calls)
	}
}

func TestCall_KeysAreIndependent(t *testing.T) {
	c := clock.NewFake(start)
	d := New(c)

	fired := map[string]int{}
	d.Call("a", func() { fired["a"]++ }, time.Second, ResetOnNew)
	d.Call("b", func() { fired["b"]++ }, 2*time.Second, ResetOnNew)

	c.Advance(time.Second)
	if fired["a"] != 1 || fired["b"] != 0 {
		t.Errorf("fired = %v", fired)
	}
	c.Advance(time.Second)
	if fired["b"] != 1 {
		t.Errorf("fired = %v", fired)
	}
}

func TestCancel(t *testing.T) {
	c := clock.NewFake(start)
	d := New(c)

	fired := 0
	d.Call("k", func() { fired++ }, time.Second, ResetOnNew)
	if !d.Cancel("k") {
		t.Error("Cancel() = false for a pending key")
	}
	if d.Cancel("k") {
		t.Error("Cancel() = true for a cancelled key")
	}

	// a new call after cancel must not be confused with the cancelled one
	d.Call("k", func() { fired += 10 }, 2*time.Second, ResetOnNew)
	c.Advance(time.Second)
	if fired != 0 {
		t.Errorf("cancelled call fired")
	}
	c.Advance(time.Second)
	if fired != 10 {
		t.Errorf("fired = %d, want 10", fired)
	}
}

func TestCall_FnMayReschedule(t *testing.T) {
	c := clock.NewFake(start)
	d := New(c)

	runs := 0
	var fn func()
	fn = func() {
		runs++
		if runs < 3 {
			d.Call("k", fn, time.Second, ResetOnNew)
		}
	}
	d.Call("k", fn, time.Second, ResetOnNew)

	c.Advance(10 * time.Second)
	if runs != 3 {
		t.Errorf("runs = %d, want 3", runs)
	}
}
