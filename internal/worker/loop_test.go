package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestLoop(t *testing.T) *Loop {
	t.Helper()
	l := NewLoop(LoopConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	l.Start()
	t.Cleanup(l.Stop)
	return l
}

func TestLoop_RunsInSubmissionOrder(t *testing.T) {
	l := newTestLoop(t)

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		l.Submit(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	if err := l.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 50 {
		t.Fatalf("expected 50 tasks to run, got %d", len(got))
	}
	for i, v := range got {
		if v != i {
			t.Fatalf("task %d ran at position %d", v, i)
		}
	}
}

func TestLoop_NeverRunsTwoTasksAtOnce(t *testing.T) {
	l := newTestLoop(t)

	var mu sync.Mutex
	active, peak := 0, 0
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Submit(func() {
				mu.Lock()
				active++
				peak = max(peak, active)
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	if err := l.Do(context.Background(), func() error { return nil }); err != nil {
		t.Fatalf("Do failed: %v", err)
	}

	if peak != 1 {
		t.Errorf("expected at most one task at a time, saw %d", peak)
	}
}

func TestLoop_DoReturnsError(t *testing.T) {
	l := newTestLoop(t)
	want := errors.New("boom")

	if err := l.Do(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Errorf("Do() = %v, want %v", err, want)
	}
}

func TestLoop_SurvivesPanics(t *testing.T) {
	l := newTestLoop(t)

	err := l.Do(context.Background(), func() error { panic("bad task") })
	if err == nil {
		t.Fatal("expected an error from a panicking task")
	}

	l.Submit(func() { panic("bad submit") })
	ran := false
	if err := l.Do(context.Background(), func() error { ran = true; return nil }); err != nil {
		t.Fatalf("Do after panic failed: %v", err)
	}
	if !ran {
		t.Error("loop stopped running tasks after a panic")
	}
}

func TestLoop_DoHonorsContext(t *testing.T) {
	l := newTestLoop(t)

	release := make(chan struct{})
	l.Submit(func() { <-release })
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Do(ctx, func() error { return nil }); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Do() = %v, want DeadlineExceeded", err)
	}
}

func TestLoop_StopDrainsThenRejects(t *testing.T) {
	l := NewLoop(LoopConfig{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	l.Start()

	ran := 0
	for i := 0; i < 3; i++ {
		l.Submit(func() { ran++ })
	}
	l.Stop()
	if ran != 3 {
		t.Errorf("expected queued tasks to drain, %d of 3 ran", ran)
	}

	if err := l.Do(context.Background(), func() error { return nil }); !errors.Is(err, ErrStopped) {
		t.Errorf("Do after Stop = %v, want ErrStopped", err)
	}
	l.Submit(func() { ran++ })
	l.Stop()
	if ran != 3 {
		t.Error("task submitted after Stop ran")
	}
}
