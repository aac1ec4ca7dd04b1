// Package worker runs a client's work one task at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ErrStopped is returned by Do once the loop was stopped
var ErrStopped = errors.New("worker loop stopped")

// Loop runs submitted functions one at a time, in submission order, on a
// single goroutine. Redis deliveries, timers and user commands all go
// through it so that no two of them touch an editor at the same time.
type Loop struct {
	logger *slog.Logger

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	running bool
	stopped bool
	doneCh  chan struct{}
}

// LoopConfig holds configuration for the loop.
type LoopConfig struct {
	Logger *slog.Logger
}

// NewLoop creates a loop. Nothing runs until Start.
func NewLoop(cfg LoopConfig) *Loop {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{logger: logger}
	l.cond = sync.NewCond(&l.mu)
	return l
}

// Start launches the loop goroutine
func (l *Loop) Start() {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return
	}
	l.running = true
	l.doneCh = make(chan struct{})
	l.mu.Unlock()

	go l.run()
}

func (l *Loop) run() {
	defer close(l.doneCh)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.stopped {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(fn)
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked", "panic", r)
		}
	}()
	fn()
}

// Submit queues fn. It never blocks; after Stop the function is dropped.
func (l *Loop) Submit(fn func()) {
	if !l.enqueue(fn) {
		l.logger.Debug("dropping task submitted after stop")
	}
}

func (l *Loop) enqueue(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return false
	}
	l.queue = append(l.queue, fn)
	l.cond.Signal()
	return true
}

// Do runs fn on the loop and waits for its result. It must not be called
// from a task already running on the loop. When ctx ends first, Do returns
// ctx.Err() and fn still runs later.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	queued := l.enqueue(func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("task panicked: %v", r)
			}
			result <- err
		}()
		err = fn()
	})
	if !queued {
		return ErrStopped
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop drains the queued tasks and waits for the loop to exit
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	running := l.running
	l.cond.Broadcast()
	l.mu.Unlock()

	if running {
		<-l.doneCh
	}
	l.logger.Debug("worker loop stopped")
}
