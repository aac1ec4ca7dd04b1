package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/listnote/listnote-core/internal/clock"
	"github.com/listnote/listnote-core/internal/core/domain"
)

// DefaultPromptDuration is how long a prompt stays answerable
const DefaultPromptDuration = 10 * time.Second

// Prompt is a non-blocking confirmation shown to the user
type Prompt struct {
	ID        int
	Message   string
	Action    string
	ExpiresAt time.Time
}

// PromptRequest describes a prompt to show
type PromptRequest struct {
	Message string
	// Action is the label of the confirm button
	Action string
	// Success is shown as a notice after OnConfirm succeeds; empty shows nothing
	Success   string
	OnConfirm func(ctx context.Context) error
}

// PromptQueue shows prompts that expire on their own.
// Ignoring a prompt has no effect beyond it disappearing.
type PromptQueue struct {
	clock    clock.Clock
	duration time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	nextID int
	active map[int]*activePrompt

	shown     Emitter[Prompt]
	dismissed Emitter[Prompt]
	notices   Emitter[string]
}

type activePrompt struct {
	prompt  Prompt
	request PromptRequest
	timer   clock.Timer
}

// PromptQueueConfig holds dependencies for PromptQueue.
type PromptQueueConfig struct {
	Clock    clock.Clock
	Duration time.Duration
	Logger   *slog.Logger
}

// NewPromptQueue creates a prompt queue
func NewPromptQueue(cfg PromptQueueConfig) *PromptQueue {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := cfg.Clock
	if c == nil {
		c = clock.New()
	}
	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultPromptDuration
	}

	return &PromptQueue{
		clock:    c,
		duration: duration,
		logger:   logger,
		active:   make(map[int]*activePrompt),
	}
}

// Show displays a prompt and returns immediately
func (q *PromptQueue) Show(req PromptRequest) Prompt {
	q.mu.Lock()
	q.nextID++
	p := Prompt{
		ID:        q.nextID,
		Message:   req.Message,
		Action:    req.Action,
		ExpiresAt: q.clock.Now().Add(q.duration),
	}
	ap := &activePrompt{prompt: p, request: req}
	q.active[p.ID] = ap
	ap.timer = q.clock.AfterFunc(q.duration, func() {
		if q.take(p.ID) != nil {
			q.dismissed.Emit(p)
		}
	})
	q.mu.Unlock()

	q.shown.Emit(p)
	return p
}

func (q *PromptQueue) take(id int) *activePrompt {
	q.mu.Lock()
	defer q.mu.Unlock()
	ap, ok := q.active[id]
	if !ok {
		return nil
	}
	delete(q.active, id)
	return ap
}

// Confirm runs the prompt's action. Returns domain.ErrPromptExpired once the
// prompt expired or was already answered.
func (q *PromptQueue) Confirm(ctx context.Context, id int) error {
	ap := q.take(id)
	if ap == nil {
		return domain.ErrPromptExpired
	}
	ap.timer.Stop()
	q.dismissed.Emit(ap.prompt)

	if ap.request.OnConfirm != nil {
		if err := ap.request.OnConfirm(ctx); err != nil {
			q.logger.Warn("prompt action failed", "prompt", ap.prompt.Message, "error", err)
			return err
		}
	}
	if ap.request.Success != "" {
		q.notices.Emit(ap.request.Success)
	}
	return nil
}

// Dismiss closes a prompt without running its action
func (q *PromptQueue) Dismiss(id int) {
	ap := q.take(id)
	if ap == nil {
		return
	}
	ap.timer.Stop()
	q.dismissed.Emit(ap.prompt)
}

// Active returns the visible prompts, oldest first
func (q *PromptQueue) Active() []Prompt {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Prompt, 0, len(q.active))
	for _, ap := range q.active {
		out = append(out, ap.prompt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// OnShow subscribes to new prompts
func (q *PromptQueue) OnShow(fn func(Prompt)) func() {
	return q.shown.Subscribe(fn)
}

// OnDismiss subscribes to prompts leaving the screen, answered or expired
func (q *PromptQueue) OnDismiss(fn func(Prompt)) func() {
	return q.dismissed.Subscribe(fn)
}

// OnNotice subscribes to success notices
func (q *PromptQueue) OnNotice(fn func(string)) func() {
	return q.notices.Subscribe(fn)
}
