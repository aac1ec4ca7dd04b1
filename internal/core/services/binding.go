package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
	"github.com/listnote/listnote-core/internal/editor"
)

// BindingState is the lifecycle state of the document binding
type BindingState int

const (
	Unbound BindingState = iota
	Loading
	Bound
)

func (s BindingState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Bound:
		return "bound"
	default:
		return "unbound"
	}
}

// Extension contributes node types, plugins and input rules to every
// editor the binding creates
type Extension interface {
	NodeSpecs() []editor.NodeSpec
	Plugins() []editor.Plugin
	InputRules() []editor.InputRule
}

// TeardownHook runs before a session is destroyed, while its replica is
// still intact
type TeardownHook func(ctx context.Context, s *Session)

// Binding owns the single live document session. Opening a document tears
// the previous session down completely before the new one is built.
type Binding struct {
	files    driven.FileStore
	replicas driven.ReplicaFactory
	collab   driven.CollabTransport
	self     domain.Peer
	exec     Executor
	errors   *ErrorSlot
	logger   *slog.Logger

	mu         sync.Mutex
	state      BindingState
	gen        uint64
	loading    domain.DocRef
	current    *Session
	extensions []Extension
	teardowns  []TeardownHook

	bound Emitter[*Session]
}

// BindingConfig holds dependencies for Binding.
type BindingConfig struct {
	Files    driven.FileStore
	Replicas driven.ReplicaFactory
	// Collab is optional; without it sessions stay local
	Collab driven.CollabTransport
	// Self is this user's presence in collaboration rooms
	Self domain.Peer
	// Executor runs peer messages; nil runs them on the delivering goroutine
	Executor Executor
	Errors   *ErrorSlot
	Logger   *slog.Logger
}

// NewBinding creates an unbound binding
func NewBinding(cfg BindingConfig) *Binding {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	errSlot := cfg.Errors
	if errSlot == nil {
		errSlot = NewErrorSlot()
	}

	return &Binding{
		files:    cfg.Files,
		replicas: cfg.Replicas,
		collab:   cfg.Collab,
		self:     cfg.Self,
		exec:     cfg.Executor,
		errors:   errSlot,
		logger:   logger,
	}
}

// Use adds an extension to editors created by later Open calls
func (b *Binding) Use(ext Extension) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.extensions = append(b.extensions, ext)
}

// OnTeardown registers a hook that runs first during every teardown
func (b *Binding) OnTeardown(hook TeardownHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.teardowns = append(b.teardowns, hook)
}

// OnBound subscribes to newly bound sessions
func (b *Binding) OnBound(fn func(*Session)) func() {
	return b.bound.Subscribe(fn)
}

// State returns the lifecycle state
func (b *Binding) State() BindingState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Current returns the bound session, or nil
func (b *Binding) Current() *Session {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.current
}

// IsCurrent reports whether s is still the bound session
func (b *Binding) IsCurrent(s *Session) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return s != nil && b.current == s
}

// Open tears down the current session, loads the document and binds it.
// If another Open starts while this one is loading, this one returns
// domain.ErrSuperseded and leaves no session behind.
func (b *Binding) Open(ctx context.Context, ref domain.DocRef) (*Session, error) {
	if ref.ProjectID == "" || ref.DocumentID == "" {
		return nil, fmt.Errorf("%w: document reference is incomplete", domain.ErrInvalidInput)
	}

	b.mu.Lock()
	b.gen++
	gen := b.gen
	old := b.current
	b.current = nil
	b.state = Loading
	b.loading = ref
	b.mu.Unlock()

	b.teardown(ctx, old)
	b.errors.Clear()

	b.logger.Info("loading document", "doc", ref.Room())
	content, err := b.files.ReadFile(ctx, ref.ProjectID, ref.DocumentID)

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		return nil, domain.ErrSuperseded
	}
	if err != nil {
		b.state = Unbound
		b.loading = domain.DocRef{}
		b.mu.Unlock()
		b.errors.Set(err)
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	exts := append([]Extension(nil), b.extensions...)
	b.mu.Unlock()

	s := b.build(ctx, ref, content, exts)

	b.mu.Lock()
	if b.gen != gen {
		b.mu.Unlock()
		s.close()
		return nil, domain.ErrSuperseded
	}
	b.current = s
	b.state = Bound
	b.loading = domain.DocRef{}
	b.mu.Unlock()

	b.bound.Emit(s)
	b.logger.Info("document bound", "doc", ref.Room(), "content", content.Kind.String())

	// a room member may already have sent the content during the sync
	if content.Kind == domain.ContentSnapshot && s.replica.Empty() {
		if err := s.editor.SetContent(*content.Snapshot, editor.OriginSeed); err != nil {
			b.logger.Warn("failed to seed document", "doc", ref.Room(), "error", err)
		}
	}
	return s, nil
}

// build creates the replica, joins the room and attaches a new editor.
// Persisted replica state is merged before the editor sees the replica,
// and the room is asked for its state once the session listens.
func (b *Binding) build(ctx context.Context, ref domain.DocRef, content domain.Content, exts []Extension) *Session {
	replica := b.replicas.NewReplica()
	if content.Kind == domain.ContentReplica {
		state, err := content.DecodeState()
		if err == nil {
			_, err = replica.Merge(state)
		}
		if err != nil {
			b.logger.Error("failed to load document state, starting empty", "doc", ref.Room(), "error", err)
			replica.Destroy()
			replica = b.replicas.NewReplica()
		}
	}

	var collab driven.CollabSession
	if b.collab != nil {
		var err error
		collab, err = b.collab.Join(ctx, ref.Room(), b.self)
		if err != nil {
			b.logger.Warn("failed to join collaboration room", "doc", ref.Room(), "error", err)
			collab = nil
		}
	}

	var (
		specs   []editor.NodeSpec
		plugins []editor.Plugin
		rules   []editor.InputRule
	)
	for _, ext := range exts {
		specs = append(specs, ext.NodeSpecs()...)
		plugins = append(plugins, ext.Plugins()...)
		rules = append(rules, ext.InputRules()...)
	}
	opts := editor.Options{
		Schema:     editor.NewSchema(specs...),
		Plugins:    plugins,
		InputRules: rules,
	}
	if !replica.Empty() {
		doc := replica.Doc()
		opts.Content = &doc
	}

	s := newSession(ref, editor.New(opts), replica, collab, b.exec, b.logger)
	s.requestSync(ctx)
	return s
}

// Unbind tears down the current session and cancels any load in flight
func (b *Binding) Unbind(ctx context.Context) {
	b.mu.Lock()
	b.gen++
	old := b.current
	b.current = nil
	b.state = Unbound
	b.loading = domain.DocRef{}
	b.mu.Unlock()

	b.teardown(ctx, old)
}

func (b *Binding) teardown(ctx context.Context, s *Session) {
	if s == nil {
		return
	}
	b.mu.Lock()
	hooks := append([]TeardownHook(nil), b.teardowns...)
	b.mu.Unlock()

	for _, hook := range hooks {
		hook(ctx, s)
	}
	s.close()
	b.logger.Info("document unbound", "doc", s.ref.Room())
}

// Loading returns the document being loaded, if any
func (b *Binding) Loading() (domain.DocRef, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loading, b.state == Loading
}

// errIsSuperseded reports whether a load lost the race against a newer one
func errIsSuperseded(err error) bool {
	return errors.Is(err, domain.ErrSuperseded)
}
