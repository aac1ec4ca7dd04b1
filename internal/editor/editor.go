package editor

import (
	"errors"
	"regexp"
	"sync"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// ErrFiltered is returned by Dispatch when a plugin vetoed the transaction
var ErrFiltered = errors.New("transaction filtered")

// Key is a key press delivered to plugins
type Key int

const (
	KeyOther Key = iota
	KeyBackspace
	KeyDelete
	KeyEnter
)

// State is a read-only view of the editor
type State struct {
	Doc       []Block
	Selection int
}

// Plugin hooks into key handling and transaction dispatch
type Plugin struct {
	Key string
	// HandleKeyDown returns true when the key was consumed
	HandleKeyDown func(ed *Editor, key Key) bool
	// FilterTransaction returns false to drop the transaction
	FilterTransaction func(tr *Transaction, state State) bool
}

// InputRule reacts to typed text matching Find in a text block.
// Handler adds steps to tr; pos is the block index.
type InputRule struct {
	Find    *regexp.Regexp
	Types   []string
	Handler func(tr *Transaction, state State, pos int, match []string)
}

// UpdateEvent is delivered to listeners after a transaction applied
type UpdateEvent struct {
	Editor      *Editor
	Transaction *Transaction
}

// Options configures a new editor
type Options struct {
	Schema     *Schema
	Content    *domain.Node
	Plugins    []Plugin
	InputRules []InputRule
}

// Editor holds a document and applies transactions to it
type Editor struct {
	schema  *Schema
	plugins []Plugin
	rules   []InputRule

	mu        sync.Mutex
	doc       []Block
	version   uint64
	selection int
	destroyed bool
	nextID    int
	listeners []listener
}

type listener struct {
	id int
	fn func(UpdateEvent)
}

// New creates an editor. An empty document gets one empty paragraph.
func New(opts Options) *Editor {
	schema := opts.Schema
	if schema == nil {
		schema = NewSchema()
	}
	e := &Editor{
		schema:  schema,
		plugins: opts.Plugins,
		rules:   opts.InputRules,
	}
	if opts.Content != nil {
		e.doc = schema.FromDoc(*opts.Content)
	}
	if len(e.doc) == 0 {
		e.doc = []Block{schema.Paragraph("")}
	}
	return e
}

// Schema returns the editor's schema
func (e *Editor) Schema() *Schema {
	return e.schema
}

// State returns the current document and selection
func (e *Editor) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return State{Doc: e.doc, Selection: e.selection}
}

// JSON serializes the document
func (e *Editor) JSON() domain.Node {
	return e.schema.ToDoc(e.State().Doc)
}

// Tr starts a transaction against the current document
func (e *Editor) Tr() *Transaction {
	e.mu.Lock()
	defer e.mu.Unlock()
	return newTransaction(e.doc, e.version)
}

// OnUpdate registers a listener for applied transactions.
// Listeners run in registration order; the returned func removes it.
func (e *Editor) OnUpdate(fn func(UpdateEvent)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.listeners = append(e.listeners, listener{id: id, fn: fn})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		for i, l := range e.listeners {
			if l.id == id {
				e.listeners = append(e.listeners[:i:i], e.listeners[i+1:]...)
				return
			}
		}
	}
}

// KeyDown offers a key press to the plugins in order
func (e *Editor) KeyDown(key Key) bool {
	for _, p := range e.plugins {
		if p.HandleKeyDown != nil && p.HandleKeyDown(e, key) {
			return true
		}
	}
	return false
}

// Dispatch runs the plugin filters and applies the transaction
func (e *Editor) Dispatch(tr *Transaction) error {
	if err := tr.Err(); err != nil {
		return err
	}
	state := e.State()
	if tr.DocChanged() {
		for _, p := range e.plugins {
			if p.FilterTransaction != nil && !p.FilterTransaction(tr, state) {
				return ErrFiltered
			}
		}
	}

	e.mu.Lock()
	if e.destroyed {
		e.mu.Unlock()
		return domain.ErrSessionClosed
	}
	doc := tr.doc
	if tr.version != e.version {
		var err error
		doc, err = replay(e.doc, tr.steps)
		if err != nil {
			e.mu.Unlock()
			return err
		}
	}
	e.doc = doc
	e.version++
	if e.selection >= len(doc) {
		e.selection = max(0, len(doc)-1)
	}
	listeners := make([]listener, len(e.listeners))
	copy(listeners, e.listeners)
	e.mu.Unlock()

	ev := UpdateEvent{Editor: e, Transaction: tr}
	for _, l := range listeners {
		l.fn(ev)
	}
	return nil
}

func replay(doc []Block, steps []Step) ([]Block, error) {
	var err error
	for _, s := range steps {
		if doc, err = s.Apply(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// InsertText types text into a text block at a rune offset and runs the
// input rules against the text before the cursor
func (e *Editor) InsertText(block, offset int, text string) error {
	tr := e.Tr().ReplaceText(block, offset, offset, text)
	if err := e.Dispatch(tr); err != nil {
		return err
	}
	end := TextStep{From: offset, Text: text}.End()

	e.mu.Lock()
	e.selection = block
	e.mu.Unlock()

	return e.runInputRules(block, end)
}

func (e *Editor) runInputRules(pos, cursor int) error {
	state := e.State()
	if pos >= len(state.Doc) {
		return nil
	}
	b := state.Doc[pos]
	spec, ok := e.schema.Spec(b.Type)
	if !ok || !spec.TextBlock {
		return nil
	}
	before := string([]rune(b.Text)[:cursor])

	for _, rule := range e.rules {
		if len(rule.Types) > 0 && !contains(rule.Types, b.Type) {
			continue
		}
		match := rule.Find.FindStringSubmatch(before)
		if match == nil {
			continue
		}
		tr := e.Tr()
		rule.Handler(tr, state, pos, match)
		if !tr.DocChanged() {
			continue
		}
		return e.Dispatch(tr)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// SetContent replaces the whole document
func (e *Editor) SetContent(doc domain.Node, origin Origin) error {
	blocks := e.schema.FromDoc(doc)
	if len(blocks) == 0 {
		blocks = []Block{e.schema.Paragraph("")}
	}
	tr := e.Tr()
	tr.Replace(0, len(tr.Doc()), blocks...).SetOrigin(origin)
	return e.Dispatch(tr)
}

// SetSelection moves the cursor to a block
func (e *Editor) SetSelection(pos int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection = max(0, min(pos, len(e.doc)-1))
}

// Descendants calls fn for each block with its position until fn returns false
func (e *Editor) Descendants(fn func(b Block, pos int) bool) {
	for i, b := range e.State().Doc {
		if !fn(b, i) {
			return
		}
	}
}

// Destroy detaches all listeners; later dispatches fail
func (e *Editor) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.destroyed = true
	e.listeners = nil
}

// Destroyed reports whether Destroy was called
func (e *Editor) Destroyed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.destroyed
}
