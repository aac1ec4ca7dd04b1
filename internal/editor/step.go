package editor

import (
	"fmt"
	"unicode/utf8"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// Block is a top-level document node
type Block struct {
	Type  string
	Attrs map[string]any
	Text  string
}

// Attr returns a string attribute, or "" when absent
func (b Block) Attr(name string) string {
	v, ok := b.Attrs[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Flag returns a boolean attribute
func (b Block) Flag(name string) bool {
	v, _ := b.Attrs[name].(bool)
	return v
}

// Clone returns a copy that shares nothing with b
func (b Block) Clone() Block {
	c := b
	if b.Attrs != nil {
		c.Attrs = make(map[string]any, len(b.Attrs))
		for k, v := range b.Attrs {
			c.Attrs[k] = v
		}
	}
	return c
}

// Step kinds
const (
	StepReplace     = "replace"
	StepReplaceText = "replaceText"
	StepAttrs       = "attrs"
)

// Step is one atomic change to a document
type Step interface {
	Kind() string
	Apply(doc []Block) ([]Block, error)
}

// ReplaceStep replaces blocks [From, To) with Blocks
type ReplaceStep struct {
	From, To int
	Blocks   []Block
}

func (s ReplaceStep) Kind() string { return StepReplace }

func (s ReplaceStep) Apply(doc []Block) ([]Block, error) {
	if s.From < 0 || s.To < s.From || s.To > len(doc) {
		return nil, fmt.Errorf("%w: replace %d-%d in %d blocks", domain.ErrInvalidStep, s.From, s.To, len(doc))
	}
	out := make([]Block, 0, len(doc)-(s.To-s.From)+len(s.Blocks))
	out = append(out, doc[:s.From]...)
	for _, b := range s.Blocks {
		out = append(out, b.Clone())
	}
	out = append(out, doc[s.To:]...)
	return out, nil
}

// TextStep replaces the rune range [From, To) of a text block with Text
type TextStep struct {
	Block    int
	From, To int
	Text     string
}

func (s TextStep) Kind() string { return StepReplaceText }

func (s TextStep) Apply(doc []Block) ([]Block, error) {
	if s.Block < 0 || s.Block >= len(doc) {
		return nil, fmt.Errorf("%w: no block %d", domain.ErrInvalidStep, s.Block)
	}
	runes := []rune(doc[s.Block].Text)
	if s.From < 0 || s.To < s.From || s.To > len(runes) {
		return nil, fmt.Errorf("%w: text range %d-%d in %d runes", domain.ErrInvalidStep, s.From, s.To, len(runes))
	}
	text := string(runes[:s.From]) + s.Text + string(runes[s.To:])

	out := make([]Block, len(doc))
	copy(out, doc)
	b := out[s.Block].Clone()
	b.Text = text
	out[s.Block] = b
	return out, nil
}

// End returns the rune offset right after the inserted text
func (s TextStep) End() int {
	return s.From + utf8.RuneCountInString(s.Text)
}

// AttrStep merges attributes into a block; a nil value removes the key
type AttrStep struct {
	Block int
	Attrs map[string]any
}

func (s AttrStep) Kind() string { return StepAttrs }

func (s AttrStep) Apply(doc []Block) ([]Block, error) {
	if s.Block < 0 || s.Block >= len(doc) {
		return nil, fmt.Errorf("%w: no block %d", domain.ErrInvalidStep, s.Block)
	}
	out := make([]Block, len(doc))
	copy(out, doc)
	b := out[s.Block].Clone()
	if b.Attrs == nil {
		b.Attrs = make(map[string]any, len(s.Attrs))
	}
	for k, v := range s.Attrs {
		if v == nil {
			delete(b.Attrs, k)
			continue
		}
		b.Attrs[k] = v
	}
	out[s.Block] = b
	return out, nil
}
