// Package editor is a block-level rich text model: a flat list of typed
// blocks changed through transactions of steps, with plugins that can
// inspect or veto transactions and input rules that react to typed text.
package editor

import (
	"fmt"

	"github.com/listnote/listnote-core/internal/core/domain"
)

// AttrSpec describes one node attribute
type AttrSpec struct {
	Name    string
	Default any
	// Transient attributes live only in the editor and are never serialized
	Transient bool
}

// NodeSpec describes a block type
type NodeSpec struct {
	Name  string
	Attrs []AttrSpec
	// TextBlock nodes hold inline text
	TextBlock bool
}

// Schema is the set of block types an editor accepts
type Schema struct {
	nodes map[string]NodeSpec
}

// NewSchema returns a schema with paragraph, heading and horizontal rule
// plus any extra node types
func NewSchema(extra ...NodeSpec) *Schema {
	s := &Schema{nodes: make(map[string]NodeSpec)}
	s.add(NodeSpec{Name: domain.NodeParagraph, TextBlock: true})
	s.add(NodeSpec{
		Name:      domain.NodeHeading,
		TextBlock: true,
		Attrs:     []AttrSpec{{Name: "level", Default: 1}},
	})
	s.add(NodeSpec{Name: "horizontalRule"})
	for _, spec := range extra {
		s.add(spec)
	}
	return s
}

func (s *Schema) add(spec NodeSpec) {
	s.nodes[spec.Name] = spec
}

// Spec returns the spec for a node type
func (s *Schema) Spec(name string) (NodeSpec, bool) {
	spec, ok := s.nodes[name]
	return spec, ok
}

// Create builds a block of the given type with defaults filled in
func (s *Schema) Create(typ string, attrs map[string]any, text string) (Block, error) {
	spec, ok := s.nodes[typ]
	if !ok {
		return Block{}, fmt.Errorf("%w: unknown node type %q", domain.ErrInvalidStep, typ)
	}
	if text != "" && !spec.TextBlock {
		return Block{}, fmt.Errorf("%w: %s cannot hold text", domain.ErrInvalidStep, typ)
	}

	b := Block{Type: typ, Text: text, Attrs: make(map[string]any, len(spec.Attrs))}
	for _, a := range spec.Attrs {
		if a.Default != nil {
			b.Attrs[a.Name] = a.Default
		}
	}
	for k, v := range attrs {
		b.Attrs[k] = v
	}
	return b, nil
}

// Paragraph builds a paragraph block
func (s *Schema) Paragraph(text string) Block {
	return Block{Type: domain.NodeParagraph, Text: text}
}

// Serialize converts a block to a snapshot node, dropping transient and
// unset attributes
func (s *Schema) Serialize(b Block) domain.Node {
	n := domain.Node{Type: b.Type}
	spec, known := s.nodes[b.Type]
	transient := map[string]bool{}
	if known {
		for _, a := range spec.Attrs {
			if a.Transient {
				transient[a.Name] = true
			}
		}
	}
	for k, v := range b.Attrs {
		if transient[k] || v == nil || v == "" {
			continue
		}
		if n.Attrs == nil {
			n.Attrs = make(map[string]any)
		}
		n.Attrs[k] = v
	}
	if b.Text != "" {
		n.Content = []domain.Node{{Type: domain.NodeText, Text: b.Text}}
	}
	return n
}

// ToDoc serializes blocks into a snapshot document
func (s *Schema) ToDoc(blocks []Block) domain.Node {
	doc := domain.NewDoc()
	for _, b := range blocks {
		doc.Content = append(doc.Content, s.Serialize(b))
	}
	return doc
}

// FromDoc flattens a snapshot document into blocks.
// Nested structures collapse into their text content.
func (s *Schema) FromDoc(doc domain.Node) []Block {
	var blocks []Block
	for _, n := range doc.Content {
		b := Block{Type: n.Type, Text: n.TextContent()}
		if len(n.Attrs) > 0 {
			b.Attrs = make(map[string]any, len(n.Attrs))
			for k, v := range n.Attrs {
				b.Attrs[k] = v
			}
		}
		blocks = append(blocks, b)
	}
	return blocks
}
