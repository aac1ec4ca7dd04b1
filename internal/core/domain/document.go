package domain

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

// Node is a structured-content tree node.
// The root of a document snapshot has type "doc".
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
}

// Node type names shared by the editor and the snapshot format
const (
	NodeDoc       = "doc"
	NodeParagraph = "paragraph"
	NodeHeading   = "heading"
	NodeText      = "text"
)

// TextContent concatenates the text of the node and its descendants
func (n Node) TextContent() string {
	if n.Type == NodeText {
		return n.Text
	}
	var b strings.Builder
	for _, c := range n.Content {
		b.WriteString(c.TextContent())
	}
	return b.String()
}

// Attr returns a string attribute, or "" when absent
func (n Node) Attr(name string) string {
	v, ok := n.Attrs[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// NewDoc builds a document root from blocks
func NewDoc(blocks ...Node) Node {
	return Node{Type: NodeDoc, Content: blocks}
}

// NewParagraph builds a paragraph holding plain text
func NewParagraph(text string) Node {
	n := Node{Type: NodeParagraph}
	if text != "" {
		n.Content = []Node{{Type: NodeText, Text: text}}
	}
	return n
}

// ContentKind classifies a persisted document blob
type ContentKind int

const (
	// ContentEmpty means nothing was persisted yet
	ContentEmpty ContentKind = iota
	// ContentSnapshot is a plain structured-content tree used for seeding
	ContentSnapshot
	// ContentReplica is base64-encoded replica state
	ContentReplica
)

func (k ContentKind) String() string {
	switch k {
	case ContentSnapshot:
		return "snapshot"
	case ContentReplica:
		return "replica"
	default:
		return "empty"
	}
}

// Content is a persisted document blob as read from storage
type Content struct {
	Kind     ContentKind
	Snapshot *Node
	// Encoded is the base64 transport form of replica state
	Encoded string
}

// ParseContent classifies the raw JSON value returned by the storage API.
// A JSON object with a "type" key is a snapshot, a JSON string is base64
// replica state, and null or "" is empty. Anything else is passed on as
// replica state so that decoding fails where merge failures are handled.
func ParseContent(raw []byte) Content {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return Content{Kind: ContentEmpty}
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s == "" {
				return Content{Kind: ContentEmpty}
			}
			return Content{Kind: ContentReplica, Encoded: s}
		}
	case '{':
		var n Node
		if err := json.Unmarshal(raw, &n); err == nil && n.Type != "" {
			return Content{Kind: ContentSnapshot, Snapshot: &n}
		}
	}
	return Content{Kind: ContentReplica, Encoded: string(raw)}
}

// ReplicaContent wraps raw replica bytes for transport
func ReplicaContent(state []byte) Content {
	if len(state) == 0 {
		return Content{Kind: ContentEmpty}
	}
	return Content{Kind: ContentReplica, Encoded: EncodeState(state)}
}

// SnapshotContent wraps a structured-content tree
func SnapshotContent(doc Node) Content {
	return Content{Kind: ContentSnapshot, Snapshot: &doc}
}

// DecodeState returns the replica bytes carried by the content
func (c Content) DecodeState() ([]byte, error) {
	if c.Kind != ContentReplica {
		return nil, nil
	}
	state, err := base64.StdEncoding.DecodeString(c.Encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpdate, err)
	}
	return state, nil
}

// MarshalJSON encodes the content back into its transport form
func (c Content) MarshalJSON() ([]byte, error) {
	switch c.Kind {
	case ContentSnapshot:
		return json.Marshal(c.Snapshot)
	case ContentReplica:
		return json.Marshal(c.Encoded)
	default:
		return []byte("null"), nil
	}
}

// EncodeState converts replica bytes into the JSON-safe transport string
func EncodeState(state []byte) string {
	return base64.StdEncoding.EncodeToString(state)
}
