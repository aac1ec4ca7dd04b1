// Package replica provides a block-level replicated document.
//
// Every top-level block is an entry with a stable id, a position given by
// the block it was inserted after, and content stamped with a Lamport
// clock. Concurrent inserts after the same block are ordered by their
// stamps, concurrent edits of one block keep the newer content, and deleted
// blocks stay behind as tombstones. Edits to different blocks therefore
// merge without loss, in any order.
package replica

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.Replica        = (*Replica)(nil)
	_ driven.ReplicaFactory = (*Factory)(nil)
)

// orphans parents entries whose predecessor has not arrived yet
const orphans = "\x00orphans"

// stamp is a Lamport timestamp made unique by the writer's client id
type stamp struct {
	Clock  int64  `json:"clock"`
	Client string `json:"client,omitempty"`
}

func (s stamp) newerThan(o stamp) bool {
	if s.Clock != o.Clock {
		return s.Clock > o.Clock
	}
	return s.Client > o.Client
}

// entry is one block with its position and content
type entry struct {
	ID      string      `json:"id"`
	After   string      `json:"after,omitempty"`
	Born    stamp       `json:"born"`
	Edited  stamp       `json:"edited"`
	Node    domain.Node `json:"node"`
	Deleted bool        `json:"deleted,omitempty"`
}

// update is the wire form of a change and of the full state
type update struct {
	Clock   int64   `json:"clock"`
	Entries []entry `json:"entries"`
}

// Replica is the replicated state of one document
type Replica struct {
	clientID string

	mu        sync.Mutex
	clock     int64
	seq       int64
	entries   map[string]*entry
	destroyed bool
}

// New creates an empty replica. An empty client id gets a random one.
func New(clientID string) *Replica {
	if clientID == "" {
		clientID = uuid.NewString()
	}
	return &Replica{clientID: clientID, entries: make(map[string]*entry)}
}

// Factory creates replicas with random client ids
type Factory struct{}

// NewFactory creates a replica factory
func NewFactory() *Factory {
	return &Factory{}
}

// NewReplica returns an empty replica
func (f *Factory) NewReplica() driven.Replica {
	return New("")
}

// ClientID returns the replica's client id
func (r *Replica) ClientID() string {
	return r.clientID
}

// Doc returns the visible blocks as a document
func (r *Replica) Doc() domain.Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	doc := domain.NewDoc()
	for _, e := range r.visible() {
		doc.Content = append(doc.Content, e.Node)
	}
	return doc
}

// Empty reports whether nothing was ever written or merged
func (r *Replica) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries) == 0
}

// ApplyLocal records doc as the new content and returns the entries that
// changed. Blocks are matched to existing entries by content first; the
// unmatched blocks between two matches count as edits of the entries they
// replace, and the rest as inserts or deletions.
func (r *Replica) ApplyLocal(doc domain.Node) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, domain.ErrReplicaDestroyed
	}
	return json.Marshal(r.applyLocal(doc))
}

func (r *Replica) applyLocal(doc domain.Node) update {
	r.clock++
	now := stamp{Clock: r.clock, Client: r.clientID}

	cur := r.visible()
	next := doc.Content
	oldKeys := make([]string, len(cur))
	for i, e := range cur {
		oldKeys[i] = nodeKey(e.Node)
	}
	newKeys := make([]string, len(next))
	for i, n := range next {
		newKeys[i] = nodeKey(n)
	}

	var changed []entry
	prev := ""
	i, j := 0, 0
	gap := func(iEnd, jEnd int) {
		for ; i < iEnd && j < jEnd; i, j = i+1, j+1 {
			e := cur[i]
			e.Node = next[j]
			e.Edited = now
			changed = append(changed, *e)
			prev = e.ID
		}
		for ; i < iEnd; i++ {
			cur[i].Deleted = true
			changed = append(changed, *cur[i])
		}
		for ; j < jEnd; j++ {
			r.seq++
			e := &entry{
				ID:     fmt.Sprintf("%s.%d", r.clientID, r.seq),
				After:  prev,
				Born:   now,
				Edited: now,
				Node:   next[j],
			}
			r.entries[e.ID] = e
			changed = append(changed, *e)
			prev = e.ID
		}
	}
	for _, m := range commonBlocks(oldKeys, newKeys) {
		gap(m[0], m[1])
		prev = cur[m[0]].ID
		i, j = m[0]+1, m[1]+1
	}
	gap(len(cur), len(next))

	return update{Clock: r.clock, Entries: changed}
}

// Seed records the initial content of a document. Seeded blocks get ids
// derived from their position and zero stamps, so replicas that seed the
// same snapshot independently agree, and any later edit wins over them.
// A replica that already holds content records doc as a local change.
func (r *Replica) Seed(doc domain.Node) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, domain.ErrReplicaDestroyed
	}
	if len(r.entries) > 0 {
		return json.Marshal(r.applyLocal(doc))
	}

	u := update{Clock: r.clock}
	prev := ""
	for i, n := range doc.Content {
		e := &entry{ID: fmt.Sprintf("seed.%d", i), After: prev, Node: n}
		r.entries[e.ID] = e
		u.Entries = append(u.Entries, *e)
		prev = e.ID
	}
	return json.Marshal(u)
}

// Merge folds an update in. Returns true when the visible content changed.
func (r *Replica) Merge(data []byte) (bool, error) {
	var u update
	if err := json.Unmarshal(data, &u); err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrInvalidUpdate, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return false, domain.ErrReplicaDestroyed
	}

	before := r.visibleKeys()
	r.clock = max(r.clock, u.Clock)
	for _, in := range u.Entries {
		if in.ID == "" {
			continue
		}
		r.clock = max(r.clock, in.Born.Clock, in.Edited.Clock)

		cur, ok := r.entries[in.ID]
		if !ok {
			e := in
			r.entries[e.ID] = &e
			continue
		}
		if in.Edited.newerThan(cur.Edited) ||
			(in.Edited == cur.Edited && nodeKey(in.Node) > nodeKey(cur.Node)) {
			cur.Node = in.Node
			cur.Edited = in.Edited
		}
		if in.Deleted {
			cur.Deleted = true
		}
	}
	return !equalKeys(before, r.visibleKeys()), nil
}

// Encode returns the full state, tombstones included, as one update
func (r *Replica) Encode() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		return nil, domain.ErrReplicaDestroyed
	}

	u := update{Clock: r.clock, Entries: make([]entry, 0, len(r.entries))}
	for _, e := range r.entries {
		u.Entries = append(u.Entries, *e)
	}
	sort.Slice(u.Entries, func(i, j int) bool { return u.Entries[i].ID < u.Entries[j].ID })
	return json.Marshal(u)
}

// Destroy releases the replica
func (r *Replica) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.destroyed = true
	r.entries = make(map[string]*entry)
}

// ordered returns every entry in document order. Children of a block
// follow it newest first; entries whose predecessor is unknown go last.
func (r *Replica) ordered() []*entry {
	children := make(map[string][]*entry)
	for _, e := range r.entries {
		parent := e.After
		if parent != "" {
			if _, ok := r.entries[parent]; !ok {
				parent = orphans
			}
		}
		children[parent] = append(children[parent], e)
	}
	for _, list := range children {
		sort.Slice(list, func(i, j int) bool {
			a, b := list[i], list[j]
			if a.Born != b.Born {
				return a.Born.newerThan(b.Born)
			}
			return a.ID > b.ID
		})
	}

	out := make([]*entry, 0, len(r.entries))
	seen := make(map[string]bool, len(r.entries))
	var walk func(id string)
	walk = func(id string) {
		for _, c := range children[id] {
			if seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
			walk(c.ID)
		}
	}
	walk("")
	walk(orphans)
	return out
}

func (r *Replica) visible() []*entry {
	var out []*entry
	for _, e := range r.ordered() {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	return out
}

func (r *Replica) visibleKeys() []string {
	vis := r.visible()
	keys := make([]string, len(vis))
	for i, e := range vis {
		keys[i] = nodeKey(e.Node)
	}
	return keys
}

// nodeKey is a canonical form of a block for comparison.
// encoding/json sorts map keys, so equal blocks give equal keys.
func nodeKey(n domain.Node) string {
	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Sprintf("%#v", n)
	}
	return string(b)
}

func equalKeys(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// commonBlocks returns index pairs of a longest common subsequence of a and b
func commonBlocks(a, b []string) [][2]int {
	n, m := len(a), len(b)
	// lengths[i][j] is the LCS length of a[i:] and b[j:]
	lengths := make([][]int, n+1)
	for i := range lengths {
		lengths[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lengths[i][j] = lengths[i+1][j+1] + 1
			} else {
				lengths[i][j] = max(lengths[i+1][j], lengths[i][j+1])
			}
		}
	}

	var pairs [][2]int
	for i, j := 0, 0; i < n && j < m; {
		switch {
		case a[i] == b[j]:
			pairs = append(pairs, [2]int{i, j})
			i++
			j++
		case lengths[i+1][j] >= lengths[i][j+1]:
			i++
		default:
			j++
		}
	}
	return pairs
}
