package editor

// Origin tells where a transaction came from
type Origin int

const (
	// OriginLocal is input from the user of this editor
	OriginLocal Origin = iota
	// OriginRemote is content merged in from a collaborating peer
	OriginRemote
	// OriginSeed is the initial content applied when a document is opened
	OriginSeed
	// OriginSync is content refreshed from another source of truth, such
	// as a task title changed elsewhere
	OriginSync
)

func (o Origin) String() string {
	switch o {
	case OriginRemote:
		return "remote"
	case OriginSeed:
		return "seed"
	case OriginSync:
		return "sync"
	default:
		return "local"
	}
}

// Transaction is a sequence of steps applied atomically.
// Steps are validated as they are added, against the document the
// previous steps produce.
type Transaction struct {
	Origin Origin

	version uint64
	before  []Block
	doc     []Block
	steps   []Step
	docs    [][]Block
	meta    map[string]any
	err     error
}

func newTransaction(doc []Block, version uint64) *Transaction {
	return &Transaction{version: version, before: doc, doc: doc}
}

// Step appends a step if it applies cleanly to the current result
func (tr *Transaction) Step(s Step) error {
	next, err := s.Apply(tr.doc)
	if err != nil {
		return err
	}
	tr.docs = append(tr.docs, tr.doc)
	tr.steps = append(tr.steps, s)
	tr.doc = next
	return nil
}

func (tr *Transaction) must(s Step) *Transaction {
	if tr.err != nil {
		return tr
	}
	if err := tr.Step(s); err != nil {
		tr.err = err
	}
	return tr
}

// Replace replaces blocks [from, to) with the given blocks
func (tr *Transaction) Replace(from, to int, blocks ...Block) *Transaction {
	return tr.must(ReplaceStep{From: from, To: to, Blocks: blocks})
}

// Delete removes blocks [from, to)
func (tr *Transaction) Delete(from, to int) *Transaction {
	return tr.must(ReplaceStep{From: from, To: to})
}

// Insert inserts blocks before position at
func (tr *Transaction) Insert(at int, blocks ...Block) *Transaction {
	return tr.must(ReplaceStep{From: at, To: at, Blocks: blocks})
}

// ReplaceText replaces a rune range inside a text block
func (tr *Transaction) ReplaceText(block, from, to int, text string) *Transaction {
	return tr.must(TextStep{Block: block, From: from, To: to, Text: text})
}

// SetAttrs merges attributes into a block
func (tr *Transaction) SetAttrs(block int, attrs map[string]any) *Transaction {
	return tr.must(AttrStep{Block: block, Attrs: attrs})
}

// SetOrigin tags the transaction
func (tr *Transaction) SetOrigin(o Origin) *Transaction {
	tr.Origin = o
	return tr
}

// SetMeta attaches a value for plugins to read
func (tr *Transaction) SetMeta(key string, value any) *Transaction {
	if tr.meta == nil {
		tr.meta = make(map[string]any)
	}
	tr.meta[key] = value
	return tr
}

// Meta returns the value attached under key, or nil
func (tr *Transaction) Meta(key string) any {
	return tr.meta[key]
}

// Err returns the first step that failed to apply
func (tr *Transaction) Err() error {
	return tr.err
}

// Steps returns the steps in order
func (tr *Transaction) Steps() []Step {
	return tr.steps
}

// DocChanged reports whether the transaction has any steps
func (tr *Transaction) DocChanged() bool {
	return len(tr.steps) > 0
}

// Before returns the document the transaction started from
func (tr *Transaction) Before() []Block {
	return tr.before
}

// Doc returns the document after all steps
func (tr *Transaction) Doc() []Block {
	return tr.doc
}

// DocBefore returns the document as it was right before step i
func (tr *Transaction) DocBefore(i int) []Block {
	return tr.docs[i]
}

// RemovedBlocks returns every block that a replace step of the transaction removes
func (tr *Transaction) RemovedBlocks() []Block {
	var removed []Block
	for i, s := range tr.steps {
		rs, ok := s.(ReplaceStep)
		if !ok {
			continue
		}
		removed = append(removed, tr.docs[i][rs.From:rs.To]...)
	}
	return removed
}

// IsChangeOrigin reports whether the transaction came from outside this
// editor (a peer merge, the initial seed or a sync) rather than local input
func IsChangeOrigin(tr *Transaction) bool {
	return tr != nil && tr.Origin != OriginLocal
}
