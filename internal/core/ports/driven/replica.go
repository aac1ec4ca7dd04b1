package driven

import "github.com/listnote/listnote-core/internal/core/domain"

// Replica is the in-memory replicated state of one document.
// Updates produced by one replica can be merged into any other replica of
// the same document in any order; changes to different blocks all survive.
type Replica interface {
	// ClientID identifies the replica among its peers
	ClientID() string

	// Doc returns the current document content
	Doc() domain.Node

	// Empty reports whether the replica holds no content yet
	Empty() bool

	// ApplyLocal records a local change and returns the update to broadcast
	ApplyLocal(doc domain.Node) ([]byte, error)

	// Seed records a document's initial content. Replicas seeding the same
	// content independently must produce identical state.
	Seed(doc domain.Node) ([]byte, error)

	// Merge folds a peer or persisted update in.
	// Returns true when the visible content changed.
	Merge(update []byte) (bool, error)

	// Encode returns the full state as a single update
	Encode() ([]byte, error)

	// Destroy releases the replica; later calls fail with domain.ErrReplicaDestroyed
	Destroy()
}

// ReplicaFactory creates empty replicas
type ReplicaFactory interface {
	NewReplica() Replica
}
