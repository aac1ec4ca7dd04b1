package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/listnote/listnote-core/internal/core/domain"
	"github.com/listnote/listnote-core/internal/core/ports/driven"
	"github.com/listnote/listnote-core/internal/editor"
)

// Change is one applied editor transaction tagged with its origin
type Change struct {
	Origin      editor.Origin
	Transaction *editor.Transaction
}

// Local reports whether the change came from this session's user
func (c Change) Local() bool {
	return c.Origin == editor.OriginLocal
}

// Unsaved reports whether the change leaves this client with content to
// save: user input, or a refresh from the task records
func (c Change) Unsaved() bool {
	return c.Origin == editor.OriginLocal || c.Origin == editor.OriginSync
}

// Room message kinds. Every message carries replica state: a joining
// peer announces its full state and asks for the others', members answer
// with theirs, and edits travel as incremental updates.
const (
	msgUpdate byte = iota
	msgSyncRequest
	msgSyncReply
)

// Session is one bound document: its editor, replica and collaboration
// room. It is created by Binding.Open and is dead once the binding moves on.
type Session struct {
	ref     domain.DocRef
	editor  *editor.Editor
	replica driven.Replica
	collab  driven.CollabSession
	exec    Executor
	logger  *slog.Logger

	changes Emitter[Change]

	mu     sync.Mutex
	offs   []func()
	closed bool
}

func newSession(ref domain.DocRef, ed *editor.Editor, replica driven.Replica, collab driven.CollabSession, exec Executor, logger *slog.Logger) *Session {
	s := &Session{
		ref:     ref,
		editor:  ed,
		replica: replica,
		collab:  collab,
		exec:    executorOrInline(exec),
		logger:  logger.With("doc", ref.Room()),
	}
	s.offs = append(s.offs, ed.OnUpdate(s.handleUpdate))
	if collab != nil {
		s.offs = append(s.offs, collab.OnUpdate(func(msg []byte) {
			s.exec.Submit(func() { s.handleRemote(msg) })
		}))
	}
	return s
}

// requestSync sends this replica's full state to the room and asks every
// member for theirs, so edits made before joining reach both sides
func (s *Session) requestSync(ctx context.Context) {
	if s.collab == nil {
		return
	}
	state, err := s.replica.Encode()
	if err != nil {
		s.logger.Warn("failed to encode state for sync", "error", err)
		return
	}
	if err := s.collab.Broadcast(ctx, frame(msgSyncRequest, state)); err != nil {
		s.logger.Warn("failed to request sync", "error", err)
	}
}

func frame(kind byte, payload []byte) []byte {
	msg := make([]byte, 0, len(payload)+1)
	msg = append(msg, kind)
	return append(msg, payload...)
}

// Ref returns the bound document
func (s *Session) Ref() domain.DocRef {
	return s.ref
}

// Editor returns the session's editor
func (s *Session) Editor() *editor.Editor {
	return s.editor
}

// Doc returns the editor content as a snapshot
func (s *Session) Doc() domain.Node {
	return s.editor.JSON()
}

// Encode returns the full replica state for persistence
func (s *Session) Encode() ([]byte, error) {
	return s.replica.Encode()
}

// Peers lists the collaborators in the document room
func (s *Session) Peers() []domain.Peer {
	if s.collab == nil {
		return nil
	}
	return s.collab.Peers()
}

// OnChange subscribes to applied transactions of any origin
func (s *Session) OnChange(fn func(Change)) func() {
	return s.changes.Subscribe(fn)
}

// Closed reports whether the session was torn down
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// handleUpdate mirrors editor changes into the replica and out to peers.
// Remote changes already came from the replica.
func (s *Session) handleUpdate(ev editor.UpdateEvent) {
	tr := ev.Transaction
	if tr.Origin != editor.OriginRemote {
		var (
			update []byte
			err    error
		)
		if tr.Origin == editor.OriginSeed {
			update, err = s.replica.Seed(s.editor.JSON())
		} else {
			update, err = s.replica.ApplyLocal(s.editor.JSON())
		}
		if err != nil {
			s.logger.Warn("failed to record change in replica", "error", err)
		} else if s.collab != nil {
			if err := s.collab.Broadcast(context.Background(), frame(msgUpdate, update)); err != nil {
				s.logger.Warn("failed to broadcast change", "error", err)
			}
		}
	}
	s.changes.Emit(Change{Origin: tr.Origin, Transaction: tr})
}

// handleRemote merges a peer message and shows the result in the editor.
// A sync request is answered with this replica's full state.
func (s *Session) handleRemote(msg []byte) {
	if s.Closed() {
		return
	}
	if len(msg) == 0 {
		s.logger.Warn("dropping empty room message")
		return
	}
	kind, payload := msg[0], msg[1:]

	changed, err := s.replica.Merge(payload)
	if err != nil {
		s.logger.Warn("failed to merge peer update", "kind", kind, "error", err)
	} else if changed {
		if err := s.editor.SetContent(s.replica.Doc(), editor.OriginRemote); err != nil {
			s.logger.Warn("failed to apply peer update", "error", err)
		}
	}

	if kind != msgSyncRequest {
		return
	}
	state, err := s.replica.Encode()
	if err != nil {
		s.logger.Warn("failed to encode state for sync", "error", err)
		return
	}
	if err := s.collab.Broadcast(context.Background(), frame(msgSyncReply, state)); err != nil {
		s.logger.Warn("failed to answer sync request", "error", err)
	}
}

// close detaches listeners, then destroys the editor and replica, then
// leaves the room
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	offs := s.offs
	s.offs = nil
	s.mu.Unlock()

	for _, off := range offs {
		off()
	}
	s.editor.Destroy()
	s.replica.Destroy()
	if s.collab != nil {
		if err := s.collab.Close(); err != nil {
			s.logger.Warn("failed to leave collaboration room", "error", err)
		}
	}
}
