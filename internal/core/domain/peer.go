package domain

import (
	"fmt"
	"hash/fnv"
)

// Peer is a collaborator present in a document room
type Peer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// PeerColor derives a stable light color for a user id.
// The same id always maps to the same color across sessions.
func PeerColor(userID string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	sum := h.Sum32()

	// keep every channel in the upper half so the color stays light
	r := 0x80 | byte(sum)
	g := 0x80 | byte(sum>>8)
	b := 0x80 | byte(sum>>16)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}
