package domain

import "strings"

// Project groups documents and tasks
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// DocRef identifies a document inside a project
type DocRef struct {
	ProjectID  string `json:"project_id"`
	DocumentID string `json:"document_id"`
}

// Room is the collaboration room name for the document.
// Two sessions on the same document join the same room.
func (r DocRef) Room() string {
	return r.ProjectID + "/" + r.DocumentID
}

// Path is the document path stored on tasks created inside it
func (r DocRef) Path() string {
	return r.Room()
}

// IsZero reports whether the reference is unset
func (r DocRef) IsZero() bool {
	return r.ProjectID == "" && r.DocumentID == ""
}

// ParseDocRef parses a "projectId/documentId" path
func ParseDocRef(path string) (DocRef, bool) {
	projectID, documentID, ok := strings.Cut(path, "/")
	if !ok || projectID == "" || documentID == "" {
		return DocRef{}, false
	}
	return DocRef{ProjectID: projectID, DocumentID: documentID}, true
}
