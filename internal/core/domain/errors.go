package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoCurrentProject indicates an operation needs a current project and none is set
	ErrNoCurrentProject = errors.New("no current project")

	// ErrNotBound indicates no document is bound to the editor
	ErrNotBound = errors.New("no document bound")

	// ErrSessionClosed indicates the document session was already torn down
	ErrSessionClosed = errors.New("document session closed")

	// ErrSuperseded indicates a document load lost the race against a newer one
	ErrSuperseded = errors.New("superseded by a newer document")

	// ErrReplicaDestroyed indicates the replica was destroyed
	ErrReplicaDestroyed = errors.New("replica destroyed")

	// ErrInvalidUpdate indicates persisted or received replica bytes could not be decoded
	ErrInvalidUpdate = errors.New("invalid replica update")

	// ErrInvalidStep indicates an editor step does not fit the document
	ErrInvalidStep = errors.New("invalid editor step")

	// ErrPromptExpired indicates a confirmation prompt was answered after it expired
	ErrPromptExpired = errors.New("prompt expired")
)
