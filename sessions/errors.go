package sessions

import "errors"

var (
	// ErrSessionLocked rejects work on a subject whose lease is held by
	// another session. This is a conflict, not a failure state.
	ErrSessionLocked = errors.New("subject is locked by another session")
	// ErrInvalidTransition marks an operation illegal for the session's
	// current stage or status, such as undo on a running session.
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrSessionNotFound   = errors.New("session not found")
	ErrUnknownKind       = errors.New("unknown session kind")
)
