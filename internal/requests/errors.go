package requests

import "errors"

// ErrorClassifier allows errors to declare their classification so callers
// such as the HTTP API can map them to responses.
type ErrorClassifier interface {
	// ErrorKind returns one of "not_found", "validation", "conflict",
	// "unauthorized", or "unavailable".
	ErrorKind() string
}

type kindError struct {
	kind string
	msg  string
}

func (e *kindError) Error() string     { return e.msg }
func (e *kindError) ErrorKind() string { return e.kind }

var (
	// ErrNotFound is returned when no request (or user) has the given id.
	ErrNotFound = &kindError{kind: "not_found", msg: "not found"}
	// ErrInvalidStatus is returned for a status outside the four known values.
	ErrInvalidStatus = &kindError{kind: "validation", msg: "invalid status"}
	// ErrInvalidMediaType is returned when a media type is not configured.
	ErrInvalidMediaType = &kindError{kind: "validation", msg: "invalid media type"}
	// ErrInvalidRequest is returned when required fields are missing or malformed.
	ErrInvalidRequest = &kindError{kind: "validation", msg: "invalid request"}
	// ErrTransitionRejected is returned when the transition policy refuses a change.
	ErrTransitionRejected = &kindError{kind: "conflict", msg: "transition rejected"}
	// ErrDuplicateRequest is returned when the requester already has an open
	// request for the same media.
	ErrDuplicateRequest = &kindError{kind: "conflict", msg: "duplicate open request"}
)

// ErrorKind returns the classification of err, or "" when it has none.
func ErrorKind(err error) string {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind()
	}
	return ""
}
