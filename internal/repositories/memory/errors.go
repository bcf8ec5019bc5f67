// Package memory provides in-process repository implementations used by
// lifecycle tests and local runs without a Firestore backend. They honour the
// same contracts as the Firestore repositories, including version-checked
// updates and cursor pagination.
package memory

import "fmt"

// Error implements repositories.RepositoryError for the in-memory stores.
type Error struct {
	op          string
	msg         string
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %s", e.op, e.msg)
	}
	return e.msg
}

func (e *Error) IsNotFound() bool { return e != nil && e.notFound }

func (e *Error) IsConflict() bool { return e != nil && e.conflict }

func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

func notFoundError(op, msg string) *Error {
	return &Error{op: op, msg: msg, notFound: true}
}

func conflictError(op, msg string) *Error {
	return &Error{op: op, msg: msg, conflict: true}
}
