// Package remote provides the error model and JSON transport shared by the clients of the
// embedding provider, the chat provider and the vector store.
package remote

import (
	"errors"
	"fmt"
)

// ErrRemote matches every Error and ParseError through errors.Is.
var ErrRemote = errors.New("remote service error")

// Error is returned when a remote service answers with a non-2xx status.
type Error struct {
	Service string
	Status  int
	Body    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Body)
}

// Is reports ErrRemote.
func (e *Error) Is(target error) bool { return target == ErrRemote }

// ParseError is returned when a remote response is malformed or lacks a required field.
type ParseError struct {
	Service string
	Reason  string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: unexpected response: %s: %v", e.Service, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: unexpected response: %s", e.Service, e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Is reports ErrRemote.
func (e *ParseError) Is(target error) bool { return target == ErrRemote }

// Missing returns a ParseError for an absent response field.
func Missing(service, field string) error {
	return &ParseError{Service: service, Reason: "missing field " + field}
}
