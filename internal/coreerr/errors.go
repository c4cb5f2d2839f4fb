// Package coreerr defines the error taxonomy shared by every collaborator
// that sits in front of the recording core (HTTP handlers, CLI, tests).
//
// The three types are deliberately thin: they carry just enough structure
// for a transport binding to pick a status code, while remaining compatible
// with errors.Is/errors.As for callers that only care about the kind.
package coreerr

import (
	"errors"
	"fmt"
)

// ValidationError reports that caller-supplied input failed a structural
// check (bad URL scheme, non-positive duration, unparsable start time, a
// missing required field). The recording/setting in question is left
// unchanged.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidation builds a ValidationError for the given field.
func NewValidation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Conflict reports that the requested operation is not permitted given the
// current status of the target (e.g. starting an already-started recording,
// updating one that already completed).
type Conflict struct {
	Message string
}

func (e *Conflict) Error() string { return e.Message }

// NewConflict builds a Conflict with the given message.
func NewConflict(message string) error {
	return &Conflict{Message: message}
}

// NotFound reports an identity-lookup miss.
type NotFound struct {
	Kind string
	ID   string
}

func (e *NotFound) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NewNotFound builds a NotFound for the given kind ("recording",
// "saved stream", ...) and id.
func NewNotFound(kind, id string) error {
	return &NotFound{Kind: kind, ID: id}
}

// IsValidation reports whether err is (or wraps) a *ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflict reports whether err is (or wraps) a *Conflict.
func IsConflict(err error) bool {
	var c *Conflict
	return errors.As(err, &c)
}

// IsNotFound reports whether err is (or wraps) a *NotFound.
func IsNotFound(err error) bool {
	var n *NotFound
	return errors.As(err, &n)
}
