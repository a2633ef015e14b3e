package core

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a referenced record does not exist.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrForbidden is returned when an admin acts on a listing owned by another admin.
var ErrForbidden = errors.New("forbidden")

// ErrInvalidQuery is the sentinel wrapped by every QueryError.
var ErrInvalidQuery = errors.New("invalid query")

// QueryError reports a malformed search parameter.
type QueryError struct {
	Param  string
	Value  string
	Reason string
}

func (e *QueryError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("invalid %s %q: %s", e.Param, e.Value, e.Reason)
}

// Unwrap lets errors.Is match ErrInvalidQuery.
func (e *QueryError) Unwrap() error { return ErrInvalidQuery }

// IsNotFound reports whether err is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}
