package store

import "errors"

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique constraint.
// The database constraints on email and username are the authoritative
// guard against concurrent registrations racing past the existence
// checks.
var ErrDuplicate = errors.New("duplicate record")
