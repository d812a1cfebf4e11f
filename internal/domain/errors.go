// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking)
// or a uniqueness violation.
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates a request or entity failed a structural rule.
var ErrValidation = errors.New("validation failed")

// ErrUnauthorized indicates the caller may not perform the operation.
var ErrUnauthorized = errors.New("unauthorized")
