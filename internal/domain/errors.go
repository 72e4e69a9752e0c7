// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict indicates a concurrent modification conflict (optimistic locking).
var ErrConflict = errors.New("conflict: resource was modified by another request")

// ErrValidation indicates the request payload failed domain validation.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition indicates a lifecycle transition not present in the
// transition table, or one whose guard precondition is unmet.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrApprovalRequired indicates a guarded mutation was attempted without a
// matching approved approval record.
var ErrApprovalRequired = errors.New("approval required")
