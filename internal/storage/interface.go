// Package storage defines the mapping and click records together with the
// in-memory store used when no database is configured.
package storage

import "errors"

var (
	// ErrCodeTaken is returned when a code is already bound to another mapping.
	ErrCodeTaken = errors.New("code already taken")
	// ErrNotFound is returned when no mapping matches the lookup key.
	ErrNotFound = errors.New("not found")
	// ErrForbidden is returned when the caller does not own the mapping.
	ErrForbidden = errors.New("forbidden")
)
