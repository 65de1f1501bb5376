package service

import "errors"

var (
	// ErrCustomCodeTaken is returned when a requested custom code belongs to another mapping.
	ErrCustomCodeTaken = errors.New("custom code already taken")
	// ErrCustomCodeBlacklisted is returned for reserved or malformed custom codes.
	ErrCustomCodeBlacklisted = errors.New("custom code not allowed")
	// ErrGenerationExhausted is returned when every generated code collided.
	// Callers should retry later.
	ErrGenerationExhausted = errors.New("could not allocate a short code, try again")
)
