package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an entity id did not resolve.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the authenticated user lacks membership or
	// ownership of the target board.
	ErrForbidden = errors.New("forbidden")
	// ErrValidation indicates a required field was missing or malformed.
	ErrValidation = errors.New("invalid request")
)

// NotFoundf wraps ErrNotFound with the entity kind and id.
func NotFoundf(kind, id string) error {
	return fmt.Errorf("%s %s: %w", kind, id, ErrNotFound)
}

// MissingField wraps ErrValidation for an absent required field.
func MissingField(name string) error {
	return fmt.Errorf("%w: missing %s", ErrValidation, name)
}
