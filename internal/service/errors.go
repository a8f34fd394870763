package service

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyFollowing = errors.New("already following this trader")
	ErrNotFollowing     = errors.New("not following this trader")
)

// ValidationError rejects input before any side effect happens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
