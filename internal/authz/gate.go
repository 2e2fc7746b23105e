package authz

import (
	"errors"
	"fmt"
)

// ErrPermissionDenied indicates that the client lacks a required capability.
var ErrPermissionDenied = errors.New("permission denied")

// PermissionError carries the capability that was missing.
type PermissionError struct {
	Required Capability
	Missing  Capability
}

// Error implements the error interface.
func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: missing capability %s", e.Missing)
}

// Is matches ErrPermissionDenied.
func (e *PermissionError) Is(target error) bool {
	return target == ErrPermissionDenied
}

// Check verifies that granted covers required. It is a pure function of
// the two capability sets and has no side effects.
func Check(granted, required Capability) error {
	if granted.Has(required) {
		return nil
	}
	return &PermissionError{
		Required: required,
		Missing:  required &^ granted,
	}
}
