package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound reports a referenced entity that does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNothingToSave reports a write that would not change any state.
	ErrNothingToSave = errors.New("nothing to save")
	// ErrConflict reports a mutation that collides with existing state.
	ErrConflict = errors.New("conflict")
)

// NotFoundError identifies the missing entity. It matches ErrNotFound via errors.Is.
type NotFoundError struct {
	Entity EntityType
	ID     string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Entity, e.ID)
}

// Is reports whether target is ErrNotFound.
func (e NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError identifies the entity whose write collided. It matches ErrConflict.
type ConflictError struct {
	Entity EntityType
	ID     string
	Reason string
}

func (e ConflictError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%s %q conflict", e.Entity, e.ID)
	}
	return fmt.Sprintf("%s %q conflict: %s", e.Entity, e.ID, e.Reason)
}

// Is reports whether target is ErrConflict.
func (e ConflictError) Is(target error) bool { return target == ErrConflict }

// NothingToSaveError identifies the entity whose update was a no-op.
type NothingToSaveError struct {
	Entity EntityType
	ID     string
}

func (e NothingToSaveError) Error() string {
	return fmt.Sprintf("%s %q: nothing to save", e.Entity, e.ID)
}

// Is reports whether target is ErrNothingToSave.
func (e NothingToSaveError) Is(target error) bool { return target == ErrNothingToSave }
