package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrLocked         = errors.New("locked")
	ErrValidation     = errors.New("validation failed")
	ErrHierarchyCycle = errors.New("logbook hierarchy contains a cycle")
)

// NotFoundError reports a missing record, revision or attribute.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// NewNotFound builds a NotFoundError for a numeric identity.
func NewNotFound(resource string, id int64) error {
	return &NotFoundError{Resource: resource, ID: fmt.Sprintf("%d", id)}
}

// LockedError is returned when a write is blocked by another owner's lock.
// Proposed carries the entry as it would have been written.
type LockedError struct {
	Lock     EntryLock
	Proposed *Entry
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("entry %d is locked by %s until %s",
		e.Lock.EntryID, e.Lock.OwnedBy, e.Lock.ExpiresAt.Format("2006-01-02 15:04:05"))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrLocked
}

// FieldError describes a problem with a single input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects per-field problems. The record is left unmodified
// whenever one is returned.
type ValidationErrors []FieldError

// NewValidationError returns a single-field validation error.
func NewValidationError(field, message string) ValidationErrors {
	return ValidationErrors{{Field: field, Message: message}}
}

func (e ValidationErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, fe := range e {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e ValidationErrors) Is(target error) bool {
	return target == ErrValidation
}
