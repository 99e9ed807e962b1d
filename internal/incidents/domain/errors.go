package incidents

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an incident does not exist.
var ErrNotFound = errors.New("incidents: not found")

// ErrConflict is returned when a compare-and-set update lost the race,
// meaning the incident changed under the caller.
var ErrConflict = errors.New("incidents: concurrent update")

// InvalidTransitionError reports a rejected lifecycle edge.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("incidents: invalid transition %s -> %s", e.From, e.To)
}

// ValidationError reports a precondition failure on a roster or
// lifecycle operation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "incidents: " + e.Reason
}

// NewValidationError builds a ValidationError.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
