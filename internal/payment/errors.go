package payment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("payment not found")
	ErrDuplicateReference = errors.New("gateway reference already attached to another payment")
	ErrInvalidTransition  = errors.New("invalid payment transition")
)

// AlreadyAttachedError means a second gateway reference was offered for a payment that already
// has one. It points at a protocol bug upstream and should alert.
type AlreadyAttachedError struct {
	ID       uuid.UUID
	Existing string
}

func (e *AlreadyAttachedError) Error() string {
	return fmt.Sprintf("payment %s already has gateway reference %q", e.ID, e.Existing)
}

// InvalidTransitionError is returned when a transition is attempted out of a terminal state,
// which is what a redelivered callback looks like.
type InvalidTransitionError struct {
	ID   uuid.UUID
	From State
	To   State
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("payment %s: cannot transition from %s to %s", e.ID, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }
