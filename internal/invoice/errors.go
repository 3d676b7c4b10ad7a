package invoice

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("invoice not found")
	ErrVoid         = errors.New("invoice is void")
	ErrInvalidInput = errors.New("invalid invoice input")
)

// AlreadyPaidError is returned when an invoice was settled by a different payment.
type AlreadyPaidError struct {
	ID        uuid.UUID
	PaymentID uuid.UUID
}

func (e *AlreadyPaidError) Error() string {
	return fmt.Sprintf("invoice %s already paid by payment %s", e.ID, e.PaymentID)
}
