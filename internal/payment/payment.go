package payment

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// State is the lifecycle state of a payment attempt.
type State string

const (
	StatePending   State = "PENDING"
	StateSucceeded State = "SUCCEEDED"
	StateFailed    State = "FAILED"
	StateCancelled State = "CANCELLED"
)

// Terminal reports whether no further transition is allowed from s.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

func (s State) Valid() bool {
	return s == StatePending || s.Terminal()
}

// Transaction is a single payment attempt recorded in the ledger.
type Transaction struct {
	ID                uuid.UUID
	GatewayReference  *string // CheckoutRequestID, set once after a successful push
	MerchantRequestID *string
	PayerPhone        string
	Amount            decimal.Decimal
	PayerEmail        string
	PayerName         string
	InvoiceID         *uuid.UUID
	State             State
	ReceiptID         *string
	SettledAmount     *decimal.Decimal
	SettledAt         *time.Time
	Description       string
	CreatedAt         time.Time
	UpdatedAt         *time.Time
	ConfirmedAt       *time.Time
}

// AccountReference is the short label shown on the payer's phone. The provider caps it at 12
// characters, so only the leading part of the id is used.
func (t *Transaction) AccountReference() string {
	return "TX" + strings.ToUpper(strings.ReplaceAll(t.ID.String(), "-", "")[:8])
}

// Cursor positions a listing right after t.
func (t *Transaction) Cursor() *Cursor {
	return &Cursor{CreatedAt: t.CreatedAt, ID: t.ID}
}

// Transition describes a move out of PENDING. Receipt and settlement fields are only
// meaningful for StateSucceeded.
type Transition struct {
	To            State
	Description   string
	ReceiptID     string
	SettledAmount *decimal.Decimal
	SettledAt     *time.Time
}

// CallbackLog is a raw provider notification kept for audit and replay.
type CallbackLog struct {
	ID                int64
	CheckoutRequestID string
	ResultCode        *int
	Outcome           string
	Payload           string
	ReceivedAt        time.Time
}
