package settlement

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

// Event announces that a payment reached a terminal state.
type Event struct {
	PaymentID  uuid.UUID       `json:"payment_id"`
	InvoiceID  *uuid.UUID      `json:"invoice_id,omitempty"`
	State      payment.State   `json:"state"`
	Amount     decimal.Decimal `json:"amount"`
	ReceiptID  string          `json:"receipt_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

func EventFromTransaction(tx *payment.Transaction) Event {
	e := Event{
		PaymentID:  tx.ID,
		InvoiceID:  tx.InvoiceID,
		State:      tx.State,
		Amount:     tx.Amount,
		OccurredAt: time.Now().UTC(),
	}

	if tx.SettledAmount != nil {
		e.Amount = *tx.SettledAmount
	}

	if tx.ReceiptID != nil {
		e.ReceiptID = *tx.ReceiptID
	}

	if tx.ConfirmedAt != nil {
		e.OccurredAt = tx.ConfirmedAt.UTC()
	}

	return e
}
