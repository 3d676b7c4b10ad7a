package notify

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
)

// Receipt is what the payer is told after a successful payment.
type Receipt struct {
	To        string
	Name      string
	Amount    decimal.Decimal
	ReceiptID string
	PaidAt    *time.Time
}

type Notifier interface {
	SendReceipt(ctx context.Context, r Receipt) error
}

// Nop drops receipts. Used when no SMTP server is configured.
type Nop struct{}

func (Nop) SendReceipt(_ context.Context, r Receipt) error {
	slog.Debug("receipt not sent, no mailer configured", "receipt", r.ReceiptID)
	return nil
}
