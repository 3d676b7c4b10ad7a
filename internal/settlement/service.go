package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/lipa/internal/invoice"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

// Service applies settlement events to invoices.
type Service struct {
	invoices *invoice.Service
}

func NewService(invoices *invoice.Service) *Service {
	return &Service{invoices: invoices}
}

// Handle marks the linked invoice paid when a payment succeeded. Anything else is ignored, so
// events can be replayed safely.
func (s *Service) Handle(ctx context.Context, e Event) error {
	if e.State != payment.StateSucceeded || e.InvoiceID == nil {
		return nil
	}

	err := s.invoices.MarkPaid(ctx, *e.InvoiceID, e.PaymentID, e.Amount, e.OccurredAt)

	var alreadyPaid *invoice.AlreadyPaidError

	switch {
	case err == nil:
		slog.Info("invoice settled", "invoice", e.InvoiceID, "payment", e.PaymentID, "receipt", e.ReceiptID)
		return nil
	case errors.As(err, &alreadyPaid), errors.Is(err, invoice.ErrVoid), errors.Is(err, invoice.ErrNotFound):
		// Not retryable. The payment stays succeeded; an operator reconciles the invoice by hand.
		slog.Error("invoice not settled", "invoice", e.InvoiceID, "payment", e.PaymentID, "error", err, "alert", true)
		return nil
	default:
		return fmt.Errorf("settling invoice %s: %w", e.InvoiceID, err)
	}
}
