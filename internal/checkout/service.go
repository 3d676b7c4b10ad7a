package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/lipa/internal/mpesa"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

var (
	ErrInvalidAmount = errors.New("amount must be a whole number of at least 1")
	ErrInvalidEmail  = errors.New("invalid payer email")
)

type Gateway interface {
	InitiatePush(ctx context.Context, tx *payment.Transaction, token string) (*mpesa.PushResponse, error)
}

type Service struct {
	payments *payment.Service
	gateway  Gateway
	tokens   mpesa.TokenSource
}

func NewService(payments *payment.Service, gateway Gateway, tokens mpesa.TokenSource) *Service {
	return &Service{payments: payments, gateway: gateway, tokens: tokens}
}

type Request struct {
	Phone     string
	Amount    decimal.Decimal
	Email     string
	Name      string
	InvoiceID *uuid.UUID
}

func (r Request) validate() (Request, error) {
	phone, err := NormalizePhone(r.Phone)
	if err != nil {
		return r, err
	}

	r.Phone = phone

	// The provider only moves whole shillings.
	if r.Amount.LessThan(decimal.NewFromInt(1)) || !r.Amount.Equal(r.Amount.Truncate(0)) {
		return r, ErrInvalidAmount
	}

	if r.Email != "" {
		if _, err := mail.ParseAddress(r.Email); err != nil {
			return r, ErrInvalidEmail
		}
	}

	return r, nil
}

// Initiate records a PENDING payment, then asks the provider to prompt the payer. The ledger row
// exists before the provider is called, so a callback can never arrive for an unknown payment
// that this service created.
//
// If the provider call fails the payment stays PENDING without a reference; the reconciler
// closes it later. The returned transaction is non-nil whenever the row was created.
func (s *Service) Initiate(ctx context.Context, req Request) (*payment.Transaction, error) {
	req, err := req.validate()
	if err != nil {
		return nil, err
	}

	tx, err := s.payments.Create(ctx, payment.CreateParams{
		PayerPhone: req.Phone,
		Amount:     req.Amount,
		PayerEmail: req.Email,
		PayerName:  req.Name,
		InvoiceID:  req.InvoiceID,
	})
	if err != nil {
		return nil, fmt.Errorf("recording payment: %w", err)
	}

	log := slog.With("payment", tx.ID, "amount", tx.Amount)

	token, err := s.tokens.Token(ctx)
	if err != nil {
		s.recordFailure(ctx, tx, "Could not authenticate with payment provider")
		return tx, err
	}

	resp, err := s.gateway.InitiatePush(ctx, tx, token)
	if err != nil {
		s.recordFailure(ctx, tx, "Payment request was not accepted by the provider")
		return tx, err
	}

	err = s.payments.AttachGatewayReference(ctx, tx.ID, payment.AttachParams{
		Reference:         resp.CheckoutRequestID,
		MerchantRequestID: resp.MerchantRequestID,
		Description:       resp.ResponseDescription,
	})
	if err != nil {
		var attached *payment.AlreadyAttachedError
		if errors.As(err, &attached) || errors.Is(err, payment.ErrDuplicateReference) {
			log.Error("gateway reference conflict", "checkout_request_id", resp.CheckoutRequestID, "error", err, "alert", true)
		}

		return tx, fmt.Errorf("attaching gateway reference: %w", err)
	}

	tx.GatewayReference = &resp.CheckoutRequestID
	tx.MerchantRequestID = &resp.MerchantRequestID
	tx.Description = resp.ResponseDescription

	log.Info("payment prompt sent", "checkout_request_id", resp.CheckoutRequestID)

	return tx, nil
}

func (s *Service) recordFailure(ctx context.Context, tx *payment.Transaction, description string) {
	slog.Warn("payment initiation failed", "payment", tx.ID, "description", description)

	if err := s.payments.UpdateDescription(ctx, tx.ID, description); err != nil {
		slog.Error("failed to record initiation failure", "payment", tx.ID, "error", err)
		return
	}

	tx.Description = description
}
