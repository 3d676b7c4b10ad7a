package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=payment
type Repository interface {
	CreatePayment(ctx context.Context, tx *Transaction) error
	GetPayment(ctx context.Context, id uuid.UUID) (*Transaction, error)
	GetPaymentByReference(ctx context.Context, ref string) (*Transaction, error)
	ListPayments(ctx context.Context, filter ListFilter) ([]*Transaction, error)

	// AttachReference sets the gateway reference only if none is set yet.
	AttachReference(ctx context.Context, id uuid.UUID, params AttachParams) error
	UpdateDescription(ctx context.Context, id uuid.UUID, description string) error

	// Transition moves a PENDING payment to a terminal state atomically and returns the
	// updated row. It fails with *InvalidTransitionError if the payment is no longer PENDING.
	Transition(ctx context.Context, id uuid.UUID, t Transition) (*Transaction, error)

	LogCallback(ctx context.Context, entry *CallbackLog) error
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	PayerPhone string
	Amount     decimal.Decimal
	PayerEmail string
	PayerName  string
	InvoiceID  *uuid.UUID
}

type AttachParams struct {
	Reference         string
	MerchantRequestID string
	Description       string
}

type ListFilter struct {
	State         *State
	CreatedBefore *time.Time
	HasReference  *bool
	// InvoiceUnpaid keeps payments whose linked invoice is neither paid nor void.
	InvoiceUnpaid bool
	// After resumes a listing strictly past this position. Results are ordered by (created_at, id).
	After *Cursor
	Limit int
}

// Cursor is a keyset position in a payment listing.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Transaction, error) {
	tx := &Transaction{
		PayerPhone:  params.PayerPhone,
		Amount:      params.Amount,
		PayerEmail:  params.PayerEmail,
		PayerName:   params.PayerName,
		InvoiceID:   params.InvoiceID,
		State:       StatePending,
		Description: "Awaiting status result",
	}
	if err := s.repo.CreatePayment(ctx, tx); err != nil {
		return nil, err
	}

	return tx, nil
}

// AttachGatewayReference records the provider's correlation id. It may succeed only once per
// payment.
func (s *Service) AttachGatewayReference(ctx context.Context, id uuid.UUID, params AttachParams) error {
	if params.Reference == "" {
		return errors.New("gateway reference is empty")
	}

	return s.repo.AttachReference(ctx, id, params)
}

func (s *Service) FindByGatewayReference(ctx context.Context, ref string) (*Transaction, error) {
	if ref == "" {
		return nil, ErrNotFound
	}

	return s.repo.GetPaymentByReference(ctx, ref)
}

// TransitionTo is the only way a payment leaves PENDING. Concurrent callers race in the
// repository; exactly one of them gets the updated row back.
func (s *Service) TransitionTo(ctx context.Context, id uuid.UUID, t Transition) (*Transaction, error) {
	if !t.To.Terminal() {
		return nil, fmt.Errorf("%w: target state %q is not terminal", ErrInvalidTransition, t.To)
	}

	if t.To == StateSucceeded {
		if t.ReceiptID == "" || t.SettledAmount == nil {
			return nil, fmt.Errorf("%w: success requires receipt and settled amount", ErrInvalidTransition)
		}
	} else {
		t.ReceiptID = ""
		t.SettledAmount = nil
		t.SettledAt = nil
	}

	return s.repo.Transition(ctx, id, t)
}

func (s *Service) UpdateDescription(ctx context.Context, id uuid.UUID, description string) error {
	return s.repo.UpdateDescription(ctx, id, description)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return s.repo.GetPayment(ctx, id)
}

func (s *Service) List(ctx context.Context, filter ListFilter) ([]*Transaction, error) {
	return s.repo.ListPayments(ctx, filter)
}

func (s *Service) LogCallback(ctx context.Context, entry *CallbackLog) error {
	return s.repo.LogCallback(ctx, entry)
}

// Status is what a polling client sees for a payment id.
type Status string

const (
	StatusPending   Status = Status(StatePending)
	StatusSucceeded Status = Status(StateSucceeded)
	StatusFailed    Status = Status(StateFailed)
	StatusCancelled Status = Status(StateCancelled)
	StatusNotFound  Status = "NOT_FOUND"
)

type StatusResult struct {
	Status  Status
	Message string
}

var statusMessages = map[Status]string{
	StatusPending:   "Transaction still being processed.",
	StatusSucceeded: "Payment Successful",
	StatusFailed:    "Payment Failed",
	StatusCancelled: "Transaction was Cancelled",
	StatusNotFound:  "Transaction not found",
}

// CheckStatus is a pure read used by polling clients.
func (s *Service) CheckStatus(ctx context.Context, id uuid.UUID) (StatusResult, error) {
	tx, err := s.repo.GetPayment(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return StatusResult{Status: StatusNotFound, Message: statusMessages[StatusNotFound]}, nil
		}

		return StatusResult{}, fmt.Errorf("checking status: %w", err)
	}

	status := Status(tx.State)

	return StatusResult{Status: status, Message: statusMessages[status]}, nil
}
