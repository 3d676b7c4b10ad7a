package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=service.go -destination=repository_mock.go -package=invoice
type Repository interface {
	CreateInvoice(ctx context.Context, inv *Invoice) error
	GetInvoice(ctx context.Context, id uuid.UUID) (*Invoice, error)
	CreateItem(ctx context.Context, item *Item) error
	ListItems(ctx context.Context, invoiceID uuid.UUID) ([]*Item, error)
	UpdateTotals(ctx context.Context, id uuid.UUID, subtotal, total decimal.Decimal) error
	// MarkPaid reports false when the invoice was already paid or void.
	MarkPaid(ctx context.Context, id, paymentID uuid.UUID, paidAt time.Time) (bool, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

type CreateParams struct {
	Number  string
	TaskID  *uuid.UUID
	TaxRate decimal.Decimal
}

type ItemParams struct {
	Description string
	Quantity    decimal.Decimal
	UnitPrice   decimal.Decimal
}

func (s *Service) Create(ctx context.Context, params CreateParams) (*Invoice, error) {
	if params.Number == "" {
		return nil, fmt.Errorf("%w: number is required", ErrInvalidInput)
	}

	if params.TaxRate.IsNegative() {
		return nil, fmt.Errorf("%w: tax rate must not be negative", ErrInvalidInput)
	}

	inv := &Invoice{
		Number:      params.Number,
		TaskID:      params.TaskID,
		Status:      StatusDraft,
		Subtotal:    decimal.Zero,
		TaxRate:     params.TaxRate,
		TotalAmount: decimal.Zero,
	}

	if err := s.repo.CreateInvoice(ctx, inv); err != nil {
		return nil, err
	}

	return inv, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

func (s *Service) Items(ctx context.Context, id uuid.UUID) ([]*Item, error) {
	return s.repo.ListItems(ctx, id)
}

// AddItem stores a line item. Invoice totals are not touched; call RecalculateTotals afterwards.
func (s *Service) AddItem(ctx context.Context, invoiceID uuid.UUID, params ItemParams) (*Item, error) {
	if params.Description == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}

	if !params.Quantity.IsPositive() || params.UnitPrice.IsNegative() {
		return nil, fmt.Errorf("%w: quantity must be positive and unit price not negative", ErrInvalidInput)
	}

	inv, err := s.repo.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	if inv.Status == StatusVoid {
		return nil, ErrVoid
	}

	item := &Item{
		InvoiceID:   invoiceID,
		Description: params.Description,
		Quantity:    params.Quantity,
		UnitPrice:   params.UnitPrice,
		TotalPrice:  params.Quantity.Mul(params.UnitPrice).Round(2),
	}

	if err := s.repo.CreateItem(ctx, item); err != nil {
		return nil, err
	}

	return item, nil
}

func (s *Service) RecalculateTotals(ctx context.Context, id uuid.UUID) (*Invoice, error) {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	items, err := s.repo.ListItems(ctx, id)
	if err != nil {
		return nil, err
	}

	inv.Subtotal, inv.TotalAmount = Totals(items, inv.TaxRate)

	if err := s.repo.UpdateTotals(ctx, id, inv.Subtotal, inv.TotalAmount); err != nil {
		return nil, err
	}

	return inv, nil
}

// MarkPaid settles an invoice with a payment. Repeating it with the same payment is a no-op.
func (s *Service) MarkPaid(ctx context.Context, id, paymentID uuid.UUID, amount decimal.Decimal, paidAt time.Time) error {
	inv, err := s.repo.GetInvoice(ctx, id)
	if err != nil {
		return err
	}

	switch inv.Status {
	case StatusVoid:
		return ErrVoid
	case StatusPaid:
		return s.alreadyPaid(inv, paymentID)
	}

	if amount.LessThan(inv.TotalAmount) {
		slog.Warn("invoice settled for less than its total",
			"invoice", inv.Number, "payment", paymentID, "amount", amount, "total", inv.TotalAmount)
	}

	ok, err := s.repo.MarkPaid(ctx, id, paymentID, paidAt)
	if err != nil {
		return err
	}

	if ok {
		return nil
	}

	// Lost a race with another writer; re-read to report what won.
	inv, err = s.repo.GetInvoice(ctx, id)
	if err != nil {
		return err
	}

	if inv.Status == StatusVoid {
		return ErrVoid
	}

	return s.alreadyPaid(inv, paymentID)
}

func (s *Service) alreadyPaid(inv *Invoice, paymentID uuid.UUID) error {
	if inv.PaymentID != nil && *inv.PaymentID == paymentID {
		return nil
	}

	existing := uuid.Nil
	if inv.PaymentID != nil {
		existing = *inv.PaymentID
	}

	return &AlreadyPaidError{ID: inv.ID, PaymentID: existing}
}
