package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/lipa/internal/invoice"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateInvoice(ctx context.Context, inv *invoice.Invoice) error {
	query := `
		INSERT INTO invoices (number, task_id, status, subtotal, tax_rate, total_amount, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		inv.Number,
		inv.TaskID,
		inv.Status,
		inv.Subtotal,
		inv.TaxRate,
		inv.TotalAmount,
	).Scan(&inv.ID, &inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating invoice: %w", err)
	}

	return nil
}

func (s *Store) GetInvoice(ctx context.Context, id uuid.UUID) (*invoice.Invoice, error) {
	query := `
		SELECT id, number, task_id, status, subtotal, tax_rate, total_amount, payment_id, paid_at, created_at, updated_at
		FROM invoices
		WHERE id = $1
	`

	var (
		inv    invoice.Invoice
		status string
	)

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&inv.ID, &inv.Number, &inv.TaskID, &status, &inv.Subtotal, &inv.TaxRate, &inv.TotalAmount,
		&inv.PaymentID, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, invoice.ErrNotFound
		}

		return nil, fmt.Errorf("getting invoice: %w", err)
	}

	inv.Status = invoice.Status(status)

	return &inv, nil
}

func (s *Store) CreateItem(ctx context.Context, item *invoice.Item) error {
	query := `
		INSERT INTO invoice_items (invoice_id, description, quantity, unit_price, total_price, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		item.InvoiceID,
		item.Description,
		item.Quantity,
		item.UnitPrice,
		item.TotalPrice,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating invoice item: %w", err)
	}

	return nil
}

func (s *Store) ListItems(ctx context.Context, invoiceID uuid.UUID) ([]*invoice.Item, error) {
	query := `
		SELECT id, invoice_id, description, quantity, unit_price, total_price, created_at
		FROM invoice_items
		WHERE invoice_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("listing invoice items: %w", err)
	}
	defer rows.Close()

	var items []*invoice.Item

	for rows.Next() {
		var it invoice.Item
		if err := rows.Scan(&it.ID, &it.InvoiceID, &it.Description, &it.Quantity, &it.UnitPrice, &it.TotalPrice, &it.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning invoice item: %w", err)
		}

		items = append(items, &it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invoice items: %w", err)
	}

	return items, nil
}

func (s *Store) UpdateTotals(ctx context.Context, id uuid.UUID, subtotal, total decimal.Decimal) error {
	query := `UPDATE invoices SET subtotal = $1, total_amount = $2, updated_at = NOW() WHERE id = $3`

	res, err := s.db.ExecContext(ctx, query, subtotal, total, id)
	if err != nil {
		return fmt.Errorf("updating invoice totals: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return invoice.ErrNotFound
	}

	return nil
}

func (s *Store) MarkPaid(ctx context.Context, id, paymentID uuid.UUID, paidAt time.Time) (bool, error) {
	query := `
		UPDATE invoices
		SET status = 'paid', payment_id = $1, paid_at = $2, updated_at = NOW()
		WHERE id = $3 AND status NOT IN ('paid', 'void')
	`

	res, err := s.db.ExecContext(ctx, query, paymentID, paidAt, id)
	if err != nil {
		return false, fmt.Errorf("marking invoice paid: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("marking invoice paid: %w", err)
	}

	return n == 1, nil
}
