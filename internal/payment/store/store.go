package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

const uniqueViolation = "23505"

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const selectPaymentColumns = `
	id, checkout_request_id, merchant_request_id, payer_phone, amount, payer_email, payer_name,
	invoice_id, state, receipt_number, settled_amount, settled_at, description,
	created_at, updated_at, confirmed_at
`

// scanPayment expects the column order of selectPaymentColumns.
func scanPayment(s scanner) (*payment.Transaction, error) {
	var tx payment.Transaction

	var state string

	if err := s.Scan(
		&tx.ID, &tx.GatewayReference, &tx.MerchantRequestID, &tx.PayerPhone, &tx.Amount,
		&tx.PayerEmail, &tx.PayerName, &tx.InvoiceID, &state, &tx.ReceiptID, &tx.SettledAmount,
		&tx.SettledAt, &tx.Description, &tx.CreatedAt, &tx.UpdatedAt, &tx.ConfirmedAt,
	); err != nil {
		return nil, err
	}

	tx.State = payment.State(state)

	return &tx, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}

	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *Store) CreatePayment(ctx context.Context, tx *payment.Transaction) error {
	query := `
		INSERT INTO payments (payer_phone, amount, payer_email, payer_name, invoice_id, state, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		tx.PayerPhone,
		tx.Amount,
		tx.PayerEmail,
		tx.PayerName,
		tx.InvoiceID,
		tx.State,
		tx.Description,
	).Scan(&tx.ID, &tx.CreatedAt)
	if err != nil {
		return fmt.Errorf("creating payment: %w", err)
	}

	return nil
}

func (s *Store) GetPayment(ctx context.Context, id uuid.UUID) (*payment.Transaction, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments WHERE id = $1`

	tx, err := scanPayment(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment: %w", err)
	}

	return tx, nil
}

func (s *Store) GetPaymentByReference(ctx context.Context, ref string) (*payment.Transaction, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments WHERE checkout_request_id = $1`

	tx, err := scanPayment(s.db.QueryRowContext(ctx, query, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrNotFound
		}

		return nil, fmt.Errorf("getting payment by reference: %w", err)
	}

	return tx, nil
}

func (s *Store) ListPayments(ctx context.Context, filter payment.ListFilter) ([]*payment.Transaction, error) {
	query := `SELECT ` + selectPaymentColumns + ` FROM payments WHERE TRUE`

	var args []any

	argIdx := 1

	if filter.State != nil {
		query += fmt.Sprintf(" AND state = $%d", argIdx)

		args = append(args, *filter.State)
		argIdx++
	}

	if filter.CreatedBefore != nil {
		query += fmt.Sprintf(" AND created_at < $%d", argIdx)

		args = append(args, *filter.CreatedBefore)
		argIdx++
	}

	if filter.HasReference != nil {
		if *filter.HasReference {
			query += " AND checkout_request_id IS NOT NULL"
		} else {
			query += " AND checkout_request_id IS NULL"
		}
	}

	if filter.InvoiceUnpaid {
		query += " AND invoice_id IN (SELECT id FROM invoices WHERE status NOT IN ('paid', 'void'))"
	}

	if filter.After != nil {
		query += fmt.Sprintf(" AND (created_at, id) > ($%d, $%d)", argIdx, argIdx+1)

		args = append(args, filter.After.CreatedAt, filter.After.ID)
		argIdx += 2
	}

	query += " ORDER BY created_at ASC, id ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)

		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing payments: %w", err)
	}
	defer rows.Close()

	var txs []*payment.Transaction

	for rows.Next() {
		tx, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning payment: %w", err)
		}

		txs = append(txs, tx)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating payment rows: %w", err)
	}

	return txs, nil
}

// AttachReference only writes when no reference is set. A zero row count is then resolved into
// either ErrNotFound or *AlreadyAttachedError.
func (s *Store) AttachReference(ctx context.Context, id uuid.UUID, params payment.AttachParams) error {
	query := `
		UPDATE payments
		SET checkout_request_id = $1, merchant_request_id = $2, description = $3, updated_at = NOW()
		WHERE id = $4 AND checkout_request_id IS NULL
	`

	res, err := s.db.ExecContext(ctx, query,
		params.Reference,
		nullString(params.MerchantRequestID),
		params.Description,
		id,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("attaching reference %q: %w", params.Reference, payment.ErrDuplicateReference)
		}

		return fmt.Errorf("attaching reference: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("attaching reference: %w", err)
	}

	if n == 1 {
		return nil
	}

	var existing sql.NullString

	err = s.db.QueryRowContext(ctx, `SELECT checkout_request_id FROM payments WHERE id = $1`, id).Scan(&existing)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return payment.ErrNotFound
		}

		return fmt.Errorf("reading existing reference: %w", err)
	}

	return &payment.AlreadyAttachedError{ID: id, Existing: existing.String}
}

func (s *Store) UpdateDescription(ctx context.Context, id uuid.UUID, description string) error {
	query := `UPDATE payments SET description = $1, updated_at = NOW() WHERE id = $2`

	res, err := s.db.ExecContext(ctx, query, description, id)
	if err != nil {
		return fmt.Errorf("updating description: %w", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return payment.ErrNotFound
	}

	return nil
}

// Transition is a compare-and-swap on state = 'PENDING'. Postgres row locking makes concurrent
// callers for the same id serialize here; only one of them sees a returned row.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, t payment.Transition) (*payment.Transaction, error) {
	query := `
		UPDATE payments
		SET state = $1, description = $2, receipt_number = $3, settled_amount = $4, settled_at = $5,
			confirmed_at = NOW(), updated_at = NOW()
		WHERE id = $6 AND state = 'PENDING'
		RETURNING ` + selectPaymentColumns

	tx, err := scanPayment(s.db.QueryRowContext(ctx, query,
		t.To,
		t.Description,
		nullString(t.ReceiptID),
		nullDecimal(t.SettledAmount),
		t.SettledAt,
		id,
	))
	if err == nil {
		return tx, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transitioning payment: %w", err)
	}

	var current string

	err = s.db.QueryRowContext(ctx, `SELECT state FROM payments WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, payment.ErrNotFound
		}

		return nil, fmt.Errorf("reading current state: %w", err)
	}

	return nil, &payment.InvalidTransitionError{ID: id, From: payment.State(current), To: t.To}
}

func (s *Store) LogCallback(ctx context.Context, entry *payment.CallbackLog) error {
	query := `
		INSERT INTO payment_callbacks (checkout_request_id, result_code, outcome, payload, received_at)
		VALUES ($1, $2, $3, $4, NOW())
		RETURNING id, received_at
	`

	err := s.db.QueryRowContext(ctx, query,
		nullString(entry.CheckoutRequestID),
		entry.ResultCode,
		entry.Outcome,
		entry.Payload,
	).Scan(&entry.ID, &entry.ReceivedAt)
	if err != nil {
		return fmt.Errorf("logging callback: %w", err)
	}

	return nil
}
