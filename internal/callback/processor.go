package callback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/MrJamesThe3rd/lipa/internal/metrics"
	"github.com/MrJamesThe3rd/lipa/internal/notify"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
	"github.com/MrJamesThe3rd/lipa/internal/settlement"
)

type Outcome string

const (
	OutcomeSucceeded        Outcome = "succeeded"
	OutcomeFailed           Outcome = "failed"
	OutcomeCancelled        Outcome = "cancelled"
	OutcomeDuplicate        Outcome = "duplicate"
	OutcomeIgnored          Outcome = "ignored"
	OutcomeUnknownReference Outcome = "unknown_reference"
	OutcomeMalformed        Outcome = "malformed"
	OutcomeError            Outcome = "error"
)

const (
	descriptionSucceeded = "Payment Successful"
	descriptionCancelled = "Transaction Cancelled by User"

	defaultSideEffectTimeout = 30 * time.Second
)

// Processor applies provider result notifications to the ledger. It never returns an error to
// the caller: the provider is always acknowledged and the outcome is only logged.
type Processor struct {
	payments *payment.Service
	receipts notify.Notifier
	events   settlement.Publisher
	metrics  *metrics.Metrics
	timeout  time.Duration
	backOff  func() backoff.BackOff

	wg sync.WaitGroup
}

type Option func(*Processor)

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// WithSideEffectTimeout bounds receipt delivery and event publishing.
func WithSideEffectTimeout(d time.Duration) Option {
	return func(p *Processor) { p.timeout = d }
}

// WithRetryBackOff sets the retry schedule for settlement publishing.
func WithRetryBackOff(newBackOff func() backoff.BackOff) Option {
	return func(p *Processor) { p.backOff = newBackOff }
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = 0

	return b
}

func NewProcessor(payments *payment.Service, receipts notify.Notifier, events settlement.Publisher, opts ...Option) *Processor {
	p := &Processor{
		payments: payments,
		receipts: receipts,
		events:   events,
		timeout:  defaultSideEffectTimeout,
		backOff:  defaultBackOff,
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// ProcessRaw decodes a delivery body, applies it and records it in the callback log.
func (p *Processor) ProcessRaw(ctx context.Context, body []byte) Outcome {
	n, err := Decode(body)

	var outcome Outcome
	if err != nil {
		slog.Warn("rejecting malformed callback", "error", err)
		p.metrics.Callback(string(OutcomeMalformed))

		outcome = OutcomeMalformed
	} else {
		outcome = p.Process(ctx, n)
	}

	entry := &payment.CallbackLog{
		CheckoutRequestID: n.CheckoutRequestID,
		Outcome:           string(outcome),
		Payload:           string(body),
	}
	if err == nil {
		entry.ResultCode = &n.ResultCode
	}

	if err := p.payments.LogCallback(ctx, entry); err != nil {
		slog.Warn("failed to record callback", "checkout_request_id", n.CheckoutRequestID, "error", err)
	}

	return outcome
}

// Process applies one notification. Redelivery of an already applied result is harmless.
func (p *Processor) Process(ctx context.Context, n Notification) Outcome {
	outcome, err := p.process(ctx, n)

	log := slog.With("checkout_request_id", n.CheckoutRequestID, "result_code", n.ResultCode, "outcome", outcome)

	switch {
	case err != nil && outcome == OutcomeError:
		log.Error("failed to process callback", "error", err)
	case err != nil:
		log.Warn("callback not applied", "error", err)
	default:
		log.Info("callback processed")
	}

	p.metrics.Callback(string(outcome))

	return outcome
}

func (p *Processor) process(ctx context.Context, n Notification) (Outcome, error) {
	tx, err := p.payments.FindByGatewayReference(ctx, n.CheckoutRequestID)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			return OutcomeUnknownReference, nil
		}

		return OutcomeError, fmt.Errorf("looking up payment: %w", err)
	}

	var t payment.Transition

	switch n.ResultCode {
	case ResultSuccess:
		t, err = successTransition(tx, n)
		if err != nil {
			return OutcomeMalformed, err
		}
	case ResultFailed:
		t = payment.Transition{To: payment.StateFailed, Description: n.ResultDesc}
	case ResultCancelled:
		t = payment.Transition{To: payment.StateCancelled, Description: descriptionCancelled}
	default:
		return OutcomeIgnored, nil
	}

	updated, err := p.payments.TransitionTo(ctx, tx.ID, t)
	if err != nil {
		var invalid *payment.InvalidTransitionError
		if errors.As(err, &invalid) {
			return OutcomeDuplicate, nil
		}

		return OutcomeError, fmt.Errorf("transitioning payment %s: %w", tx.ID, err)
	}

	p.metrics.Transition(string(updated.State))
	p.afterTransition(updated)

	return outcomeFor(updated.State), nil
}

// successTransition requires a receipt number. The amount falls back to the requested amount and
// the settlement time is optional.
func successTransition(tx *payment.Transaction, n Notification) (payment.Transition, error) {
	md := n.Metadata()

	receipt, ok := md.String(ItemReceipt)
	if !ok {
		return payment.Transition{}, &MalformedError{CheckoutRequestID: n.CheckoutRequestID, Reason: "success without " + ItemReceipt}
	}

	amount, ok := md.Decimal(ItemAmount)
	if !ok {
		slog.Warn("success callback has no usable amount, using requested amount",
			"checkout_request_id", n.CheckoutRequestID, "amount", tx.Amount)

		amount = tx.Amount
	}

	t := payment.Transition{
		To:            payment.StateSucceeded,
		Description:   descriptionSucceeded,
		ReceiptID:     receipt,
		SettledAmount: &amount,
	}

	if at, ok := md.Time(ItemTransactionDate); ok {
		t.SettledAt = &at
	}

	return t, nil
}

func outcomeFor(s payment.State) Outcome {
	switch s {
	case payment.StateSucceeded:
		return OutcomeSucceeded
	case payment.StateFailed:
		return OutcomeFailed
	default:
		return OutcomeCancelled
	}
}

// afterTransition runs only for the caller that won the transition, so each payment produces at
// most one receipt and one settlement event.
func (p *Processor) afterTransition(tx *payment.Transaction) {
	event := settlement.EventFromTransaction(tx)

	p.goSideEffect("settlement", tx.ID.String(), func(ctx context.Context) error {
		return p.publish(ctx, event)
	})

	if tx.State != payment.StateSucceeded || tx.PayerEmail == "" {
		return
	}

	receipt := notify.Receipt{
		To:        tx.PayerEmail,
		Name:      tx.PayerName,
		Amount:    *tx.SettledAmount,
		ReceiptID: *tx.ReceiptID,
		PaidAt:    tx.SettledAt,
	}

	p.goSideEffect("receipt", tx.ID.String(), func(ctx context.Context) error {
		err := p.receipts.SendReceipt(ctx, receipt)
		p.metrics.Receipt(err)

		return err
	})
}

// publish retries until the event is accepted or ctx ends.
func (p *Processor) publish(ctx context.Context, e settlement.Event) error {
	return backoff.RetryNotify(
		func() error { return p.events.Publish(ctx, e) },
		backoff.WithContext(p.backOff(), ctx),
		func(err error, next time.Duration) {
			slog.Warn("settlement publish failed, retrying", "payment", e.PaymentID, "in", next, "error", err)
		},
	)
}

// Resettle publishes the settlement event of an already succeeded payment again. Used by the
// reconciler for payments whose invoice is still open.
func (p *Processor) Resettle(ctx context.Context, tx *payment.Transaction) error {
	if tx.State != payment.StateSucceeded || tx.InvoiceID == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.publish(ctx, settlement.EventFromTransaction(tx))
}

func (p *Processor) goSideEffect(name, paymentID string, fn func(ctx context.Context) error) {
	p.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("side effect panicked", "effect", name, "payment", paymentID, "panic", r)
			}
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()

		if err := fn(ctx); err != nil {
			slog.Error("side effect failed", "effect", name, "payment", paymentID, "error", err)
		}
	})
}

// Wait blocks until in-flight receipts and events have finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}
