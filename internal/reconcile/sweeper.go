package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/lipa/internal/callback"
	"github.com/MrJamesThe3rd/lipa/internal/metrics"
	"github.com/MrJamesThe3rd/lipa/internal/mpesa"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

const descriptionAbandoned = "Payment request was never delivered to the provider"

// Result is what reconciling one payment decided.
type Result string

const (
	ResultAlreadyFinal    Result = "already_final"
	ResultStillPending    Result = "still_pending"
	ResultAwaitingReceipt Result = "awaiting_receipt"
	ResultAbandoned       Result = "abandoned"
	ResultTooRecent       Result = "too_recent"
	ResultResettled       Result = "resettled"
	ResultError           Result = "error"
)

type Querier interface {
	QueryPush(ctx context.Context, checkoutRequestID, token string) (*mpesa.QueryResponse, error)
}

type Config struct {
	Interval     time.Duration
	After        time.Duration
	AbandonAfter time.Duration
	BatchSize    int
}

// Report summarizes one sweep. Keys of Outcomes are Result values or callback outcomes.
type Report struct {
	Checked  int
	Outcomes map[string]int
}

// Sweeper closes payments whose callback never arrived, asking the provider for the result.
type Sweeper struct {
	payments  *payment.Service
	querier   Querier
	tokens    mpesa.TokenSource
	processor *callback.Processor
	cfg       Config
	metrics   *metrics.Metrics
	now       func() time.Time
}

type Option func(*Sweeper)

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Sweeper) { s.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(s *Sweeper) { s.now = now }
}

func NewSweeper(payments *payment.Service, querier Querier, tokens mpesa.TokenSource, processor *callback.Processor, cfg Config, opts ...Option) *Sweeper {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}

	s := &Sweeper{
		payments:  payments,
		querier:   querier,
		tokens:    tokens,
		processor: processor,
		cfg:       cfg,
		now:       time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Sweep walks every PENDING payment older than the configured age, BatchSize rows at a time,
// then re-publishes settlement for succeeded payments whose invoice is still open.
func (s *Sweeper) Sweep(ctx context.Context) (Report, error) {
	cutoff := s.now().Add(-s.cfg.After)
	report := Report{Outcomes: map[string]int{}}

	err := s.eachPage(ctx, payment.ListFilter{
		State:         new(payment.StatePending),
		CreatedBefore: &cutoff,
	}, func(tx *payment.Transaction) {
		report.Checked++
		report.Outcomes[s.reconcile(ctx, tx)]++
	})
	if err != nil {
		return report, fmt.Errorf("listing stale payments: %w", err)
	}

	err = s.eachPage(ctx, payment.ListFilter{
		State:         new(payment.StateSucceeded),
		CreatedBefore: &cutoff,
		InvoiceUnpaid: true,
	}, func(tx *payment.Transaction) {
		report.Outcomes[s.resettle(ctx, tx)]++
	})
	if err != nil {
		return report, fmt.Errorf("listing unsettled payments: %w", err)
	}

	if len(report.Outcomes) > 0 {
		slog.Info("reconcile sweep finished", "checked", report.Checked, "outcomes", report.Outcomes)
	}

	return report, nil
}

// eachPage pages through filter with a keyset cursor, so rows that stay put never hide later ones.
func (s *Sweeper) eachPage(ctx context.Context, filter payment.ListFilter, fn func(tx *payment.Transaction)) error {
	filter.Limit = s.cfg.BatchSize

	for ctx.Err() == nil {
		txs, err := s.payments.List(ctx, filter)
		if err != nil {
			return err
		}

		for _, tx := range txs {
			if ctx.Err() != nil {
				return nil
			}

			fn(tx)
		}

		if len(txs) < filter.Limit {
			return nil
		}

		filter.After = txs[len(txs)-1].Cursor()
	}

	return nil
}

func (s *Sweeper) resettle(ctx context.Context, tx *payment.Transaction) string {
	result := string(ResultResettled)

	if err := s.processor.Resettle(ctx, tx); err != nil {
		slog.Error("failed to re-publish settlement", "payment", tx.ID, "invoice", tx.InvoiceID, "error", err)

		result = string(ResultError)
	}

	s.metrics.Reconciled(result)

	return result
}

// ReconcileOne reconciles a single payment regardless of its age.
func (s *Sweeper) ReconcileOne(ctx context.Context, id uuid.UUID) (string, error) {
	tx, err := s.payments.Get(ctx, id)
	if err != nil {
		return "", err
	}

	if tx.GatewayReference == nil && s.now().Sub(tx.CreatedAt) < s.cfg.AbandonAfter {
		return string(ResultTooRecent), nil
	}

	return s.reconcile(ctx, tx), nil
}

func (s *Sweeper) reconcile(ctx context.Context, tx *payment.Transaction) string {
	result := s.decide(ctx, tx)
	s.metrics.Reconciled(result)

	return result
}

func (s *Sweeper) decide(ctx context.Context, tx *payment.Transaction) string {
	log := slog.With("payment", tx.ID)

	if tx.State.Terminal() {
		return string(ResultAlreadyFinal)
	}

	if tx.GatewayReference == nil {
		if s.now().Sub(tx.CreatedAt) < s.cfg.AbandonAfter {
			return string(ResultTooRecent)
		}

		_, err := s.payments.TransitionTo(ctx, tx.ID, payment.Transition{
			To:          payment.StateFailed,
			Description: descriptionAbandoned,
		})
		if err != nil {
			var invalid *payment.InvalidTransitionError
			if errors.As(err, &invalid) {
				return string(ResultAlreadyFinal)
			}

			log.Error("failed to abandon payment", "error", err)

			return string(ResultError)
		}

		log.Info("abandoned payment without gateway reference")

		return string(ResultAbandoned)
	}

	ref := *tx.GatewayReference

	token, err := s.tokens.Token(ctx)
	if err != nil {
		log.Warn("reconcile query skipped, no token", "error", err)
		return string(ResultError)
	}

	resp, err := s.querier.QueryPush(ctx, ref, token)
	if err != nil {
		if mpesa.IsStillProcessing(err) {
			return string(ResultStillPending)
		}

		log.Warn("reconcile query failed", "checkout_request_id", ref, "error", err)

		return string(ResultError)
	}

	// The query response carries no receipt number, so a success is left for the callback.
	if resp.ResultCode == callback.ResultSuccess {
		log.Info("provider reports success, awaiting callback", "checkout_request_id", ref)
		return string(ResultAwaitingReceipt)
	}

	// A query answer is final, so codes the callback path ignores (timeouts, wrong PIN) fail here.
	code := resp.ResultCode
	if code != callback.ResultCancelled {
		code = callback.ResultFailed
	}

	outcome := s.processor.Process(ctx, callback.Notification{
		CheckoutRequestID: ref,
		ResultCode:        code,
		ResultDesc:        resp.ResultDesc,
	})

	return string(outcome)
}

// Run sweeps every Interval until ctx is done. A zero interval disables it.
func (s *Sweeper) Run(ctx context.Context) {
	if s.cfg.Interval <= 0 {
		slog.Info("reconciler disabled")
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				slog.Error("reconcile sweep failed", "error", err)
			}
		}
	}
}
