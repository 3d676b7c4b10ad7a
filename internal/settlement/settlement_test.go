package settlement_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/lipa/internal/invoice"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
	"github.com/MrJamesThe3rd/lipa/internal/settlement"
)

func succeededEvent(invoiceID uuid.UUID) settlement.Event {
	return settlement.Event{
		PaymentID:  uuid.New(),
		InvoiceID:  &invoiceID,
		State:      payment.StateSucceeded,
		Amount:     decimal.NewFromInt(500),
		ReceiptID:  "NLJ7RT61SV",
		OccurredAt: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
	}
}

func TestService_Handle(t *testing.T) {
	invoiceID := uuid.New()

	type testCase struct {
		name   string
		event  settlement.Event
		setup  func(repo *invoice.MockRepository, e settlement.Event)
		verify func(t *testing.T, err error)
	}

	tests := []testCase{
		{
			name:  "SucceededSettlesInvoice",
			event: succeededEvent(invoiceID),
			setup: func(repo *invoice.MockRepository, e settlement.Event) {
				repo.EXPECT().GetInvoice(gomock.Any(), invoiceID).Return(&invoice.Invoice{ID: invoiceID, Status: invoice.StatusSent}, nil)
				repo.EXPECT().MarkPaid(gomock.Any(), invoiceID, e.PaymentID, e.OccurredAt).Return(true, nil)
			},
			verify: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "FailedIsIgnored",
			event: func() settlement.Event {
				e := succeededEvent(invoiceID)
				e.State = payment.StateFailed
				return e
			}(),
			setup: func(*invoice.MockRepository, settlement.Event) {},
			verify: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name: "NoInvoiceIsIgnored",
			event: func() settlement.Event {
				e := succeededEvent(invoiceID)
				e.InvoiceID = nil
				return e
			}(),
			setup: func(*invoice.MockRepository, settlement.Event) {},
			verify: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name:  "VoidInvoiceIsNotRetried",
			event: succeededEvent(invoiceID),
			setup: func(repo *invoice.MockRepository, _ settlement.Event) {
				repo.EXPECT().GetInvoice(gomock.Any(), invoiceID).Return(&invoice.Invoice{ID: invoiceID, Status: invoice.StatusVoid}, nil)
			},
			verify: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name:  "StorageErrorIsReturned",
			event: succeededEvent(invoiceID),
			setup: func(repo *invoice.MockRepository, _ settlement.Event) {
				repo.EXPECT().GetInvoice(gomock.Any(), invoiceID).Return(nil, errors.New("connection reset"))
			},
			verify: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := invoice.NewMockRepository(ctrl)
			tt.setup(repo, tt.event)

			svc := settlement.NewService(invoice.NewService(repo))
			tt.verify(t, svc.Handle(context.Background(), tt.event))
		})
	}
}

type fakeWriter struct {
	msgs []kafka.Message
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error { return nil }

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	e := succeededEvent(uuid.New())

	require.NoError(t, settlement.NewKafkaPublisherWithWriter(w).Publish(context.Background(), e))
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, e.PaymentID.String(), string(msg.Key))

	var got settlement.Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.Equal(t, e.PaymentID, got.PaymentID)
	assert.Equal(t, payment.StateSucceeded, got.State)
	assert.True(t, e.Amount.Equal(got.Amount))
}

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	committed []int64
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.msgs) == 0 {
		return kafka.Message{}, context.Canceled
	}

	msg := r.msgs[0]
	r.msgs = r.msgs[1:]

	return msg, nil
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}

	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_Run(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := invoice.NewMockRepository(ctrl)

	invoiceID := uuid.New()
	e := succeededEvent(invoiceID)
	value, err := json.Marshal(e)
	require.NoError(t, err)

	repo.EXPECT().GetInvoice(gomock.Any(), invoiceID).Return(&invoice.Invoice{ID: invoiceID, Status: invoice.StatusSent}, nil)
	repo.EXPECT().MarkPaid(gomock.Any(), invoiceID, e.PaymentID, gomock.Any()).Return(true, nil)

	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: []byte("not json")},
		{Offset: 2, Value: value},
	}}

	c := settlement.NewConsumerWithReader(r, settlement.NewService(invoice.NewService(repo)))
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []int64{1, 2}, r.committed)
}

func quickRetry() settlement.ConsumerOption {
	return settlement.WithRetryBackOff(func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) })
}

func TestConsumer_Run_RetriesFailedEventBeforeCommitting(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := invoice.NewMockRepository(ctrl)

	first, second := uuid.New(), uuid.New()
	e1, e2 := succeededEvent(first), succeededEvent(second)
	v1, err := json.Marshal(e1)
	require.NoError(t, err)
	v2, err := json.Marshal(e2)
	require.NoError(t, err)

	gomock.InOrder(
		repo.EXPECT().GetInvoice(gomock.Any(), first).Return(nil, errors.New("connection reset")),
		repo.EXPECT().GetInvoice(gomock.Any(), first).Return(&invoice.Invoice{ID: first, Status: invoice.StatusSent}, nil),
		repo.EXPECT().MarkPaid(gomock.Any(), first, e1.PaymentID, gomock.Any()).Return(true, nil),
		repo.EXPECT().GetInvoice(gomock.Any(), second).Return(&invoice.Invoice{ID: second, Status: invoice.StatusSent}, nil),
		repo.EXPECT().MarkPaid(gomock.Any(), second, e2.PaymentID, gomock.Any()).Return(true, nil),
	)

	r := &fakeReader{msgs: []kafka.Message{
		{Offset: 1, Value: v1},
		{Offset: 2, Value: v2},
	}}

	c := settlement.NewConsumerWithReader(r, settlement.NewService(invoice.NewService(repo)), quickRetry())
	require.NoError(t, c.Run(context.Background()))

	assert.Equal(t, []int64{1, 2}, r.committed)
}

func TestConsumer_Run_StopsRetryingOnCancel(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := invoice.NewMockRepository(ctrl)

	invoiceID := uuid.New()
	value, err := json.Marshal(succeededEvent(invoiceID))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	repo.EXPECT().GetInvoice(gomock.Any(), invoiceID).Times(3).DoAndReturn(func(context.Context, uuid.UUID) (*invoice.Invoice, error) {
		attempts++
		if attempts == 3 {
			cancel()
		}

		return nil, errors.New("connection reset")
	})

	r := &fakeReader{msgs: []kafka.Message{{Offset: 1, Value: value}}}

	c := settlement.NewConsumerWithReader(r, settlement.NewService(invoice.NewService(repo)), quickRetry())
	require.NoError(t, c.Run(ctx))

	assert.Empty(t, r.committed)
}
