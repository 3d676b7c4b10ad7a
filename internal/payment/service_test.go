package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

func TestService_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := payment.NewMockRepository(ctrl)

	repo.EXPECT().
		CreatePayment(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx *payment.Transaction) error {
			tx.ID = uuid.New()
			tx.CreatedAt = time.Now()
			return nil
		})

	svc := payment.NewService(repo)
	got, err := svc.Create(context.Background(), payment.CreateParams{
		PayerPhone: "254700000000",
		Amount:     decimal.NewFromInt(500),
		PayerEmail: "payer@example.com",
		PayerName:  "Jane",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, payment.StatePending, got.State)
	assert.Nil(t, got.GatewayReference)
	assert.Nil(t, got.ReceiptID)
	assert.Nil(t, got.SettledAmount)
	assert.True(t, decimal.NewFromInt(500).Equal(got.Amount))
}

func TestService_Create_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	repo := payment.NewMockRepository(ctrl)

	repo.EXPECT().CreatePayment(gomock.Any(), gomock.Any()).Return(errors.New("db error"))

	got, err := payment.NewService(repo).Create(context.Background(), payment.CreateParams{})
	assert.Error(t, err)
	assert.Nil(t, got)
}

func TestService_AttachGatewayReference(t *testing.T) {
	id := uuid.New()

	type testCase struct {
		name      string
		params    payment.AttachParams
		setupMock func(m *payment.MockRepository)
		verify    func(t *testing.T, err error)
	}

	tests := []testCase{
		{
			name:   "FirstAttach",
			params: payment.AttachParams{Reference: "ws_CO_1"},
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().AttachReference(gomock.Any(), id, payment.AttachParams{Reference: "ws_CO_1"}).Return(nil)
			},
			verify: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},
		{
			name:   "SecondAttach",
			params: payment.AttachParams{Reference: "ws_CO_2"},
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().
					AttachReference(gomock.Any(), id, gomock.Any()).
					Return(&payment.AlreadyAttachedError{ID: id, Existing: "ws_CO_1"})
			},
			verify: func(t *testing.T, err error) {
				var attached *payment.AlreadyAttachedError
				require.ErrorAs(t, err, &attached)
				assert.Equal(t, "ws_CO_1", attached.Existing)
			},
		},
		{
			name:   "EmptyReference",
			params: payment.AttachParams{},
			verify: func(t *testing.T, err error) {
				assert.Error(t, err)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			repo := payment.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			err := payment.NewService(repo).AttachGatewayReference(context.Background(), id, tt.params)
			tt.verify(t, err)
		})
	}
}

func TestService_TransitionTo(t *testing.T) {
	id := uuid.New()
	amount := decimal.NewFromInt(500)

	type args struct {
		transition payment.Transition
	}

	type testCase struct {
		name      string
		args      args
		setupMock func(m *payment.MockRepository)
		wantErr   error
	}

	tests := []testCase{
		{
			name: "Succeeded",
			args: args{transition: payment.Transition{
				To: payment.StateSucceeded, ReceiptID: "NLJ7RT61SV", SettledAmount: &amount,
			}},
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().
					Transition(gomock.Any(), id, gomock.Any()).
					Return(&payment.Transaction{ID: id, State: payment.StateSucceeded}, nil)
			},
		},
		{
			name: "FailedDropsReceiptFields",
			args: args{transition: payment.Transition{
				To: payment.StateFailed, Description: "insufficient funds", ReceiptID: "X", SettledAmount: &amount,
			}},
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().
					Transition(gomock.Any(), id, payment.Transition{To: payment.StateFailed, Description: "insufficient funds"}).
					Return(&payment.Transaction{ID: id, State: payment.StateFailed}, nil)
			},
		},
		{
			name:    "BackToPending",
			args:    args{transition: payment.Transition{To: payment.StatePending}},
			wantErr: payment.ErrInvalidTransition,
		},
		{
			name:    "SucceededWithoutReceipt",
			args:    args{transition: payment.Transition{To: payment.StateSucceeded, SettledAmount: &amount}},
			wantErr: payment.ErrInvalidTransition,
		},
		{
			name: "AlreadyTerminal",
			args: args{transition: payment.Transition{To: payment.StateCancelled}},
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().
					Transition(gomock.Any(), id, gomock.Any()).
					Return(nil, &payment.InvalidTransitionError{ID: id, From: payment.StateSucceeded, To: payment.StateCancelled})
			},
			wantErr: payment.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			repo := payment.NewMockRepository(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(repo)
			}

			got, err := payment.NewService(repo).TransitionTo(context.Background(), id, tt.args.transition)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.args.transition.To, got.State)
		})
	}
}

func TestService_CheckStatus(t *testing.T) {
	id := uuid.New()

	type testCase struct {
		name        string
		setupMock   func(m *payment.MockRepository)
		wantStatus  payment.Status
		wantMessage string
		wantErr     bool
	}

	tests := []testCase{
		{
			name: "Pending",
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().GetPayment(gomock.Any(), id).Return(&payment.Transaction{ID: id, State: payment.StatePending}, nil)
			},
			wantStatus:  payment.StatusPending,
			wantMessage: "Transaction still being processed.",
		},
		{
			name: "Succeeded",
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().GetPayment(gomock.Any(), id).Return(&payment.Transaction{ID: id, State: payment.StateSucceeded}, nil)
			},
			wantStatus:  payment.StatusSucceeded,
			wantMessage: "Payment Successful",
		},
		{
			name: "Cancelled",
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().GetPayment(gomock.Any(), id).Return(&payment.Transaction{ID: id, State: payment.StateCancelled}, nil)
			},
			wantStatus:  payment.StatusCancelled,
			wantMessage: "Transaction was Cancelled",
		},
		{
			name: "NeverCreated",
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().GetPayment(gomock.Any(), id).Return(nil, payment.ErrNotFound)
			},
			wantStatus:  payment.StatusNotFound,
			wantMessage: "Transaction not found",
		},
		{
			name: "RepoError",
			setupMock: func(m *payment.MockRepository) {
				m.EXPECT().GetPayment(gomock.Any(), id).Return(nil, errors.New("connection reset"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)

			repo := payment.NewMockRepository(ctrl)
			tt.setupMock(repo)

			got, err := payment.NewService(repo).CheckStatus(context.Background(), id)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantMessage, got.Message)
		})
	}
}

func TestTransaction_AccountReference(t *testing.T) {
	tx := &payment.Transaction{ID: uuid.MustParse("1a2b3c4d-0000-4000-8000-000000000000")}

	assert.Equal(t, "TX1A2B3C4D", tx.AccountReference())
	assert.LessOrEqual(t, len(tx.AccountReference()), 12)
}

func TestState_Terminal(t *testing.T) {
	assert.False(t, payment.StatePending.Terminal())
	assert.True(t, payment.StateSucceeded.Terminal())
	assert.True(t, payment.StateFailed.Terminal())
	assert.True(t, payment.StateCancelled.Terminal())
	assert.False(t, payment.State("UNKNOWN").Valid())
}
