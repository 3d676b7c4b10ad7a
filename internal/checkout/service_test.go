package checkout_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/MrJamesThe3rd/lipa/internal/checkout"
	"github.com/MrJamesThe3rd/lipa/internal/mpesa"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) Token(context.Context) (string, error) {
	return s.token, s.err
}

type fakeGateway struct {
	resp  *mpesa.PushResponse
	err   error
	calls int
	got   *payment.Transaction
}

func (g *fakeGateway) InitiatePush(_ context.Context, tx *payment.Transaction, token string) (*mpesa.PushResponse, error) {
	g.calls++
	g.got = tx

	return g.resp, g.err
}

func expectCreate(repo *payment.MockRepository, id uuid.UUID) {
	repo.EXPECT().CreatePayment(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, tx *payment.Transaction) error {
		tx.ID = id
		return nil
	})
}

func TestService_Initiate(t *testing.T) {
	id := uuid.New()
	req := checkout.Request{Phone: "0700000000", Amount: decimal.NewFromInt(500), Email: "jane@example.com", Name: "Jane"}

	type testCase struct {
		name    string
		tokens  staticTokens
		gateway *fakeGateway
		setup   func(repo *payment.MockRepository)
		verify  func(t *testing.T, tx *payment.Transaction, err error, gw *fakeGateway)
	}

	tests := []testCase{
		{
			name:   "Success",
			tokens: staticTokens{token: "tok-1"},
			gateway: &fakeGateway{resp: &mpesa.PushResponse{
				MerchantRequestID:   "29115-34620561-1",
				CheckoutRequestID:   "ws_CO_1",
				ResponseDescription: "Success. Request accepted for processing",
			}},
			setup: func(repo *payment.MockRepository) {
				expectCreate(repo, id)
				repo.EXPECT().AttachReference(gomock.Any(), id, payment.AttachParams{
					Reference:         "ws_CO_1",
					MerchantRequestID: "29115-34620561-1",
					Description:       "Success. Request accepted for processing",
				}).Return(nil)
			},
			verify: func(t *testing.T, tx *payment.Transaction, err error, gw *fakeGateway) {
				require.NoError(t, err)
				assert.Equal(t, id, tx.ID)
				assert.Equal(t, payment.StatePending, tx.State)
				require.NotNil(t, tx.GatewayReference)
				assert.Equal(t, "ws_CO_1", *tx.GatewayReference)
				assert.Equal(t, "254700000000", gw.got.PayerPhone)
			},
		},
		{
			name:    "GatewayRejects",
			tokens:  staticTokens{token: "tok-1"},
			gateway: &fakeGateway{err: &mpesa.RequestError{Op: "push", StatusCode: 400, Message: "Invalid PhoneNumber"}},
			setup: func(repo *payment.MockRepository) {
				expectCreate(repo, id)
				repo.EXPECT().UpdateDescription(gomock.Any(), id, "Payment request was not accepted by the provider").Return(nil)
			},
			verify: func(t *testing.T, tx *payment.Transaction, err error, _ *fakeGateway) {
				var reqErr *mpesa.RequestError
				require.ErrorAs(t, err, &reqErr)
				require.NotNil(t, tx)
				assert.Equal(t, payment.StatePending, tx.State)
				assert.Nil(t, tx.GatewayReference)
			},
		},
		{
			name:    "AuthFails",
			tokens:  staticTokens{err: &mpesa.AuthError{StatusCode: 401, Message: "Invalid credentials"}},
			gateway: &fakeGateway{},
			setup: func(repo *payment.MockRepository) {
				expectCreate(repo, id)
				repo.EXPECT().UpdateDescription(gomock.Any(), id, gomock.Any()).Return(nil)
			},
			verify: func(t *testing.T, _ *payment.Transaction, err error, gw *fakeGateway) {
				var authErr *mpesa.AuthError
				assert.ErrorAs(t, err, &authErr)
				assert.Zero(t, gw.calls)
			},
		},
		{
			name:    "ReferenceAlreadyAttached",
			tokens:  staticTokens{token: "tok-1"},
			gateway: &fakeGateway{resp: &mpesa.PushResponse{CheckoutRequestID: "ws_CO_2"}},
			setup: func(repo *payment.MockRepository) {
				expectCreate(repo, id)
				repo.EXPECT().AttachReference(gomock.Any(), id, gomock.Any()).
					Return(&payment.AlreadyAttachedError{ID: id, Existing: "ws_CO_1"})
			},
			verify: func(t *testing.T, _ *payment.Transaction, err error, _ *fakeGateway) {
				var attached *payment.AlreadyAttachedError
				assert.ErrorAs(t, err, &attached)
			},
		},
		{
			name:    "StorageFails",
			tokens:  staticTokens{token: "tok-1"},
			gateway: &fakeGateway{},
			setup: func(repo *payment.MockRepository) {
				repo.EXPECT().CreatePayment(gomock.Any(), gomock.Any()).Return(errors.New("connection refused"))
			},
			verify: func(t *testing.T, tx *payment.Transaction, err error, gw *fakeGateway) {
				assert.Error(t, err)
				assert.Nil(t, tx)
				assert.Zero(t, gw.calls)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := payment.NewMockRepository(ctrl)
			tt.setup(repo)

			svc := checkout.NewService(payment.NewService(repo), tt.gateway, tt.tokens)

			tx, err := svc.Initiate(context.Background(), req)
			tt.verify(t, tx, err, tt.gateway)
		})
	}
}

func TestService_Initiate_Validation(t *testing.T) {
	type testCase struct {
		name string
		req  checkout.Request
		want error
	}

	tests := []testCase{
		{name: "BadPhone", req: checkout.Request{Phone: "12345", Amount: decimal.NewFromInt(10)}, want: checkout.ErrInvalidPhone},
		{name: "ZeroAmount", req: checkout.Request{Phone: "0700000000", Amount: decimal.Zero}, want: checkout.ErrInvalidAmount},
		{name: "FractionBelowOne", req: checkout.Request{Phone: "0700000000", Amount: decimal.RequireFromString("0.5")}, want: checkout.ErrInvalidAmount},
		{name: "FractionalAmount", req: checkout.Request{Phone: "0700000000", Amount: decimal.RequireFromString("499.50")}, want: checkout.ErrInvalidAmount},
		{name: "BadEmail", req: checkout.Request{Phone: "0700000000", Amount: decimal.NewFromInt(10), Email: "jane@"}, want: checkout.ErrInvalidEmail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			gw := &fakeGateway{}
			svc := checkout.NewService(payment.NewService(payment.NewMockRepository(ctrl)), gw, staticTokens{})

			_, err := svc.Initiate(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, gw.calls)
		})
	}
}
