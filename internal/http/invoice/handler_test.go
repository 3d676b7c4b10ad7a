package invoice_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	httpinvoice "github.com/MrJamesThe3rd/lipa/internal/http/invoice"
	"github.com/MrJamesThe3rd/lipa/internal/invoice"
)

func newRouter(repo *invoice.MockRepository) http.Handler {
	r := chi.NewRouter()
	r.Route("/invoices", httpinvoice.NewHandler(invoice.NewService(repo)).Routes)

	return r
}

func TestHandler_Create(t *testing.T) {
	type testCase struct {
		name     string
		body     string
		setup    func(repo *invoice.MockRepository)
		wantCode int
	}

	tests := []testCase{
		{
			name: "Created",
			body: `{"number":"INV-001","tax_rate":"0.16"}`,
			setup: func(repo *invoice.MockRepository) {
				repo.EXPECT().CreateInvoice(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, inv *invoice.Invoice) error {
					assert.Equal(t, "INV-001", inv.Number)
					assert.Equal(t, invoice.StatusDraft, inv.Status)
					assert.True(t, decimal.RequireFromString("0.16").Equal(inv.TaxRate))
					inv.ID = uuid.New()

					return nil
				})
			},
			wantCode: http.StatusCreated,
		},
		{
			name:     "MissingNumber",
			body:     `{"tax_rate":"0.16"}`,
			setup:    func(repo *invoice.MockRepository) {},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "MalformedBody",
			body:     `{"number":`,
			setup:    func(repo *invoice.MockRepository) {},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			repo := invoice.NewMockRepository(ctrl)
			tt.setup(repo)

			req := httptest.NewRequest(http.MethodPost, "/invoices/", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			newRouter(repo).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantCode, rec.Code)
		})
	}
}

func TestHandler_Get(t *testing.T) {
	id := uuid.New()

	t.Run("WithItems", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := invoice.NewMockRepository(ctrl)

		repo.EXPECT().GetInvoice(gomock.Any(), id).Return(&invoice.Invoice{
			ID: id, Number: "INV-002", Status: invoice.StatusSent, TotalAmount: decimal.NewFromInt(116),
		}, nil)
		repo.EXPECT().ListItems(gomock.Any(), id).Return([]*invoice.Item{
			{InvoiceID: id, Description: "Logo design", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(100)},
		}, nil)

		rec := httptest.NewRecorder()
		newRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/"+id.String(), nil))

		require.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Number string `json:"number"`
			Status string `json:"status"`
			Items  []struct {
				Description string `json:"description"`
			} `json:"items"`
		}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "INV-002", body.Number)
		assert.Equal(t, "sent", body.Status)
		require.Len(t, body.Items, 1)
		assert.Equal(t, "Logo design", body.Items[0].Description)
	})

	t.Run("NotFound", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		repo := invoice.NewMockRepository(ctrl)
		repo.EXPECT().GetInvoice(gomock.Any(), id).Return(nil, invoice.ErrNotFound)

		rec := httptest.NewRecorder()
		newRouter(repo).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/"+id.String(), nil))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("InvalidID", func(t *testing.T) {
		rec := httptest.NewRecorder()
		newRouter(invoice.NewMockRepository(gomock.NewController(t))).
			ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/invoices/nope", nil))

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_AddItemThenRecalculate(t *testing.T) {
	id := uuid.New()
	ctrl := gomock.NewController(t)
	repo := invoice.NewMockRepository(ctrl)

	inv := &invoice.Invoice{ID: id, Number: "INV-003", Status: invoice.StatusDraft, TaxRate: decimal.RequireFromString("0.16")}
	item := &invoice.Item{InvoiceID: id, Quantity: decimal.NewFromInt(2), UnitPrice: decimal.NewFromInt(50)}

	gomock.InOrder(
		repo.EXPECT().GetInvoice(gomock.Any(), id).Return(inv, nil),
		repo.EXPECT().CreateItem(gomock.Any(), gomock.Any()).Return(nil),
		repo.EXPECT().GetInvoice(gomock.Any(), id).Return(inv, nil),
		repo.EXPECT().ListItems(gomock.Any(), id).Return([]*invoice.Item{item}, nil),
		repo.EXPECT().UpdateTotals(gomock.Any(), id, gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ uuid.UUID, subtotal, total decimal.Decimal) error {
				assert.True(t, decimal.NewFromInt(100).Equal(subtotal))
				assert.True(t, decimal.NewFromInt(116).Equal(total))

				return nil
			}),
	)

	router := newRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/"+id.String()+"/items",
		strings.NewReader(`{"description":"Banner","quantity":"2","unit_price":"50"}`)))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/invoices/"+id.String()+"/recalculate", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Subtotal    decimal.Decimal `json:"subtotal"`
		TotalAmount decimal.Decimal `json:"total_amount"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.True(t, decimal.NewFromInt(116).Equal(body.TotalAmount))
	assert.True(t, decimal.NewFromInt(100).Equal(body.Subtotal))
}
