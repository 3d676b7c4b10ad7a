package admin

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

type paymentResponse struct {
	ID                uuid.UUID        `json:"id"`
	CheckoutRequestID *string          `json:"checkout_request_id,omitempty"`
	MerchantRequestID *string          `json:"merchant_request_id,omitempty"`
	PayerPhone        string           `json:"payer_phone"`
	PayerName         string           `json:"payer_name,omitempty"`
	PayerEmail        string           `json:"payer_email,omitempty"`
	Amount            decimal.Decimal  `json:"amount"`
	InvoiceID         *uuid.UUID       `json:"invoice_id,omitempty"`
	State             payment.State    `json:"state"`
	ReceiptNumber     *string          `json:"receipt_number,omitempty"`
	SettledAmount     *decimal.Decimal `json:"settled_amount,omitempty"`
	SettledAt         *time.Time       `json:"settled_at,omitempty"`
	Description       string           `json:"description"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         *time.Time       `json:"updated_at,omitempty"`
	ConfirmedAt       *time.Time       `json:"confirmed_at,omitempty"`
}

func toResponse(tx *payment.Transaction) paymentResponse {
	return paymentResponse{
		ID:                tx.ID,
		CheckoutRequestID: tx.GatewayReference,
		MerchantRequestID: tx.MerchantRequestID,
		PayerPhone:        tx.PayerPhone,
		PayerName:         tx.PayerName,
		PayerEmail:        tx.PayerEmail,
		Amount:            tx.Amount,
		InvoiceID:         tx.InvoiceID,
		State:             tx.State,
		ReceiptNumber:     tx.ReceiptID,
		SettledAmount:     tx.SettledAmount,
		SettledAt:         tx.SettledAt,
		Description:       tx.Description,
		CreatedAt:         tx.CreatedAt,
		UpdatedAt:         tx.UpdatedAt,
		ConfirmedAt:       tx.ConfirmedAt,
	}
}

func toResponseList(txs []*payment.Transaction) []paymentResponse {
	resp := make([]paymentResponse, len(txs))
	for i, tx := range txs {
		resp[i] = toResponse(tx)
	}

	return resp
}
