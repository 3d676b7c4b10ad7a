package payment

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrJamesThe3rd/lipa/internal/checkout"
	"github.com/MrJamesThe3rd/lipa/internal/mpesa"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

type Handler struct {
	checkout *checkout.Service
	payments *payment.Service
}

func NewHandler(checkout *checkout.Service, payments *payment.Service) *Handler {
	return &Handler{checkout: checkout, payments: payments}
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.initiate)
	r.Get("/{id}/status", h.Status)
}

type initiateRequest struct {
	Phone     string          `json:"phone"`
	Amount    decimal.Decimal `json:"amount"`
	Name      string          `json:"name"`
	Email     string          `json:"email"`
	InvoiceID *uuid.UUID      `json:"invoice_id,omitempty"`
}

func (h *Handler) initiate(w http.ResponseWriter, r *http.Request) {
	var req initiateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.checkout.Initiate(r.Context(), checkout.Request{
		Phone:     req.Phone,
		Amount:    req.Amount,
		Email:     req.Email,
		Name:      req.Name,
		InvoiceID: req.InvoiceID,
	})
	if err != nil {
		writeInitiateError(w, err)
		return
	}

	resp := toInitiateResponse(tx)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Location", resp.StatusURL)
	w.WriteHeader(http.StatusAccepted)

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writeInitiateError(w http.ResponseWriter, err error) {
	var (
		authErr *mpesa.AuthError
		reqErr  *mpesa.RequestError
		respErr *mpesa.ResponseError
	)

	switch {
	case errors.Is(err, checkout.ErrInvalidPhone),
		errors.Is(err, checkout.ErrInvalidAmount),
		errors.Is(err, checkout.ErrInvalidEmail):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &authErr), errors.As(err, &reqErr), errors.As(err, &respErr):
		http.Error(w, "payment provider unavailable, please try again", http.StatusBadGateway)
	default:
		slog.Error("failed to initiate payment", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// Status answers a polling client. Unknown and malformed ids both read as NOT_FOUND.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	result := payment.StatusResult{Status: payment.StatusNotFound, Message: "Transaction not found"}

	if id, err := uuid.Parse(chi.URLParam(r, "id")); err == nil {
		result, err = h.payments.CheckStatus(r.Context(), id)
		if err != nil {
			slog.Error("failed to check payment status", "payment", id, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)

			return
		}
	}

	code := http.StatusOK
	if result.Status == payment.StatusNotFound {
		code = http.StatusNotFound
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(statusResponse{Status: result.Status, Message: result.Message}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
