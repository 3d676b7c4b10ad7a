package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/lipa/internal/auth"
	"github.com/MrJamesThe3rd/lipa/internal/payment"
	"github.com/MrJamesThe3rd/lipa/internal/reconcile"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

type Handler struct {
	payments *payment.Service
	sweeper  *reconcile.Sweeper
}

func NewHandler(payments *payment.Service, sweeper *reconcile.Sweeper) *Handler {
	return &Handler{payments: payments, sweeper: sweeper}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/payments", h.list)
	r.Get("/payments/{id}", h.get)
	r.Post("/payments/{id}/reconcile", h.reconcileOne)
	r.Post("/reconcile", h.sweep)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	filter := payment.ListFilter{Limit: defaultLimit}

	if s := r.URL.Query().Get("state"); s != "" {
		state := payment.State(s)
		if !state.Valid() {
			http.Error(w, "invalid state", http.StatusBadRequest)
			return
		}

		filter.State = new(state)
	}

	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}

		filter.Limit = min(n, maxLimit)
	}

	txs, err := h.payments.List(r.Context(), filter)
	if err != nil {
		slog.Error("failed to list payments", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, toResponseList(txs))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	tx, err := h.payments.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}

		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	writeJSON(w, http.StatusOK, toResponse(tx))
}

type reconcileResponse struct {
	ID      uuid.UUID `json:"id"`
	Outcome string    `json:"outcome"`
}

func (h *Handler) reconcileOne(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	outcome, err := h.sweeper.ReconcileOne(r.Context(), id)
	if err != nil {
		if errors.Is(err, payment.ErrNotFound) {
			http.Error(w, "payment not found", http.StatusNotFound)
			return
		}

		slog.Error("failed to reconcile payment", "payment", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	slog.Info("operator reconciled payment", "operator", operator(r), "payment", id, "outcome", outcome)
	writeJSON(w, http.StatusOK, reconcileResponse{ID: id, Outcome: outcome})
}

type sweepResponse struct {
	Checked  int            `json:"checked"`
	Outcomes map[string]int `json:"outcomes"`
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	report, err := h.sweeper.Sweep(r.Context())
	if err != nil {
		slog.Error("failed to run reconcile sweep", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)

		return
	}

	slog.Info("operator ran reconcile sweep", "operator", operator(r), "checked", report.Checked)
	writeJSON(w, http.StatusOK, sweepResponse{Checked: report.Checked, Outcomes: report.Outcomes})
}

// operator names the caller for audit logs. Unauthenticated deployments log "anonymous".
func operator(r *http.Request) string {
	if c, ok := auth.FromContext(r.Context()); ok && c.Subject != "" {
		return c.Subject
	}

	return "anonymous"
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
