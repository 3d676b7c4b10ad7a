package callback

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/MrJamesThe3rd/lipa/internal/callback"
)

const maxBodyBytes = 64 << 10

type Handler struct {
	processor *callback.Processor
}

func NewHandler(processor *callback.Processor) *Handler {
	return &Handler{processor: processor}
}

type ackResponse struct {
	Message string `json:"message"`
}

// ServeHTTP acknowledges with 200 whatever the processing outcome, including panics.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("callback handler panicked", "panic", rec)
		}

		acknowledge(w)
	}()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		slog.Warn("failed to read callback body", "error", err)
	}

	// Processing continues if the provider hangs up.
	h.processor.ProcessRaw(context.WithoutCancel(r.Context()), body)
}

func acknowledge(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(ackResponse{Message: "callback received and processed"}); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
