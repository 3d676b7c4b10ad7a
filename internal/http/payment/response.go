package payment

import (
	"github.com/google/uuid"

	"github.com/MrJamesThe3rd/lipa/internal/payment"
)

type initiateResponse struct {
	ID        uuid.UUID     `json:"id"`
	Status    payment.State `json:"status"`
	StatusURL string        `json:"status_url"`
}

type statusResponse struct {
	Status  payment.Status `json:"status"`
	Message string         `json:"message"`
}

func toInitiateResponse(tx *payment.Transaction) initiateResponse {
	return initiateResponse{
		ID:        tx.ID,
		Status:    tx.State,
		StatusURL: "/check-status/" + tx.ID.String(),
	}
}
