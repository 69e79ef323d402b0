package dto

import "github.com/google/uuid"

// TopupRequest is the request body for POST /topup/mock.
type TopupRequest struct {
	UserID        uuid.UUID `json:"userId" binding:"required"`
	AmountCredits int64     `json:"amount_credits" binding:"required,gt=0"`
}

// BalanceResponse is the response body for GET /balance.
type BalanceResponse struct {
	BalanceCredits int64 `json:"balance_credits"`
}

// ResetRequest is the request body for POST /topup/reset.
type ResetRequest struct {
	UserID uuid.UUID `json:"userId" binding:"required"`
}
