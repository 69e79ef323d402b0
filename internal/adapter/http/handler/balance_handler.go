package handler

import (
	"flow402/internal/adapter/http/dto"
	"flow402/internal/core/ports"
	"flow402/pkg/apperror"
	"flow402/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// BalanceHandler exposes the read-only balance lookup endpoint.
type BalanceHandler struct {
	tenantID uuid.UUID
	ledger   ports.LedgerService
}

// NewBalanceHandler creates a BalanceHandler scoped to tenantID.
func NewBalanceHandler(tenantID uuid.UUID, ledger ports.LedgerService) *BalanceHandler {
	return &BalanceHandler{tenantID: tenantID, ledger: ledger}
}

// GetBalance handles GET /balance?userId=...
func (h *BalanceHandler) GetBalance(c *gin.Context) {
	userID, err := uuid.Parse(c.Query("userId"))
	if err != nil {
		response.Error(c, apperror.ErrInvalidRequest("userId must be a valid UUID"))
		return
	}

	balance, err := h.ledger.CheckBalance(c.Request.Context(), h.tenantID, userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.JSON(200, dto.BalanceResponse{BalanceCredits: balance})
}
