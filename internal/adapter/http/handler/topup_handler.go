package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"

	"flow402/internal/adapter/http/dto"
	"flow402/internal/core/ports"
	"flow402/pkg/apperror"
	"flow402/pkg/response"
	"flow402/pkg/sanitize"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// TopupHandler exposes the operator top-up/reset endpoints. These are
// internal surfaces: no HMAC signature, scoped to the gateway's one tenant.
type TopupHandler struct {
	tenantID uuid.UUID
	topup    ports.TopupService
}

// NewTopupHandler creates a TopupHandler scoped to tenantID.
func NewTopupHandler(tenantID uuid.UUID, topup ports.TopupService) *TopupHandler {
	return &TopupHandler{tenantID: tenantID, topup: topup}
}

// Mock handles POST /topup/mock.
func (h *TopupHandler) Mock(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.ErrInvalidRequest("failed to read request body"))
		return
	}

	var req dto.TopupRequest
	if err := json.Unmarshal(body, &req); err != nil {
		response.Error(c, apperror.ErrInvalidRequest("request body is not valid JSON"))
		return
	}
	sanitize.Struct(&req)
	if req.UserID == uuid.Nil || req.AmountCredits <= 0 {
		response.Error(c, apperror.ErrInvalidRequest("userId and amount_credits are required"))
		return
	}

	idemKey := c.GetHeader("Idempotency-Key")
	if idemKey == "" {
		response.Error(c, apperror.ErrMissingIdempotencyKey())
		return
	}

	sum := sha256.Sum256(body)
	result, err := h.topup.Topup(c.Request.Context(), ports.TopupRequest{
		TenantID:       h.tenantID,
		UserID:         req.UserID,
		AmountCredits:  req.AmountCredits,
		IdempotencyKey: idemKey,
		Method:         c.Request.Method,
		Path:           c.Request.URL.Path,
		BodySHA:        hex.EncodeToString(sum[:]),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	writeResult(c, result)
}

// Reset handles POST /topup/reset.
func (h *TopupHandler) Reset(c *gin.Context) {
	var req dto.ResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.ErrInvalidRequest(err.Error()))
		return
	}
	sanitize.Struct(&req)

	result, err := h.topup.Reset(c.Request.Context(), h.tenantID, req.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}

	writeResult(c, result)
}
