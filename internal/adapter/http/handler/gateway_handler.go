package handler

import (
	"io"
	"net/http"

	"flow402/internal/core/ports"
	"flow402/pkg/apperror"
	"flow402/pkg/response"

	"github.com/gin-gonic/gin"
)

// GatewayHandler exposes the x402-style authenticated debit endpoint.
type GatewayHandler struct {
	pipeline ports.PipelineService
}

// NewGatewayHandler creates a GatewayHandler.
func NewGatewayHandler(pipeline ports.PipelineService) *GatewayHandler {
	return &GatewayHandler{pipeline: pipeline}
}

// Deduct handles POST /gateway/deduct. The pipeline service owns every
// wire-shaped decision (status code, body, x-f402-sig) because the debit
// response bodies are fixed literal shapes tested by the caller, not the
// generic success/error envelope used elsewhere.
func (h *GatewayHandler) Deduct(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, apperror.ErrInvalidRequest("failed to read request body"))
		return
	}

	sigHeader := c.GetHeader("x-f402-sig")
	if sigHeader == "" {
		// x-flow402-signature is the legacy alias for x-f402-sig; gin's
		// GetHeader already canonicalizes case, so only the name varies.
		sigHeader = c.GetHeader("x-flow402-signature")
	}

	// The pipeline owns step ordering (vendor key before idempotency key),
	// so both headers are passed through unconditionally rather than
	// short-circuited here.
	result, err := h.pipeline.Deduct(c.Request.Context(), ports.DeductRequest{
		VendorKey:      c.GetHeader("x-f402-key"),
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		SigHeaderValue: sigHeader,
		BodySHAHeader:  c.GetHeader("x-f402-body-sha"),
		Body:           body,
		Method:         c.Request.Method,
		Path:           c.Request.URL.Path,
		RequestID:      requestIDFromContext(c),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	writeResult(c, result)
}

func writeResult(c *gin.Context, result *ports.PipelineResult) {
	if result.SignHeader != "" {
		c.Header("x-f402-sig", result.SignHeader)
	}
	status := result.Status
	if status == 0 {
		status = http.StatusOK
	}
	c.JSON(status, result.Body)
}

func requestIDFromContext(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return ""
}
