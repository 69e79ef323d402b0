package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"flow402/internal/core/domain"
	"flow402/internal/core/ports"
	"flow402/pkg/apperror"
	"flow402/pkg/sanitize"

	"github.com/google/uuid"
)

// deductBody is the wire shape of the /gateway/deduct request body.
type deductBody struct {
	UserID        uuid.UUID `json:"userId"`
	Ref           string    `json:"ref"`
	AmountCredits int64     `json:"amount_credits"`
}

func (b deductBody) validate() error {
	if b.UserID == uuid.Nil {
		return apperror.ErrInvalidRequest("userId is required")
	}
	if len(b.Ref) < 6 {
		return apperror.ErrInvalidRequest("ref must be at least 6 characters")
	}
	if b.AmountCredits <= 0 {
		return apperror.ErrInvalidRequest("amount_credits must be a positive integer")
	}
	return nil
}

type okResponse struct {
	OK         bool  `json:"ok"`
	NewBalance int64 `json:"new_balance"`
}

type errorBody struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error"`
	Reason    string `json:"reason,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type paywallEnvelope struct {
	PriceCredits int64  `json:"price_credits"`
	Currency     string `json:"currency"`
	TopupURL     string `json:"topup_url"`
}

// GatewayPipeline implements ports.PipelineService, orchestrating C1 (signature),
// C2 (tenant registry), C3 (idempotency) and C4 (ledger) per request.
type GatewayPipeline struct {
	tenantID  uuid.UUID // the one tenant this process is authorized to serve
	registry  ports.TenantRegistry
	verifier  ports.SignatureVerifier
	coord     ports.IdempotencyCoordinator
	ledger    ports.LedgerService
}

// NewGatewayPipeline creates a pipeline scoped to tenantID.
func NewGatewayPipeline(tenantID uuid.UUID, registry ports.TenantRegistry, verifier ports.SignatureVerifier, coord ports.IdempotencyCoordinator, ledger ports.LedgerService) *GatewayPipeline {
	return &GatewayPipeline{tenantID: tenantID, registry: registry, verifier: verifier, coord: coord, ledger: ledger}
}

// Deduct implements ports.PipelineService.Deduct, running the 10-step
// authenticated debit sequence.
func (p *GatewayPipeline) Deduct(ctx context.Context, req ports.DeductRequest) (*ports.PipelineResult, error) {
	if strings.TrimSpace(req.VendorKey) == "" {
		return errorResult(req.RequestID, apperror.ErrMissingVendorKey()), nil
	}

	idemKey := strings.TrimSpace(req.IdempotencyKey)
	if idemKey == "" {
		return errorResult(req.RequestID, apperror.ErrMissingIdempotencyKey()), nil
	}

	tenant, err := p.registry.Resolve(ctx, req.VendorKey)
	if err != nil {
		return errorResult(req.RequestID, err), nil
	}
	if tenant.ID != p.tenantID {
		return errorResult(req.RequestID, apperror.ErrVendorMismatch()), nil
	}

	now := time.Now()
	if _, err := p.verifier.Verify(tenant.SigningSecret, req.SigHeaderValue, req.BodySHAHeader, req.Body, now); err != nil {
		return errorResult(req.RequestID, err), nil
	}

	// Claim happens right after signature verification (so unauthenticated
	// floods cannot pollute the store) and before any body-derived side
	// effects, per the idempotency store's contract with the pipeline.
	outcome, err := p.coord.Claim(ctx, idemKey, req.Method, req.Path, req.BodySHAHeader)
	if err != nil {
		return errorResult(req.RequestID, err), nil
	}

	switch outcome.Kind {
	case ports.IdempotencyLocked:
		return errorResult(req.RequestID, apperror.ErrRequestInProgress()), nil
	case ports.IdempotencyConflict:
		return errorResult(req.RequestID, apperror.WithReason("idempotency_conflict", outcome.ConflictReason, http.StatusConflict)), nil
	case ports.IdempotencyReplay:
		return &ports.PipelineResult{Status: outcome.ReplayStatus, Body: json.RawMessage(outcome.ReplayBody)}, nil
	}

	var body deductBody
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return p.persistAndReturn(ctx, idemKey, req.RequestID, apperror.ErrInvalidRequest("request body is not valid JSON"))
	}
	sanitize.Struct(&body)
	if err := body.validate(); err != nil {
		return p.persistAndReturn(ctx, idemKey, req.RequestID, err)
	}

	balance, err := p.ledger.GetBalance(ctx, tenant.ID, body.UserID)
	if err != nil {
		_ = p.coord.Release(ctx, idemKey)
		return errorResult(req.RequestID, err), nil
	}
	if balance < body.AmountCredits {
		return p.persistPaywall(ctx, idemKey, req.RequestID, tenant.SigningSecret, body.AmountCredits, body.UserID, now)
	}

	newBalance, err := p.ledger.Debit(ctx, ports.DebitRequest{
		TenantID: tenant.ID, UserID: body.UserID, Amount: body.AmountCredits, Ref: body.Ref,
	})
	if err != nil {
		if errors.Is(err, apperror.ErrInsufficientFunds) {
			return p.persistPaywall(ctx, idemKey, req.RequestID, tenant.SigningSecret, body.AmountCredits, body.UserID, now)
		}
		// Any other failure after claim but before a ledger side effect:
		// release so a retry can proceed.
		_ = p.coord.Release(ctx, idemKey)
		return errorResult(req.RequestID, err), nil
	}

	return p.persistAndReturn(ctx, idemKey, req.RequestID, nil, okResponse{OK: true, NewBalance: newBalance})
}

// persistPaywall builds, signs, persists and returns the 402 envelope.
func (p *GatewayPipeline) persistPaywall(ctx context.Context, idemKey, requestID, secret string, amount int64, userID uuid.UUID, now time.Time) (*ports.PipelineResult, error) {
	envelope := paywallEnvelope{
		PriceCredits: amount,
		Currency:     domain.DefaultCurrency,
		TopupURL:     fmt.Sprintf("/topup?need=%d&user=%s", amount, userID.String()),
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		_ = p.coord.Release(ctx, idemKey)
		return errorResult(requestID, apperror.InternalError(err)), nil
	}

	signHeader := p.verifier.Sign(secret, raw, now)

	if err := p.coord.PersistResponse(ctx, idemKey, http.StatusPaymentRequired, raw); err != nil {
		return errorResult(requestID, err), nil
	}

	return &ports.PipelineResult{Status: http.StatusPaymentRequired, Body: json.RawMessage(raw), SignHeader: signHeader}, nil
}

// persistAndReturn marshals either the supplied success value or an error
// into the claim's stored response, then returns it as the pipeline result.
func (p *GatewayPipeline) persistAndReturn(ctx context.Context, idemKey, requestID string, errVal error, successVal ...okResponse) (*ports.PipelineResult, error) {
	var (
		status int
		raw    []byte
		err    error
	)

	if errVal != nil {
		var appErr *apperror.AppError
		if errors.As(errVal, &appErr) {
			status = appErr.HTTPStatus
			raw, err = json.Marshal(errorBody{OK: false, Error: appErr.Code, Reason: appErr.Reason, RequestID: requestID})
		} else {
			status = http.StatusInternalServerError
			raw, err = json.Marshal(errorBody{OK: false, Error: "internal_error", RequestID: requestID})
		}
	} else {
		status = http.StatusOK
		raw, err = json.Marshal(successVal[0])
	}
	if err != nil {
		return errorResult(requestID, apperror.InternalError(err)), nil
	}

	if perr := p.coord.PersistResponse(ctx, idemKey, status, raw); perr != nil {
		return errorResult(requestID, perr), nil
	}

	return &ports.PipelineResult{Status: status, Body: json.RawMessage(raw)}, nil
}

// errorResult maps any error to its HTTP-shaped result without touching the
// idempotency store (used for errors that occur before a claim exists, or
// that the store contract says must not be persisted). requestID is carried
// in the body alongside reason, matching the handler-layer response.Error
// envelope's request_id field.
func errorResult(requestID string, err error) *ports.PipelineResult {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return &ports.PipelineResult{
			Status: appErr.HTTPStatus,
			Body:   errorBody{OK: false, Error: appErr.Code, Reason: appErr.Reason, RequestID: requestID},
		}
	}
	return &ports.PipelineResult{
		Status: http.StatusInternalServerError,
		Body:   errorBody{OK: false, Error: "internal_error", RequestID: requestID},
	}
}
