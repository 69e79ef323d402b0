package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"flow402/internal/core/domain"
	"flow402/internal/core/ports"
	"flow402/pkg/apperror"

	"github.com/google/uuid"
)

type topupOKResponse struct {
	OK bool `json:"ok"`
}

type resetResponse struct {
	OK                   bool  `json:"ok"`
	PreviousBalanceCredits int64 `json:"previous_balance_credits"`
	NewBalanceCredits      int64 `json:"new_balance_credits"`
}

// TopupEngine implements ports.TopupService. Unlike the gateway pipeline,
// top-up traffic is internal (operator surfaces) and is not HMAC-signed;
// it still requires an Idempotency-Key and goes through the same C3 store.
type TopupEngine struct {
	coord  ports.IdempotencyCoordinator
	ledger ports.LedgerService
}

// NewTopupEngine creates a top-up service backed by coord and ledger.
func NewTopupEngine(coord ports.IdempotencyCoordinator, ledger ports.LedgerService) *TopupEngine {
	return &TopupEngine{coord: coord, ledger: ledger}
}

// Topup implements ports.TopupService.Topup.
func (e *TopupEngine) Topup(ctx context.Context, req ports.TopupRequest) (*ports.PipelineResult, error) {
	idemKey := strings.TrimSpace(req.IdempotencyKey)
	if idemKey == "" {
		return errorResult("", apperror.ErrMissingIdempotencyKey()), nil
	}
	if req.UserID == uuid.Nil {
		return errorResult("", apperror.ErrInvalidRequest("userId is required")), nil
	}
	if req.AmountCredits <= 0 {
		return errorResult("", apperror.ErrInvalidRequest("amount_credits must be a positive integer")), nil
	}

	outcome, err := e.coord.Claim(ctx, idemKey, req.Method, req.Path, req.BodySHA)
	if err != nil {
		return errorResult("", err), nil
	}

	switch outcome.Kind {
	case ports.IdempotencyLocked:
		return errorResult("", apperror.ErrRequestInProgress()), nil
	case ports.IdempotencyConflict:
		return errorResult("", apperror.WithReason("idempotency_conflict", outcome.ConflictReason, http.StatusConflict)), nil
	case ports.IdempotencyReplay:
		return &ports.PipelineResult{Status: outcome.ReplayStatus, Body: json.RawMessage(outcome.ReplayBody)}, nil
	}

	ref := fmt.Sprintf("dashboard_topup_%d", time.Now().UnixMilli())
	_, err = e.ledger.Credit(ctx, ports.CreditRequest{
		TenantID: req.TenantID,
		UserID:   req.UserID,
		Amount:   req.AmountCredits,
		Kind:     domain.JournalKindTopup,
		Ref:      ref,
	})
	if err != nil {
		_ = e.coord.Release(ctx, idemKey)
		return errorResult("", err), nil
	}

	raw, err := json.Marshal(topupOKResponse{OK: true})
	if err != nil {
		return errorResult("", apperror.InternalError(err)), nil
	}
	if perr := e.coord.PersistResponse(ctx, idemKey, http.StatusOK, raw); perr != nil {
		return errorResult("", perr), nil
	}

	return &ports.PipelineResult{Status: http.StatusOK, Body: json.RawMessage(raw)}, nil
}

// Reset implements ports.TopupService.Reset: zeroes a balance and writes a
// manual_reset journal entry for the previous amount. Not HMAC-signed, not
// idempotency-keyed (operator-only, irreversible by design).
func (e *TopupEngine) Reset(ctx context.Context, tenantID, userID uuid.UUID) (*ports.PipelineResult, error) {
	previous, err := e.ledger.GetBalance(ctx, tenantID, userID)
	if err != nil {
		return errorResult("", err), nil
	}

	if previous > 0 {
		ref := fmt.Sprintf("manual_reset_%d", time.Now().UnixMilli())
		if _, err := e.ledger.Debit(ctx, ports.DebitRequest{
			TenantID: tenantID,
			UserID:   userID,
			Amount:   previous,
			Ref:      ref,
			Kind:     domain.JournalKindManualReset,
		}); err != nil {
			return errorResult("", err), nil
		}
	}

	raw, err := json.Marshal(resetResponse{OK: true, PreviousBalanceCredits: previous, NewBalanceCredits: 0})
	if err != nil {
		return errorResult("", apperror.InternalError(err)), nil
	}
	return &ports.PipelineResult{Status: http.StatusOK, Body: json.RawMessage(raw)}, nil
}
