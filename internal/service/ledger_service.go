package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"flow402/internal/core/domain"
	"flow402/internal/core/ports"
	"flow402/pkg/apperror"

	"github.com/google/uuid"
)

// LedgerEngine implements ports.LedgerService. Both Credit and Debit are
// single-transaction, ref-idempotent mutations per (tenant, user).
type LedgerEngine struct {
	ledgerRepo  ports.LedgerRepository
	journalRepo ports.JournalRepository
	tx          ports.DBTransactor
}

// NewLedgerEngine creates a ledger engine backed by the given repositories
// and transactor.
func NewLedgerEngine(ledgerRepo ports.LedgerRepository, journalRepo ports.JournalRepository, tx ports.DBTransactor) *LedgerEngine {
	return &LedgerEngine{ledgerRepo: ledgerRepo, journalRepo: journalRepo, tx: tx}
}

// GetBalance implements ports.LedgerService. A user never referenced by a
// mutation has no CreditBalance row yet (lazily created on first credit or
// debit); callers that need to distinguish "never referenced" from "zero
// balance" use CheckBalance instead.
func (e *LedgerEngine) GetBalance(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	balance, _, err := e.ledgerRepo.GetBalance(ctx, tenantID, userID)
	if err != nil {
		return 0, apperror.ErrBalanceLookupFailed(err)
	}
	return balance, nil
}

// CheckBalance implements ports.LedgerService.CheckBalance: like GetBalance,
// but surfaces apperror.ErrUserNotFound when the (tenant, user) pair has
// never had a CreditBalance row created, for surfaces that must return 404
// on an unreferenced user rather than treat them as a zero balance.
func (e *LedgerEngine) CheckBalance(ctx context.Context, tenantID, userID uuid.UUID) (int64, error) {
	balance, found, err := e.ledgerRepo.GetBalance(ctx, tenantID, userID)
	if err != nil {
		return 0, apperror.ErrBalanceLookupFailed(err)
	}
	if !found {
		return 0, apperror.ErrUserNotFound()
	}
	return balance, nil
}

// Credit implements ports.LedgerService.Credit: amount > 0 required; kind
// defaults to topup; ref-level idempotency per (tenant, ref).
func (e *LedgerEngine) Credit(ctx context.Context, req ports.CreditRequest) (int64, error) {
	if req.TenantID == uuid.Nil {
		return 0, apperror.ErrInvalidRequest(apperror.ErrTenantRequired.Error())
	}
	if req.UserID == uuid.Nil {
		return 0, apperror.ErrInvalidRequest(apperror.ErrUserRequired.Error())
	}
	if req.Amount <= 0 {
		return 0, apperror.ErrInvalidRequest(apperror.ErrAmountMustBePositive.Error())
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.JournalKindTopup
	}

	ref := req.Ref
	if ref == "" {
		ref = generateRef("topup")
	}

	if existing, err := e.journalRepo.GetByRef(ctx, req.TenantID, ref); err != nil {
		return 0, apperror.ErrMutationFailed(err)
	} else if existing != nil {
		if existing.Kind.IsCredit() {
			return e.GetBalance(ctx, req.TenantID, req.UserID)
		}
		return 0, apperror.ErrRefClassMismatch()
	}

	tx, err := e.tx.Begin(ctx)
	if err != nil {
		return 0, apperror.ErrMutationFailed(err)
	}
	defer tx.Rollback(ctx)

	newBalance, err := e.ledgerRepo.UpsertCredit(ctx, tx, req.TenantID, req.UserID, req.Amount)
	if err != nil {
		return 0, apperror.ErrMutationFailed(err)
	}

	entry := &domain.JournalEntry{
		ID:            uuid.New(),
		TenantID:      req.TenantID,
		UserID:        req.UserID,
		Kind:          kind,
		AmountCredits: req.Amount,
		Ref:           ref,
		Metadata:      req.Metadata,
	}
	if err := e.journalRepo.Create(ctx, tx, entry); err != nil {
		if errors.Is(err, ports.ErrRefConflict) {
			return e.resolveConcurrentRef(ctx, req.TenantID, req.UserID, ref, func(k domain.JournalKind) bool { return k.IsCredit() })
		}
		return 0, apperror.ErrMutationFailed(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperror.ErrMutationFailed(err)
	}
	return newBalance, nil
}

// Debit implements ports.LedgerService.Debit: amount > 0 and ref required;
// ref-level idempotency symmetrical with Credit; insufficient balance
// surfaces as apperror.ErrInsufficientFunds.
func (e *LedgerEngine) Debit(ctx context.Context, req ports.DebitRequest) (int64, error) {
	if req.TenantID == uuid.Nil {
		return 0, apperror.ErrInvalidRequest(apperror.ErrTenantRequired.Error())
	}
	if req.UserID == uuid.Nil {
		return 0, apperror.ErrInvalidRequest(apperror.ErrUserRequired.Error())
	}
	if req.Amount <= 0 {
		return 0, apperror.ErrInvalidRequest(apperror.ErrAmountMustBePositive.Error())
	}
	if req.Ref == "" {
		return 0, apperror.ErrInvalidRequest(apperror.ErrRefRequired.Error())
	}

	kind := req.Kind
	if kind == "" {
		kind = domain.JournalKindDeduct
	}

	if existing, err := e.journalRepo.GetByRef(ctx, req.TenantID, req.Ref); err != nil {
		return 0, apperror.ErrMutationFailed(err)
	} else if existing != nil {
		if existing.Kind == kind {
			return e.GetBalance(ctx, req.TenantID, req.UserID)
		}
		return 0, apperror.ErrRefClassMismatch()
	}

	tx, err := e.tx.Begin(ctx)
	if err != nil {
		return 0, apperror.ErrMutationFailed(err)
	}
	defer tx.Rollback(ctx)

	newBalance, ok, err := e.ledgerRepo.ConditionalDebit(ctx, tx, req.TenantID, req.UserID, req.Amount)
	if err != nil {
		return 0, apperror.ErrMutationFailed(err)
	}
	if !ok {
		// No journal entry is written; the transaction is abandoned by the
		// deferred rollback.
		return 0, apperror.ErrInsufficientFunds
	}

	entry := &domain.JournalEntry{
		ID:            uuid.New(),
		TenantID:      req.TenantID,
		UserID:        req.UserID,
		Kind:          kind,
		AmountCredits: req.Amount,
		Ref:           req.Ref,
		Metadata:      req.Metadata,
	}
	if err := e.journalRepo.Create(ctx, tx, entry); err != nil {
		if errors.Is(err, ports.ErrRefConflict) {
			return e.resolveConcurrentRef(ctx, req.TenantID, req.UserID, req.Ref, func(k domain.JournalKind) bool { return k == kind })
		}
		return 0, apperror.ErrMutationFailed(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, apperror.ErrMutationFailed(err)
	}
	return newBalance, nil
}

// resolveConcurrentRef re-reads the journal entry a concurrent writer just
// inserted for ref and replays the same idempotent-replay / class-mismatch
// decision Credit/Debit would have made had they observed it first.
func (e *LedgerEngine) resolveConcurrentRef(ctx context.Context, tenantID, userID uuid.UUID, ref string, sameClass func(domain.JournalKind) bool) (int64, error) {
	entry, err := e.journalRepo.GetByRef(ctx, tenantID, ref)
	if err != nil {
		return 0, apperror.ErrMutationFailed(err)
	}
	if entry == nil {
		return 0, apperror.ErrMutationFailed(fmt.Errorf("ref conflict reported but entry not found"))
	}
	if !sameClass(entry.Kind) {
		return 0, apperror.ErrRefClassMismatch()
	}
	return e.GetBalance(ctx, tenantID, userID)
}

// generateRef produces a "<prefix>_<random-hex>" reference.
func generateRef(prefix string) string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("%s_%s", prefix, hex.EncodeToString(buf))
}
