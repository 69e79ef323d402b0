package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// LedgerRepo implements ports.LedgerRepository against the
// credit_balances table, keyed by (tenant_id, user_id).
type LedgerRepo struct {
	pool Pool
}

// NewLedgerRepo creates a new LedgerRepo.
func NewLedgerRepo(pool Pool) *LedgerRepo {
	return &LedgerRepo{pool: pool}
}

// GetBalance reads the current balance without locking. Returns (0, false,
// nil) if the (tenant, user) pair has never been referenced.
func (r *LedgerRepo) GetBalance(ctx context.Context, tenantID, userID uuid.UUID) (int64, bool, error) {
	query := `SELECT balance_credits FROM credit_balances WHERE tenant_id = $1 AND user_id = $2`

	var balance int64
	err := r.pool.QueryRow(ctx, query, tenantID, userID).Scan(&balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("get balance: %w", err)
	}
	return balance, true, nil
}

// UpsertCredit atomically creates-or-increments a balance row by amount and
// returns the resulting balance.
func (r *LedgerRepo) UpsertCredit(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID, amount int64) (int64, error) {
	query := `INSERT INTO credit_balances (tenant_id, user_id, balance_credits, currency, updated_at)
		VALUES ($1, $2, $3, 'USDC', NOW())
		ON CONFLICT (tenant_id, user_id)
		DO UPDATE SET balance_credits = credit_balances.balance_credits + EXCLUDED.balance_credits, updated_at = NOW()
		RETURNING balance_credits`

	var newBalance int64
	if err := tx.QueryRow(ctx, query, tenantID, userID, amount).Scan(&newBalance); err != nil {
		return 0, fmt.Errorf("upsert credit: %w", err)
	}
	return newBalance, nil
}

// ConditionalDebit decrements balance by amount only if the current balance
// is >= amount, in one statement. This is a single atomic UPDATE guarded by
// a WHERE clause rather than SELECT ... FOR UPDATE followed by a compare:
// the WHERE clause itself is the concurrency control, so no row lock is
// held across a round trip to application code.
func (r *LedgerRepo) ConditionalDebit(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID, amount int64) (int64, bool, error) {
	query := `UPDATE credit_balances
		SET balance_credits = balance_credits - $3, updated_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2 AND balance_credits >= $3
		RETURNING balance_credits`

	var newBalance int64
	err := tx.QueryRow(ctx, query, tenantID, userID, amount).Scan(&newBalance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("conditional debit: %w", err)
	}
	return newBalance, true, nil
}
