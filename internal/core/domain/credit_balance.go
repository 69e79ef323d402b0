package domain

import (
	"time"

	"github.com/google/uuid"
)

// DefaultCurrency is the only currency tag Flow402 understands. Currency
// is opaque and never converted (spec Non-goal).
const DefaultCurrency = "USDC"

// CreditBalance is the current balance for a (tenant, user) pair. Balance
// is always >= 0; the invariant is enforced at the mutation boundary in
// the ledger engine, not in this struct.
type CreditBalance struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	UserID         uuid.UUID `json:"user_id"`
	BalanceCredits int64     `json:"balance_credits"`
	Currency       string    `json:"currency"`
	UpdatedAt      time.Time `json:"updated_at"`
}
