package ports

import (
	"context"
	"errors"
	"time"

	"flow402/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrRefConflict is returned by JournalRepository.Create when (tenant_id,
// ref) already exists. Callers compare with errors.Is; it signals a race
// the caller must resolve by re-reading the existing entry, not a generic
// infra failure.
var ErrRefConflict = errors.New("journal ref conflict")

// TenantRepository resolves vendor credentials to tenant records.
type TenantRepository interface {
	GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error)
}

// LedgerRepository defines the transactional balance operations backing
// the ledger engine (C4). Methods accepting pgx.Tx participate in the
// caller's transaction; GetBalance is a plain read.
type LedgerRepository interface {
	// GetBalance reads the current balance without locking. Returns
	// (0, false, nil) if the (tenant, user) pair has never been referenced.
	GetBalance(ctx context.Context, tenantID, userID uuid.UUID) (int64, bool, error)

	// UpsertCredit atomically creates-or-increments a balance row by amount
	// and returns the resulting balance. Used by credit().
	UpsertCredit(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID, amount int64) (int64, error)

	// ConditionalDebit decrements balance by amount only if the current
	// balance is >= amount, in one statement. ok=false means the row was
	// absent or the balance was insufficient; no mutation occurred.
	ConditionalDebit(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID, amount int64) (newBalance int64, ok bool, err error)
}

// JournalRepository defines persistence for immutable journal entries.
type JournalRepository interface {
	// Create inserts a journal entry within tx. Returns ErrRefConflict
	// (caller-defined sentinel, checked via errors.Is against the
	// repository's wrapped unique-violation) if (tenant_id, ref) already
	// exists.
	Create(ctx context.Context, tx pgx.Tx, entry *domain.JournalEntry) error

	// GetByRef fetches the journal entry for (tenant_id, ref), or nil if
	// none exists.
	GetByRef(ctx context.Context, tenantID uuid.UUID, ref string) (*domain.JournalEntry, error)
}

// IdempotencyRepository defines the durable HTTP-layer idempotency store
// (C3). TryClaim performs the insert-is-the-lock atomic claim: it deletes
// any expired row for key first, then attempts to insert a fresh reserved
// row. On a uniqueness conflict it returns the existing row instead of
// erroring, so the caller can still distinguish Locked/Conflict/Replay from
// that row.
type IdempotencyRepository interface {
	TryClaim(ctx context.Context, key, method, path, bodySHA string, ttl time.Duration, now time.Time) (claimed bool, existing *domain.IdempotencyRecord, err error)
	PersistResponse(ctx context.Context, key string, status int, body []byte) error
	Release(ctx context.Context, key string) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
