package integration

import (
	"context"
	"sync"
	"time"

	"flow402/internal/core/domain"
	"flow402/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Tenant Repo ---

type inMemoryTenantRepo struct {
	mu      sync.RWMutex
	tenants map[uuid.UUID]*domain.Tenant
}

func newInMemoryTenantRepo() *inMemoryTenantRepo {
	return &inMemoryTenantRepo{tenants: make(map[uuid.UUID]*domain.Tenant)}
}

func (r *inMemoryTenantRepo) add(t *domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
}

func (r *inMemoryTenantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.APIKey == apiKey {
			return t, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, t := range r.tenants {
		if t.Slug == slug {
			return t, nil
		}
	}
	return nil, nil
}

func (r *inMemoryTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, nil
	}
	return t, nil
}

// --- In-Memory Ledger Repo ---
//
// ConditionalDebit and UpsertCredit are guarded by the same mutex as
// GetBalance, so this in-memory store (unlike the teacher's lock-free
// in-memory repos) actually honors the atomic-UPDATE contract real
// PostgreSQL gives ConditionalDebit: the concurrency test below only holds
// if double-spending is structurally impossible here too.

type inMemoryLedgerRepo struct {
	mu       sync.Mutex
	balances map[string]int64
}

func newInMemoryLedgerRepo() *inMemoryLedgerRepo {
	return &inMemoryLedgerRepo{balances: make(map[string]int64)}
}

func ledgerKey(tenantID, userID uuid.UUID) string {
	return tenantID.String() + ":" + userID.String()
}

func (r *inMemoryLedgerRepo) GetBalance(ctx context.Context, tenantID, userID uuid.UUID) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	bal, ok := r.balances[ledgerKey(tenantID, userID)]
	return bal, ok, nil
}

func (r *inMemoryLedgerRepo) UpsertCredit(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID, amount int64) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ledgerKey(tenantID, userID)
	r.balances[key] += amount
	return r.balances[key], nil
}

func (r *inMemoryLedgerRepo) ConditionalDebit(ctx context.Context, tx pgx.Tx, tenantID, userID uuid.UUID, amount int64) (int64, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := ledgerKey(tenantID, userID)
	bal := r.balances[key]
	if bal < amount {
		return 0, false, nil
	}
	r.balances[key] = bal - amount
	return r.balances[key], true, nil
}

// --- In-Memory Journal Repo ---

type inMemoryJournalRepo struct {
	mu      sync.Mutex
	byRef   map[string]*domain.JournalEntry // tenantID.String()+":"+ref -> entry
}

func newInMemoryJournalRepo() *inMemoryJournalRepo {
	return &inMemoryJournalRepo{byRef: make(map[string]*domain.JournalEntry)}
}

func journalKey(tenantID uuid.UUID, ref string) string {
	return tenantID.String() + ":" + ref
}

func (r *inMemoryJournalRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.JournalEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := journalKey(entry.TenantID, entry.Ref)
	if _, exists := r.byRef[key]; exists {
		return ports.ErrRefConflict
	}
	entry.CreatedAt = time.Now()
	r.byRef[key] = entry
	return nil
}

func (r *inMemoryJournalRepo) GetByRef(ctx context.Context, tenantID uuid.UUID, ref string) (*domain.JournalEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.byRef[journalKey(tenantID, ref)]
	if !ok {
		return nil, nil
	}
	return entry, nil
}

// --- In-Memory Idempotency Repo ---

type inMemoryIdempotencyRepo struct {
	mu      sync.Mutex
	records map[string]*domain.IdempotencyRecord
}

func newInMemoryIdempotencyRepo() *inMemoryIdempotencyRepo {
	return &inMemoryIdempotencyRepo{records: make(map[string]*domain.IdempotencyRecord)}
}

func (r *inMemoryIdempotencyRepo) TryClaim(ctx context.Context, key, method, path, bodySHA string, ttl time.Duration, now time.Time) (bool, *domain.IdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.records[key]; ok {
		if existing.CreatedAt.Before(now.Add(-ttl)) {
			delete(r.records, key)
		} else {
			return false, existing, nil
		}
	}

	r.records[key] = &domain.IdempotencyRecord{
		Key: key, Method: method, Path: path, BodySHA: bodySHA, CreatedAt: now,
	}
	return true, nil, nil
}

func (r *inMemoryIdempotencyRepo) PersistResponse(ctx context.Context, key string, status int, body []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[key]
	if !ok {
		return errNotFound{"idempotency record"}
	}
	rec.ResponseStatus = &status
	rec.ResponseBody = body
	return nil
}

func (r *inMemoryIdempotencyRepo) Release(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.records, key)
	return nil
}

type errNotFound struct{ what string }

func (e errNotFound) Error() string { return e.what + " not found" }

// --- In-Memory Transactor (no-op tx) ---
//
// The ledger engine's Debit/Credit wrap their repo calls in a transaction
// for the real Postgres implementation's benefit (so the journal insert and
// the balance mutation commit or roll back together); the in-memory repos
// above apply their own mutations immediately and synchronously, so the
// transaction itself is a no-op here.

type inMemoryTransactor struct{}

func newInMemoryTransactor() *inMemoryTransactor {
	return &inMemoryTransactor{}
}

func (t *inMemoryTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	return &noopTx{}, nil
}

type noopTx struct{}

func (t *noopTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *noopTx) Commit(ctx context.Context) error          { return nil }
func (t *noopTx) Rollback(ctx context.Context) error        { return nil }
func (t *noopTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *noopTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *noopTx) LargeObjects() pgx.LargeObjects                              { return pgx.LargeObjects{} }
func (t *noopTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *noopTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *noopTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *noopTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (t *noopTx) Conn() *pgx.Conn                                               { return nil }
