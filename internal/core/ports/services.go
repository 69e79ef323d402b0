package ports

import (
	"context"
	"time"

	"flow402/internal/core/domain"

	"github.com/google/uuid"
)

// SignatureVerifier handles HMAC-SHA256 request signing and verification
// per the gateway's x-f402-sig grammar (C1).
type SignatureVerifier interface {
	// Verify parses sigHeaderValue ("t=...,v1=...") and bodyShaHeaderValue,
	// checks the body hash, the timestamp skew window, and the HMAC digest
	// in constant time. On success it returns the embedded timestamp so
	// callers never need to re-derive it.
	Verify(secret, sigHeaderValue, bodyShaHeaderValue string, body []byte, now time.Time) (timestamp int64, err error)

	// Sign produces a "t=...,v1=..." header value for an outbound body,
	// used to sign the 402 paywall envelope.
	Sign(secret string, body []byte, now time.Time) string
}

// EncryptionService handles AES-256-GCM encryption/decryption, used to
// encrypt opaque journal metadata blobs at rest.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// IdempotencyCache is the Redis-layer idempotency fast path: a read-through
// accelerator in front of the durable Postgres IdempotencyRepository. A
// cache miss or error always falls through to Postgres, never changes the
// verdict, so Redis unavailability only costs latency.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// TenantRegistry resolves vendor credentials to (tenant_id, signing_secret)
// (C2). Implementations may cache entries for up to 60s so rotated secrets
// still propagate without a restart.
type TenantRegistry interface {
	Resolve(ctx context.Context, credential string) (*domain.Tenant, error)
}

// LedgerService implements the ledger engine's two mutation operations
// (C4). Both are transactional and ref-idempotent within a tenant.
type LedgerService interface {
	Credit(ctx context.Context, req CreditRequest) (newBalance int64, err error)
	Debit(ctx context.Context, req DebitRequest) (newBalance int64, err error)
	GetBalance(ctx context.Context, tenantID, userID uuid.UUID) (int64, error)
	// CheckBalance is like GetBalance but returns apperror.ErrUserNotFound
	// when the (tenant, user) pair has never had a CreditBalance row
	// created, for surfaces (GET /balance) that must 404 on an
	// unreferenced user rather than report a zero balance.
	CheckBalance(ctx context.Context, tenantID, userID uuid.UUID) (int64, error)
}

// CreditRequest holds validated input for a credit mutation.
type CreditRequest struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Amount   int64
	Kind     domain.JournalKind // defaults to topup if empty
	Ref      string             // generated if empty
	Metadata map[string]interface{}
}

// DebitRequest holds validated input for a debit mutation.
type DebitRequest struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
	Amount   int64
	Ref      string             // mandatory
	Kind     domain.JournalKind // defaults to deduct; the reset endpoint uses manual_reset
	Metadata map[string]interface{}
}

// PipelineService orchestrates the full authenticated debit request
// pipeline (C5): signature verification, idempotency claim, ledger debit,
// response persistence.
type PipelineService interface {
	Deduct(ctx context.Context, req DeductRequest) (*PipelineResult, error)
}

// DeductRequest holds everything the pipeline needs from the HTTP layer,
// captured before any body re-reads (the body must not be re-read from the
// network once C1 has consumed it).
type DeductRequest struct {
	VendorKey       string
	IdempotencyKey  string
	SigHeaderValue  string
	BodySHAHeader   string
	Body            []byte
	Method          string
	Path            string
	RequestID       string
}

// PipelineResult is the outcome of a single pipeline run, already
// HTTP-shaped: the handler only needs to write Status/Body to the wire.
type PipelineResult struct {
	Status int
	Body   interface{}
	// SignHeader, when non-empty, must be set as the outbound x-f402-sig
	// header (used for the 402 paywall envelope).
	SignHeader string
}

// IdempotencyOutcomeKind enumerates the claim() state machine results (C3).
type IdempotencyOutcomeKind string

const (
	IdempotencyClaimed  IdempotencyOutcomeKind = "claimed"
	IdempotencyLocked   IdempotencyOutcomeKind = "locked"
	IdempotencyConflict IdempotencyOutcomeKind = "conflict"
	IdempotencyReplay   IdempotencyOutcomeKind = "replay"
)

// IdempotencyOutcome is the result of a single claim() call.
type IdempotencyOutcome struct {
	Kind           IdempotencyOutcomeKind
	ConflictReason string
	ReplayStatus   int
	ReplayBody     []byte
}

// IdempotencyCoordinator implements the C3 state machine on top of the
// two-layer Redis+Postgres store: claim() is atomic ("insert is the lock"),
// persistResponse()/release() complete or abandon a reservation.
type IdempotencyCoordinator interface {
	Claim(ctx context.Context, key, method, path, bodySHA string) (*IdempotencyOutcome, error)
	PersistResponse(ctx context.Context, key string, status int, body []byte) error
	Release(ctx context.Context, key string) error
}

// TopupService implements the operator top-up/reset endpoints (C6).
type TopupService interface {
	Topup(ctx context.Context, req TopupRequest) (*PipelineResult, error)
	Reset(ctx context.Context, tenantID, userID uuid.UUID) (*PipelineResult, error)
}

// TopupRequest holds validated input for the top-up endpoint.
type TopupRequest struct {
	TenantID       uuid.UUID
	UserID         uuid.UUID
	AmountCredits  int64
	IdempotencyKey string
	Method         string
	Path           string
	BodySHA        string
}
