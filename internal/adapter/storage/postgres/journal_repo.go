package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"flow402/internal/core/domain"
	"flow402/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const pgUniqueViolation = "23505"

// JournalRepo implements ports.JournalRepository. Metadata is opaque to the
// ledger (arbitrary vendor-supplied key/value pairs), so it is marshaled to
// JSON and sealed with enc before it ever reaches the wire to Postgres; the
// metadata_encrypted column holds ciphertext only, never plaintext jsonb.
type JournalRepo struct {
	pool Pool
	enc  ports.EncryptionService
}

// NewJournalRepo creates a new JournalRepo. enc seals/opens the metadata
// blob; it must be the same key across the fleet reading these rows.
func NewJournalRepo(pool Pool, enc ports.EncryptionService) *JournalRepo {
	return &JournalRepo{pool: pool, enc: enc}
}

// Create inserts a journal entry within tx. Returns ports.ErrRefConflict if
// (tenant_id, ref) already exists.
func (r *JournalRepo) Create(ctx context.Context, tx pgx.Tx, entry *domain.JournalEntry) error {
	sealed, err := r.sealMetadata(entry.Metadata)
	if err != nil {
		return fmt.Errorf("seal journal metadata: %w", err)
	}

	query := `INSERT INTO journal_entries (id, tenant_id, user_id, kind, amount_credits, ref, metadata_encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`

	_, err = tx.Exec(ctx, query,
		entry.ID, entry.TenantID, entry.UserID, entry.Kind,
		entry.AmountCredits, entry.Ref, sealed,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ports.ErrRefConflict
		}
		return fmt.Errorf("insert journal entry: %w", err)
	}
	return nil
}

// GetByRef fetches the journal entry for (tenant_id, ref), or nil if none
// exists.
func (r *JournalRepo) GetByRef(ctx context.Context, tenantID uuid.UUID, ref string) (*domain.JournalEntry, error) {
	query := `SELECT id, tenant_id, user_id, kind, amount_credits, ref, metadata_encrypted, created_at
		FROM journal_entries WHERE tenant_id = $1 AND ref = $2`

	entry := &domain.JournalEntry{}
	var sealed string
	err := r.pool.QueryRow(ctx, query, tenantID, ref).Scan(
		&entry.ID, &entry.TenantID, &entry.UserID, &entry.Kind,
		&entry.AmountCredits, &entry.Ref, &sealed, &entry.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get journal entry by ref: %w", err)
	}

	metadata, err := r.openMetadata(sealed)
	if err != nil {
		return nil, fmt.Errorf("open journal metadata: %w", err)
	}
	entry.Metadata = metadata
	return entry, nil
}

// sealMetadata JSON-encodes metadata (nil becomes "{}") and encrypts the
// result, so an empty-metadata row costs the same Encrypt call as a full
// one rather than special-casing storage format on content.
func (r *JournalRepo) sealMetadata(metadata map[string]interface{}) (string, error) {
	if metadata == nil {
		metadata = map[string]interface{}{}
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "", err
	}
	return r.enc.Encrypt(string(raw))
}

// openMetadata reverses sealMetadata.
func (r *JournalRepo) openMetadata(sealed string) (map[string]interface{}, error) {
	raw, err := r.enc.Decrypt(sealed)
	if err != nil {
		return nil, err
	}
	var metadata map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &metadata); err != nil {
		return nil, err
	}
	if len(metadata) == 0 {
		return nil, nil
	}
	return metadata, nil
}
