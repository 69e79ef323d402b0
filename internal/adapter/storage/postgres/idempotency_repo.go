package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"flow402/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// IdempotencyRepo implements ports.IdempotencyRepository: the durable
// Postgres source of truth behind the Redis fast-path cache.
type IdempotencyRepo struct {
	pool Pool
}

// NewIdempotencyRepo creates a new IdempotencyRepo.
func NewIdempotencyRepo(pool Pool) *IdempotencyRepo {
	return &IdempotencyRepo{pool: pool}
}

// TryClaim performs the insert-is-the-lock atomic claim: it first deletes
// any row for key that has aged past ttl, then attempts to insert a fresh
// reserved row. A uniqueness conflict means a live claim (or completed
// record) already exists, so it is read back and returned instead of
// erroring.
func (r *IdempotencyRepo) TryClaim(ctx context.Context, key, method, path, bodySHA string, ttl time.Duration, now time.Time) (bool, *domain.IdempotencyRecord, error) {
	if _, err := r.pool.Exec(ctx,
		`DELETE FROM idempotency_records WHERE key = $1 AND created_at < $2`,
		key, now.Add(-ttl),
	); err != nil {
		return false, nil, fmt.Errorf("evict expired idempotency record: %w", err)
	}

	var claimedKey string
	err := r.pool.QueryRow(ctx,
		`INSERT INTO idempotency_records (key, method, path, body_sha, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (key) DO NOTHING
			RETURNING key`,
		key, method, path, bodySHA, now,
	).Scan(&claimedKey)
	if err == nil {
		return true, nil, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("insert idempotency record: %w", err)
	}

	existing, getErr := r.get(ctx, key)
	if getErr != nil {
		return false, nil, getErr
	}
	if existing == nil {
		return false, nil, fmt.Errorf("idempotency claim conflict but no existing record for key %q", key)
	}
	return false, existing, nil
}

// PersistResponse records the completed response for key.
func (r *IdempotencyRepo) PersistResponse(ctx context.Context, key string, status int, body []byte) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE idempotency_records SET response_status = $2, response_body = $3 WHERE key = $1`,
		key, status, body,
	)
	if err != nil {
		return fmt.Errorf("persist idempotency response: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("idempotency record not found: %s", key)
	}
	return nil
}

// Release deletes the reservation for key, allowing a subsequent retry to
// claim fresh. Used when a claimed request fails before producing a
// persistable response.
func (r *IdempotencyRepo) Release(ctx context.Context, key string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM idempotency_records WHERE key = $1`, key); err != nil {
		return fmt.Errorf("release idempotency record: %w", err)
	}
	return nil
}

func (r *IdempotencyRepo) get(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	rec := &domain.IdempotencyRecord{}
	err := r.pool.QueryRow(ctx,
		`SELECT key, method, path, body_sha, response_status, response_body, created_at
			FROM idempotency_records WHERE key = $1`,
		key,
	).Scan(&rec.Key, &rec.Method, &rec.Path, &rec.BodySHA, &rec.ResponseStatus, &rec.ResponseBody, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get idempotency record: %w", err)
	}
	return rec, nil
}
