package postgres

import (
	"context"
	"errors"

	"flow402/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TenantRepo implements ports.TenantRepository against PostgreSQL.
type TenantRepo struct {
	pool Pool
}

// NewTenantRepo creates a tenant repository backed by pool.
func NewTenantRepo(pool Pool) *TenantRepo {
	return &TenantRepo{pool: pool}
}

const tenantSelectColumns = `id, slug, name, api_key, signing_secret, created_at, updated_at`

func (r *TenantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantSelectColumns+` FROM tenants WHERE api_key = $1`, apiKey)
	return scanTenant(row)
}

func (r *TenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantSelectColumns+` FROM tenants WHERE slug = $1`, slug)
	return scanTenant(row)
}

func (r *TenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+tenantSelectColumns+` FROM tenants WHERE id = $1`, id)
	return scanTenant(row)
}

func scanTenant(row pgx.Row) (*domain.Tenant, error) {
	var t domain.Tenant
	err := row.Scan(&t.ID, &t.Slug, &t.Name, &t.APIKey, &t.SigningSecret, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}
