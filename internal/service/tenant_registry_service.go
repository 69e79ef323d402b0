package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"flow402/internal/core/domain"
	"flow402/internal/core/ports"
	"flow402/pkg/apperror"

	"github.com/google/uuid"
)

// tenantCacheTTL is the maximum time a resolved tenant may be served from
// the in-process cache before a fresh repository lookup is required, so a
// rotated signing secret propagates without a restart.
const tenantCacheTTL = 60 * time.Second

type tenantCacheEntry struct {
	tenant    *domain.Tenant
	expiresAt time.Time
}

// CachingTenantRegistry implements ports.TenantRegistry, resolving a vendor
// credential to its tenant record by api_key, then slug, then (if the
// credential parses as a UUID) id. The first match wins.
//
// Results are cached in-process for up to tenantCacheTTL under a
// sync.RWMutex; reads never hold the lock across repository I/O.
type CachingTenantRegistry struct {
	repo ports.TenantRepository

	mu    sync.RWMutex
	cache map[string]tenantCacheEntry
}

// NewCachingTenantRegistry creates a registry backed by repo.
func NewCachingTenantRegistry(repo ports.TenantRepository) *CachingTenantRegistry {
	return &CachingTenantRegistry{
		repo:  repo,
		cache: make(map[string]tenantCacheEntry),
	}
}

// Resolve implements ports.TenantRegistry.
func (r *CachingTenantRegistry) Resolve(ctx context.Context, credential string) (*domain.Tenant, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, apperror.ErrInvalidRequest("vendor credential must not be empty")
	}

	if cached, ok := r.readCache(credential); ok {
		return cached, nil
	}

	tenant, err := r.lookup(ctx, credential)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, apperror.ErrUnknownVendor()
	}

	r.writeCache(credential, tenant)
	return tenant, nil
}

// lookup tries api_key, then slug, then id, in that order, the first match
// winning. Case-sensitive, no further normalization beyond the trim already
// done by Resolve.
func (r *CachingTenantRegistry) lookup(ctx context.Context, credential string) (*domain.Tenant, error) {
	tenant, err := r.repo.GetByAPIKey(ctx, credential)
	if err != nil {
		return nil, apperror.ErrVendorLookupFailed(err)
	}
	if tenant != nil {
		return tenant, nil
	}

	tenant, err = r.repo.GetBySlug(ctx, credential)
	if err != nil {
		return nil, apperror.ErrVendorLookupFailed(err)
	}
	if tenant != nil {
		return tenant, nil
	}

	if id, uerr := uuid.Parse(credential); uerr == nil {
		tenant, err = r.repo.GetByID(ctx, id)
		if err != nil {
			return nil, apperror.ErrVendorLookupFailed(err)
		}
		if tenant != nil {
			return tenant, nil
		}
	}

	return nil, nil
}

func (r *CachingTenantRegistry) readCache(credential string) (*domain.Tenant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.cache[credential]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.tenant, true
}

func (r *CachingTenantRegistry) writeCache(credential string, tenant *domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cache[credential] = tenantCacheEntry{
		tenant:    tenant,
		expiresAt: time.Now().Add(tenantCacheTTL),
	}
}
