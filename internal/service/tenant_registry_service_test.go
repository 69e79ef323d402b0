package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"flow402/internal/core/domain"
	"flow402/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTenantRepo struct {
	byAPIKey  map[string]*domain.Tenant
	bySlug    map[string]*domain.Tenant
	byID      map[uuid.UUID]*domain.Tenant
	callCount int
	failErr   error
}

func newFakeTenantRepo() *fakeTenantRepo {
	return &fakeTenantRepo{
		byAPIKey: make(map[string]*domain.Tenant),
		bySlug:   make(map[string]*domain.Tenant),
		byID:     make(map[uuid.UUID]*domain.Tenant),
	}
}

func (f *fakeTenantRepo) GetByAPIKey(ctx context.Context, apiKey string) (*domain.Tenant, error) {
	f.callCount++
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.byAPIKey[apiKey], nil
}

func (f *fakeTenantRepo) GetBySlug(ctx context.Context, slug string) (*domain.Tenant, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.bySlug[slug], nil
}

func (f *fakeTenantRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	if f.failErr != nil {
		return nil, f.failErr
	}
	return f.byID[id], nil
}

func TestCachingTenantRegistry_ResolveByAPIKey(t *testing.T) {
	repo := newFakeTenantRepo()
	tenant := &domain.Tenant{ID: uuid.New(), Slug: "acme", APIKey: "key-123"}
	repo.byAPIKey["key-123"] = tenant

	reg := NewCachingTenantRegistry(repo)
	got, err := reg.Resolve(context.Background(), "key-123")

	require.NoError(t, err)
	assert.Equal(t, tenant, got)
}

func TestCachingTenantRegistry_ResolveBySlug(t *testing.T) {
	repo := newFakeTenantRepo()
	tenant := &domain.Tenant{ID: uuid.New(), Slug: "acme"}
	repo.bySlug["acme"] = tenant

	reg := NewCachingTenantRegistry(repo)
	got, err := reg.Resolve(context.Background(), "acme")

	require.NoError(t, err)
	assert.Equal(t, tenant, got)
}

func TestCachingTenantRegistry_ResolveByID(t *testing.T) {
	repo := newFakeTenantRepo()
	id := uuid.New()
	tenant := &domain.Tenant{ID: id, Slug: "acme"}
	repo.byID[id] = tenant

	reg := NewCachingTenantRegistry(repo)
	got, err := reg.Resolve(context.Background(), id.String())

	require.NoError(t, err)
	assert.Equal(t, tenant, got)
}

func TestCachingTenantRegistry_APIKeyWinsOverSlug(t *testing.T) {
	repo := newFakeTenantRepo()
	byKey := &domain.Tenant{ID: uuid.New(), Slug: "by-key"}
	bySlug := &domain.Tenant{ID: uuid.New(), Slug: "dup"}
	repo.byAPIKey["dup"] = byKey
	repo.bySlug["dup"] = bySlug

	reg := NewCachingTenantRegistry(repo)
	got, err := reg.Resolve(context.Background(), "dup")

	require.NoError(t, err)
	assert.Equal(t, byKey, got)
}

func TestCachingTenantRegistry_NotFound(t *testing.T) {
	repo := newFakeTenantRepo()
	reg := NewCachingTenantRegistry(repo)

	_, err := reg.Resolve(context.Background(), "nonexistent")

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonUnknownVendor, appErr.Reason)
}

func TestCachingTenantRegistry_EmptyCredential(t *testing.T) {
	repo := newFakeTenantRepo()
	reg := NewCachingTenantRegistry(repo)

	_, err := reg.Resolve(context.Background(), "   ")

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "invalid_request", appErr.Code)
}

func TestCachingTenantRegistry_LookupFailure(t *testing.T) {
	repo := newFakeTenantRepo()
	repo.failErr = fmt.Errorf("connection reset")
	reg := NewCachingTenantRegistry(repo)

	_, err := reg.Resolve(context.Background(), "key-123")

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, "vendor_lookup_failed", appErr.Code)
}

func TestCachingTenantRegistry_CachesResult(t *testing.T) {
	repo := newFakeTenantRepo()
	tenant := &domain.Tenant{ID: uuid.New(), Slug: "acme", APIKey: "key-123"}
	repo.byAPIKey["key-123"] = tenant

	reg := NewCachingTenantRegistry(repo)

	_, err := reg.Resolve(context.Background(), "key-123")
	require.NoError(t, err)
	_, err = reg.Resolve(context.Background(), "key-123")
	require.NoError(t, err)

	assert.Equal(t, 1, repo.callCount, "second resolve should be served from cache")
}

func TestCachingTenantRegistry_CacheExpires(t *testing.T) {
	repo := newFakeTenantRepo()
	tenant := &domain.Tenant{ID: uuid.New(), Slug: "acme", APIKey: "key-123"}
	repo.byAPIKey["key-123"] = tenant

	reg := NewCachingTenantRegistry(repo)
	_, err := reg.Resolve(context.Background(), "key-123")
	require.NoError(t, err)

	reg.mu.Lock()
	entry := reg.cache["key-123"]
	entry.expiresAt = time.Now().Add(-time.Second)
	reg.cache["key-123"] = entry
	reg.mu.Unlock()

	_, err = reg.Resolve(context.Background(), "key-123")
	require.NoError(t, err)

	assert.Equal(t, 2, repo.callCount, "expired cache entry should trigger a fresh lookup")
}

func TestCachingTenantRegistry_CaseSensitive(t *testing.T) {
	repo := newFakeTenantRepo()
	tenant := &domain.Tenant{ID: uuid.New(), Slug: "Acme"}
	repo.bySlug["Acme"] = tenant

	reg := NewCachingTenantRegistry(repo)
	_, err := reg.Resolve(context.Background(), "acme")

	require.Error(t, err)
}
