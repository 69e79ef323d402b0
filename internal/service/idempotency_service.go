package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"flow402/internal/core/ports"
	"flow402/pkg/apperror"
)

// errNoExistingRecord signals a repository contract violation: TryClaim
// returned claimed=false with no existing row.
var errNoExistingRecord = errors.New("idempotency: claim not granted but no existing record returned")

// idempotencyConflictReason is returned when a key is reused with a
// different (method, path, body_sha) than the one it was first claimed for.
const idempotencyConflictReason = "key_reused_with_different_payload"

// cachedResponse is the shape persisted to the Redis fast-path cache for a
// completed claim, so repeat replays don't need a Postgres round trip.
type cachedResponse struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	BodySHA string `json:"body_sha"`
	Status  int    `json:"status"`
	Body    []byte `json:"body"`
}

// StoreCoordinator implements ports.IdempotencyCoordinator. It is backed by
// a durable Postgres IdempotencyRepository (the source of truth, where
// TryClaim performs the actual atomic insert-is-the-lock claim) fronted by
// an optional Redis IdempotencyCache that only ever serves completed
// responses. A cache miss or error always falls through to the repository,
// so the cache can disappear without ever changing a verdict.
type StoreCoordinator struct {
	repo  ports.IdempotencyRepository
	cache ports.IdempotencyCache
	ttl   time.Duration
}

// NewStoreCoordinator creates a coordinator with the given claim TTL
// (defaults to 24h if ttl <= 0).
func NewStoreCoordinator(repo ports.IdempotencyRepository, cache ports.IdempotencyCache, ttl time.Duration) *StoreCoordinator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StoreCoordinator{repo: repo, cache: cache, ttl: ttl}
}

// Claim implements ports.IdempotencyCoordinator.Claim.
func (c *StoreCoordinator) Claim(ctx context.Context, key, method, path, bodySHA string) (*ports.IdempotencyOutcome, error) {
	if c.cache != nil {
		if outcome := c.tryCache(ctx, key, method, path, bodySHA); outcome != nil {
			return outcome, nil
		}
	}

	now := time.Now()
	claimed, existing, err := c.repo.TryClaim(ctx, key, method, path, bodySHA, c.ttl, now)
	if err != nil {
		return nil, apperror.ErrIdempotencyStoreFailed(err)
	}
	if claimed {
		return &ports.IdempotencyOutcome{Kind: ports.IdempotencyClaimed}, nil
	}

	if existing == nil {
		// Defensive: TryClaim must return either claimed=true or an
		// existing row. Treat the absence of both as an infra failure
		// rather than silently granting a claim.
		return nil, apperror.ErrIdempotencyStoreFailed(errNoExistingRecord)
	}

	if !existing.SamePayload(method, path, bodySHA) {
		return &ports.IdempotencyOutcome{Kind: ports.IdempotencyConflict, ConflictReason: idempotencyConflictReason}, nil
	}

	if existing.Reserved() {
		return &ports.IdempotencyOutcome{Kind: ports.IdempotencyLocked}, nil
	}

	c.warmCache(ctx, key, existing.Method, existing.Path, existing.BodySHA, *existing.ResponseStatus, existing.ResponseBody)
	return &ports.IdempotencyOutcome{
		Kind:         ports.IdempotencyReplay,
		ReplayStatus: *existing.ResponseStatus,
		ReplayBody:   existing.ResponseBody,
	}, nil
}

// PersistResponse implements ports.IdempotencyCoordinator.PersistResponse.
func (c *StoreCoordinator) PersistResponse(ctx context.Context, key string, status int, body []byte) error {
	if err := c.repo.PersistResponse(ctx, key, status, body); err != nil {
		return apperror.ErrIdempotencyStoreFailed(err)
	}
	return nil
}

// Release implements ports.IdempotencyCoordinator.Release.
func (c *StoreCoordinator) Release(ctx context.Context, key string) error {
	if err := c.repo.Release(ctx, key); err != nil {
		return apperror.ErrIdempotencyStoreFailed(err)
	}
	return nil
}

// tryCache attempts to resolve the claim from the Redis fast path. Returns
// nil (not an outcome, not an error) on any cache miss or error so the
// caller always falls through to Postgres.
func (c *StoreCoordinator) tryCache(ctx context.Context, key, method, path, bodySHA string) *ports.IdempotencyOutcome {
	raw, err := c.cache.Get(ctx, key)
	if err != nil || raw == nil {
		return nil
	}

	var cached cachedResponse
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil
	}

	if cached.Method != method || cached.Path != path || cached.BodySHA != bodySHA {
		return &ports.IdempotencyOutcome{Kind: ports.IdempotencyConflict, ConflictReason: idempotencyConflictReason}
	}
	return &ports.IdempotencyOutcome{Kind: ports.IdempotencyReplay, ReplayStatus: cached.Status, ReplayBody: cached.Body}
}

// warmCache best-effort populates the fast path for a completed claim.
// Failures are ignored: the cache is an accelerator, never a correctness
// dependency.
func (c *StoreCoordinator) warmCache(ctx context.Context, key, method, path, bodySHA string, status int, body []byte) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(cachedResponse{Method: method, Path: path, BodySHA: bodySHA, Status: status, Body: body})
	if err != nil {
		return
	}
	_ = c.cache.Set(ctx, key, raw, c.ttl)
}

