package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRepo_TryClaim_Fresh(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	ttl := time.Hour

	mock.ExpectExec("DELETE FROM idempotency_records WHERE key .+ AND created_at").
		WithArgs("idem-1", now.Add(-ttl)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("INSERT INTO idempotency_records").
		WithArgs("idem-1", "POST", "/gateway/deduct", "sha-1", now).
		WillReturnRows(pgxmock.NewRows([]string{"key"}).AddRow("idem-1"))

	claimed, existing, err := repo.TryClaim(context.Background(), "idem-1", "POST", "/gateway/deduct", "sha-1", ttl, now)
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, existing)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_TryClaim_AlreadyClaimed(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	now := time.Now().UTC().Truncate(time.Microsecond)
	ttl := time.Hour
	status := 200

	mock.ExpectExec("DELETE FROM idempotency_records WHERE key .+ AND created_at").
		WithArgs("idem-2", now.Add(-ttl)).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectQuery("INSERT INTO idempotency_records").
		WithArgs("idem-2", "POST", "/gateway/deduct", "sha-2", now).
		WillReturnRows(pgxmock.NewRows([]string{"key"}))
	mock.ExpectQuery("SELECT .+ FROM idempotency_records WHERE key").
		WithArgs("idem-2").
		WillReturnRows(pgxmock.NewRows([]string{"key", "method", "path", "body_sha", "response_status", "response_body", "created_at"}).
			AddRow("idem-2", "POST", "/gateway/deduct", "sha-2", &status, []byte(`{"ok":true}`), now))

	claimed, existing, err := repo.TryClaim(context.Background(), "idem-2", "POST", "/gateway/deduct", "sha-2", ttl, now)
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, existing)
	assert.Equal(t, "sha-2", existing.BodySHA)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_PersistResponse(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectExec("UPDATE idempotency_records SET response_status").
		WithArgs("idem-3", 200, []byte(`{"ok":true}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = repo.PersistResponse(context.Background(), "idem-3", 200, []byte(`{"ok":true}`))
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_PersistResponse_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectExec("UPDATE idempotency_records SET response_status").
		WithArgs("missing", 200, []byte(`{}`)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = repo.PersistResponse(context.Background(), "missing", 200, []byte(`{}`))
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Release(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectExec("DELETE FROM idempotency_records WHERE key").
		WithArgs("idem-4").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	err = repo.Release(context.Background(), "idem-4")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
