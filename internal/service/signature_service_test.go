package service

import (
	"testing"
	"time"

	"flow402/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	vectorSecret = "demo-signing-secret"
	vectorBody   = `{"amount_credits":5,"ref":"demo-ref","userId":"9c0383a1-0887-4c0f-98ca-cb71ffc4e76c"}`
	vectorT      = int64(1729200000)
	vectorSHA    = "5a159b6e835fc4d107d0ffd630fe705c1a86c00ebf7d5dad7179ad912d249129"
	vectorV1     = "6f65904bd1173ac13d5a79d2c038d7db7908513bf50e41509d964ff2ac924ac5"
)

func vectorSigHeader() string {
	return "t=1729200000,v1=" + vectorV1
}

func TestHMACSignatureVerifier_Vector_OK(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	ts, err := v.Verify(vectorSecret, vectorSigHeader(), vectorSHA, []byte(vectorBody), time.Unix(vectorT, 0))

	require.NoError(t, err)
	assert.Equal(t, vectorT, ts)
}

func TestHMACSignatureVerifier_Vector_TimestampOutOfWindow(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	_, err := v.Verify(vectorSecret, vectorSigHeader(), vectorSHA, []byte(vectorBody), time.Unix(vectorT+301, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonTimestampOutOfWindow, appErr.Reason)
}

func TestHMACSignatureVerifier_Vector_AtBoundary(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	_, err := v.Verify(vectorSecret, vectorSigHeader(), vectorSHA, []byte(vectorBody), time.Unix(vectorT+300, 0))

	assert.NoError(t, err, "exactly 300s skew is still within the window")
}

func TestHMACSignatureVerifier_BodyHashMismatch(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	_, err := v.Verify(vectorSecret, vectorSigHeader(), "0000000000000000000000000000000000000000000000000000000000000000", []byte(vectorBody), time.Unix(vectorT, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonBodyHashMismatch, appErr.Reason)
}

func TestHMACSignatureVerifier_MissingBodyHash(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	_, err := v.Verify(vectorSecret, vectorSigHeader(), "", []byte(vectorBody), time.Unix(vectorT, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonMissingBodyHash, appErr.Reason)
}

func TestHMACSignatureVerifier_SignatureMismatch(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	tampered := "t=1729200000,v1=" + "0000000000000000000000000000000000000000000000000000000000000000"[:64]
	_, err := v.Verify(vectorSecret, tampered, vectorSHA, []byte(vectorBody), time.Unix(vectorT, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonSignatureMismatch, appErr.Reason)
}

func TestHMACSignatureVerifier_WrongSecret(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	_, err := v.Verify("wrong-secret", vectorSigHeader(), vectorSHA, []byte(vectorBody), time.Unix(vectorT, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonSignatureMismatch, appErr.Reason)
}

func TestHMACSignatureVerifier_MissingSignatureHeader(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	_, err := v.Verify(vectorSecret, "", vectorSHA, []byte(vectorBody), time.Unix(vectorT, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonMissingSignatureHeader, appErr.Reason)
}

func TestHMACSignatureVerifier_MalformedHeader_MissingT(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	_, err := v.Verify(vectorSecret, "v1="+vectorV1, vectorSHA, []byte(vectorBody), time.Unix(vectorT, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonInvalidSignatureFormat, appErr.Reason)
}

func TestHMACSignatureVerifier_MalformedHeader_NonIntegerT(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	_, err := v.Verify(vectorSecret, "t=not-a-number,v1="+vectorV1, vectorSHA, []byte(vectorBody), time.Unix(vectorT, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonInvalidSignatureFormat, appErr.Reason)
}

func TestHMACSignatureVerifier_MalformedHeader_BadHex(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	_, err := v.Verify(vectorSecret, "t=1729200000,v1=zzzz", vectorSHA, []byte(vectorBody), time.Unix(vectorT, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonInvalidSignatureFormat, appErr.Reason)
}

func TestHMACSignatureVerifier_TolerantOfWhitespaceAndExtraPairs(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	header := "  t = 1729200000 , v1=" + vectorV1 + " , extra=ignored"
	_, err := v.Verify(vectorSecret, header, vectorSHA, []byte(vectorBody), time.Unix(vectorT, 0))

	assert.NoError(t, err)
}

func TestHMACSignatureVerifier_OrderIndependent(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	header := "v1=" + vectorV1 + ",t=1729200000"
	_, err := v.Verify(vectorSecret, header, vectorSHA, []byte(vectorBody), time.Unix(vectorT, 0))

	assert.NoError(t, err)
}

func TestHMACSignatureVerifier_BodyHashCaseInsensitive(t *testing.T) {
	v := NewHMACSignatureVerifier(0)

	upper := "5A159B6E835FC4D107D0FFD630FE705C1A86C00EBF7D5DAD7179AD912D249129"
	_, err := v.Verify(vectorSecret, vectorSigHeader(), upper, []byte(vectorBody), time.Unix(vectorT, 0))

	assert.NoError(t, err)
}

func TestHMACSignatureVerifier_SignProducesVerifiableHeader(t *testing.T) {
	v := NewHMACSignatureVerifier(0)
	now := time.Unix(vectorT, 0)

	sigHeader := v.Sign(vectorSecret, []byte(vectorBody), now)

	assert.Equal(t, vectorSigHeader(), sigHeader)

	ts, err := v.Verify(vectorSecret, sigHeader, vectorSHA, []byte(vectorBody), now)
	require.NoError(t, err)
	assert.Equal(t, vectorT, ts)
}

func TestHMACSignatureVerifier_CustomSkew(t *testing.T) {
	v := NewHMACSignatureVerifier(5 * time.Second)

	_, err := v.Verify(vectorSecret, vectorSigHeader(), vectorSHA, []byte(vectorBody), time.Unix(vectorT+10, 0))

	require.Error(t, err)
	appErr, ok := err.(*apperror.AppError)
	require.True(t, ok)
	assert.Equal(t, apperror.ReasonTimestampOutOfWindow, appErr.Reason)
}
