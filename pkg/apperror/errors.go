package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses. Reason
// carries an optional sub-kind (e.g. Code "invalid_signature" with Reason
// "timestamp_out_of_window") so the wire body can expose both without
// leaking the wrapped internal error.
type AppError struct {
	Code       string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	Message    string `json:"message,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // wrapped internal error, never exposed to client
}

func (e *AppError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s/%s: %v", e.Code, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s/%s", e.Code, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	default:
		return e.Code
	}
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError with no sub-reason.
func New(code string, httpStatus int) *AppError {
	return &AppError{Code: code, HTTPStatus: httpStatus}
}

// WithReason creates a new AppError carrying a sub-kind, per spec.md §7's
// auth taxonomy (invalid_signature + 6 sub-reasons).
func WithReason(code, reason string, httpStatus int) *AppError {
	return &AppError{Code: code, Reason: reason, HTTPStatus: httpStatus}
}

// Wrap wraps an internal error behind a curated code; Err is never
// serialized to the client.
func Wrap(code string, httpStatus int, err error) *AppError {
	return &AppError{Code: code, HTTPStatus: httpStatus, Err: err}
}

// ---- Validation (400) ----

func ErrInvalidRequest(message string) *AppError {
	return &AppError{Code: "invalid_request", Message: message, HTTPStatus: http.StatusBadRequest}
}

func ErrMissingIdempotencyKey() *AppError {
	return New("missing_idempotency_key", http.StatusBadRequest)
}

// ---- Not found (404) ----

func ErrUserNotFound() *AppError {
	return New("user_not_found", http.StatusNotFound)
}

// ---- Auth / signature (401) ----

// Signature sub-reasons per spec.md §4.1: missing_signature_header,
// invalid_signature_format, timestamp_out_of_window, missing_body_hash,
// body_hash_mismatch, signature_mismatch.
const (
	ReasonMissingVendorKey        = "missing_vendor_key"
	ReasonMissingSignatureHeader  = "missing_signature_header"
	ReasonInvalidSignatureFormat  = "invalid_signature_format"
	ReasonTimestampOutOfWindow    = "timestamp_out_of_window"
	ReasonMissingBodyHash         = "missing_body_hash"
	ReasonBodyHashMismatch        = "body_hash_mismatch"
	ReasonSignatureMismatch       = "signature_mismatch"
	ReasonUnknownVendor           = "unknown_vendor"
	ReasonVendorMismatch          = "vendor_mismatch"
)

func ErrMissingVendorKey() *AppError {
	return WithReason("invalid_signature", ReasonMissingVendorKey, http.StatusUnauthorized)
}

func ErrInvalidSignature(reason string) *AppError {
	return WithReason("invalid_signature", reason, http.StatusUnauthorized)
}

func ErrUnknownVendor() *AppError {
	return WithReason("invalid_signature", ReasonUnknownVendor, http.StatusUnauthorized)
}

func ErrVendorMismatch() *AppError {
	return WithReason("invalid_signature", ReasonVendorMismatch, http.StatusUnauthorized)
}

// ---- Idempotency (409) ----

func ErrIdempotencyConflict() *AppError {
	return New("idempotency_conflict", http.StatusConflict)
}

func ErrRequestInProgress() *AppError {
	return New("request_in_progress", http.StatusConflict)
}

// ---- Ledger (409 / 500) ----

func ErrRefClassMismatch() *AppError {
	return New("ref_class_mismatch", http.StatusConflict)
}

func ErrBalanceLookupFailed(err error) *AppError {
	return Wrap("balance_lookup_failed", http.StatusInternalServerError, err)
}

func ErrMutationFailed(err error) *AppError {
	return Wrap("mutation_failed", http.StatusInternalServerError, err)
}

// ---- Infrastructure (500) ----

func ErrVendorLookupFailed(err error) *AppError {
	return Wrap("vendor_lookup_failed", http.StatusInternalServerError, err)
}

func ErrIdempotencyStoreFailed(err error) *AppError {
	return Wrap("idempotency_store_failed", http.StatusInternalServerError, err)
}

// InternalError wraps an otherwise-unclassified error as a 500.
func InternalError(err error) *AppError {
	return Wrap("internal_error", http.StatusInternalServerError, err)
}

// Sentinel business-rule errors returned by the ledger engine. These are
// compared with errors.Is, never string-matched, per spec.md §9 ("thrown
// errors for control flow" must become typed results).
var (
	ErrAmountMustBePositive = fmt.Errorf("amount_must_be_positive")
	ErrRefRequired          = fmt.Errorf("ref_required")
	ErrInsufficientFunds    = fmt.Errorf("insufficient_funds")
	ErrTenantRequired       = fmt.Errorf("tenant_id required")
	ErrUserRequired         = fmt.Errorf("user_id required")
)
