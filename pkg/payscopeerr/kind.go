// Package payscopeerr defines the bank-agnostic error taxonomy shared by
// the API layer, the pipeline orchestrator, and the DLQ recorder.
package payscopeerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is one of the error classes from the error handling design. Each
// kind carries a fixed HTTP status and retry disposition.
type Kind string

const (
	KindAuthError            Kind = "auth_error"
	KindTenantMismatch       Kind = "tenant_mismatch"
	KindTenantNotBound       Kind = "tenant_not_bound"
	KindIngestionOverloaded  Kind = "ingestion_overloaded"
	KindExtractionFailed     Kind = "extraction_failed"
	KindMappingLowConfidence Kind = "mapping_low_confidence"
	KindValidationRowFailed  Kind = "validation_row_failed"
	KindPersistenceConflict  Kind = "persistence_conflict"
	KindIdempotencyViolation Kind = "idempotency_violation"
	KindDependencyUnavailable Kind = "dependency_unavailable"
)

// Retryable reports whether a job-level failure of this kind should be
// retried with backoff rather than moved straight to the DLQ.
func (k Kind) Retryable() bool {
	switch k {
	case KindDependencyUnavailable, KindIngestionOverloaded:
		return true
	default:
		return false
	}
}

// HTTPStatus returns the status code the API layer surfaces for this kind
// when it propagates to a caller (auth/tenant/backpressure kinds only;
// job-internal kinds are surfaced via the job record instead).
func (k Kind) HTTPStatus() int {
	switch k {
	case KindAuthError:
		return http.StatusUnauthorized
	case KindTenantMismatch:
		return http.StatusForbidden
	case KindTenantNotBound:
		return http.StatusInternalServerError
	case KindIngestionOverloaded:
		return http.StatusServiceUnavailable
	case KindIdempotencyViolation:
		return http.StatusConflict
	case KindPersistenceConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed error carrying a Kind plus structured context fields
// for the {bank_id, job_id, artifact_id, error_class, error_detail} log
// line every non-local error produces.
type Error struct {
	Kind       Kind
	BankID     string
	JobID      string
	ArtifactID string
	Detail     string
	cause      error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New builds an Error of the given kind with a detail message.
func New(kind Kind, detail string) *Error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap builds an Error of the given kind wrapping an underlying cause.
func Wrap(kind Kind, cause error, detail string) *Error {
	return &Error{Kind: kind, Detail: detail, cause: cause}
}

// WithContext attaches bank/job/artifact identifiers for logging.
func (e *Error) WithContext(bankID, jobID, artifactID string) *Error {
	e.BankID = bankID
	e.JobID = jobID
	e.ArtifactID = artifactID
	return e
}

// KindOf extracts the Kind from err if it is (or wraps) a *Error.
func KindOf(err error) (Kind, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return "", false
}
