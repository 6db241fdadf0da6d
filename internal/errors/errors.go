// Package errors provides the categorized error taxonomy shared by all services.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/orbit-yield/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryValidation represents user-correctable input errors (4xx)
	CategoryValidation ErrorCategory = "validation"
	// CategoryAuthorization represents authentication and authorization errors
	CategoryAuthorization ErrorCategory = "authorization"
	// CategoryNotFound represents missing or unowned resources
	CategoryNotFound ErrorCategory = "not_found"
	// CategoryConflict represents conflicting state (nonce reuse, duplicates)
	CategoryConflict ErrorCategory = "conflict"
	// CategoryUpstream represents chain, contract or price provider failures
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryDatabase represents persistence failures
	CategoryDatabase ErrorCategory = "database"
	// CategorySystem represents unexpected internal failures (5xx)
	CategorySystem ErrorCategory = "system"
)

// Stable error codes surfaced to callers
const (
	CodeInvalidQuery             = "INVALID_QUERY"
	CodeInvalidArgument          = "INVALID_ARGUMENT"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeInvalidSignature         = "INVALID_SIGNATURE"
	CodeContractValidation       = "CONTRACT_VALIDATION_UNAVAILABLE"
	CodeNotFound                 = "NOT_FOUND"
	CodeConflict                 = "CONFLICT"
	CodeUpstreamTimeout          = "UPSTREAM_TIMEOUT"
	CodeUpstreamUnavailable      = "UPSTREAM_UNAVAILABLE"
	CodeDatabaseError            = "DATABASE_ERROR"
	CodeInternalError            = "INTERNAL_ERROR"
	CodePriceUnavailable         = "PRICE_UNAVAILABLE"
	CodePartialEnrichmentFailure = "PARTIAL_ENRICHMENT_FAILURE"
)

// CategorizedError represents an error with category and HTTP status code
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Details    map[string]interface{}
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to the wire-level ServiceError. The cause is
// deliberately dropped: internal detail is logged, never returned.
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	return &types.ServiceError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
	}
}

// NewInvalidQueryError creates an error for a malformed filter or sort field
func NewInvalidQueryError(field, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidQuery,
		Message:    fmt.Sprintf("invalid query field '%s': %s", field, reason),
		Details: map[string]interface{}{
			"field":  field,
			"reason": reason,
		},
	}
}

// NewInvalidArgumentError creates an error for an invalid operation argument
func NewInvalidArgumentError(arg, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryValidation,
		StatusCode: http.StatusBadRequest,
		Code:       CodeInvalidArgument,
		Message:    fmt.Sprintf("invalid argument '%s': %s", arg, reason),
		Details: map[string]interface{}{
			"argument": arg,
			"reason":   reason,
		},
	}
}

// NewUnauthorizedError creates an error for a missing or invalid session
func NewUnauthorizedError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeUnauthorized,
		Message:    message,
	}
}

// NewInvalidSignatureError creates an error for a signature that does not match
// the claimed wallet. Never retried.
func NewInvalidSignatureError(wallet string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryAuthorization,
		StatusCode: http.StatusUnauthorized,
		Code:       CodeInvalidSignature,
		Message:    "signature does not match claimed wallet address",
		Details: map[string]interface{}{
			"walletAddress": wallet,
		},
	}
}

// NewContractValidationError creates an error for a smart-contract wallet check
// that could not be performed. Distinct from an invalid signature and retryable.
func NewContractValidationError(wallet string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Code:       CodeContractValidation,
		Message:    "contract signature validation could not be performed",
		Cause:      cause,
		Details: map[string]interface{}{
			"walletAddress": wallet,
		},
	}
}

// NewNotFoundError creates a not found error
func NewNotFoundError(resource, id string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryNotFound,
		StatusCode: http.StatusNotFound,
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, id),
		Details: map[string]interface{}{
			"resource": resource,
			"id":       id,
		},
	}
}

// NewConflictError creates a conflict error (nonce reuse, duplicate connection)
func NewConflictError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConflict,
		StatusCode: http.StatusConflict,
		Code:       CodeConflict,
		Message:    message,
	}
}

// NewUpstreamTimeoutError creates an error for an external call that timed out
// after retries
func NewUpstreamTimeoutError(upstream string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusGatewayTimeout,
		Code:       CodeUpstreamTimeout,
		Message:    fmt.Sprintf("upstream timeout: %s", upstream),
		Details: map[string]interface{}{
			"upstream": upstream,
		},
	}
}

// NewUpstreamUnavailableError creates an error for an external call that failed
// after retries
func NewUpstreamUnavailableError(upstream string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Code:       CodeUpstreamUnavailable,
		Message:    fmt.Sprintf("upstream unavailable: %s", upstream),
		Cause:      cause,
		Details: map[string]interface{}{
			"upstream": upstream,
		},
	}
}

// NewDatabaseError creates a persistence error
func NewDatabaseError(operation string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryDatabase,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeDatabaseError,
		Message:    fmt.Sprintf("database error during %s", operation),
		Cause:      cause,
		Details: map[string]interface{}{
			"operation": operation,
		},
	}
}

// NewInternalError creates an internal server error
func NewInternalError(message string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategorySystem,
		StatusCode: http.StatusInternalServerError,
		Code:       CodeInternalError,
		Message:    message,
		Cause:      cause,
	}
}

// Non-fatal warnings attached to results rather than returned as failures

// PriceUnavailableWarning flags a normalization that fell back to a price of 1
func PriceUnavailableWarning(symbol string) *types.ServiceError {
	return &types.ServiceError{
		Code:    CodePriceUnavailable,
		Message: fmt.Sprintf("no price available for %s, defaulted to 1", symbol),
		Details: map[string]interface{}{
			"symbol": symbol,
		},
	}
}

// PartialEnrichmentWarning flags a position that failed enrichment and was
// excluded from portfolio totals
func PartialEnrichmentWarning(strategyAddress string, cause error) *types.ServiceError {
	return &types.ServiceError{
		Code:    CodePartialEnrichmentFailure,
		Message: "position could not be enriched and is excluded from totals",
		Details: map[string]interface{}{
			"strategyAddress": strategyAddress,
			"reason":          cause.Error(),
		},
	}
}

// Categorize categorizes an existing error
func Categorize(err error) *CategorizedError {
	if err == nil {
		return nil
	}

	var catErr *CategorizedError
	if errors.As(err, &catErr) {
		return catErr
	}

	return NewInternalError("unexpected error", err)
}

// GetHTTPStatusCode returns the HTTP status code for an error
func GetHTTPStatusCode(err error) int {
	if catErr := Categorize(err); catErr != nil {
		return catErr.StatusCode
	}
	return http.StatusInternalServerError
}

// IsRetryable determines if an error should be retried. Validation,
// authorization, not-found and conflict errors are never retried.
func IsRetryable(err error) bool {
	catErr := Categorize(err)
	if catErr == nil {
		return false
	}

	switch catErr.Category {
	case CategoryUpstream, CategoryDatabase:
		// An invalid signature is authorization-category, so the
		// contract-validation path stays retryable without ever
		// retrying a signature mismatch.
		return true
	case CategorySystem:
		return catErr.StatusCode == http.StatusServiceUnavailable ||
			catErr.StatusCode == http.StatusGatewayTimeout
	default:
		return false
	}
}

// IsCode reports whether err carries the given stable error code
func IsCode(err error, code string) bool {
	catErr := Categorize(err)
	return catErr != nil && catErr.Code == code
}
