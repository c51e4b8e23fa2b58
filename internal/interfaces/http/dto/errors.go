package dto

import (
	"net/http"

	"github.com/erp/pos/internal/domain/shared"
)

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	ErrCodeUnknown  = "ERR_UNKNOWN"
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	ErrCodeValidation = "ERR_VALIDATION"
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "ERR_REQUEST_TOO_LARGE"
	// ErrCodeRateLimited is used when an operator repeats a throttled action
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// Authorization error codes, raised by the server and passed through
const (
	ErrCodeUnauthorized = "ERR_UNAUTHORIZED"
	ErrCodeForbidden    = "ERR_FORBIDDEN"
)

// Resource error codes
const (
	ErrCodeNotFound     = "ERR_NOT_FOUND"
	ErrCodeConflict     = "ERR_CONFLICT"
	ErrCodeInvalidState = "ERR_INVALID_STATE"
)

// Sync error codes. Domain codes for these conditions are kept verbatim so
// the UI shell can react to them.
const (
	ErrCodeVersionConflict    = "VERSION_CONFLICT"
	ErrCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrCodeOffline            = "OFFLINE"
	ErrCodeRemoteUnavailable  = "ERR_REMOTE_UNAVAILABLE"
	ErrCodeRemoteRejected     = "ERR_REMOTE_REJECTED"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Input errors -> 400 Bad Request
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidInput:    http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeRateLimited:     http.StatusTooManyRequests,
	"INVALID_BRANCH":       http.StatusBadRequest,
	"INVALID_DISCOUNT":     http.StatusBadRequest,
	"INVALID_ORDER_TYPE":   http.StatusBadRequest,
	"INVALID_PAYMENT":      http.StatusBadRequest,
	"INVALID_PRICE":        http.StatusBadRequest,
	"INVALID_QUANTITY":     http.StatusBadRequest,
	"INVALID_TAX":          http.StatusBadRequest,
	"INVALID_TABLE_STATUS": http.StatusBadRequest,
	"DUPLICATE_ITEM":       http.StatusBadRequest,
	"NO_ITEMS":             http.StatusBadRequest,
	"NOTHING_TO_MOVE":      http.StatusBadRequest,
	"SAME_TABLE":           http.StatusBadRequest,
	"TABLE_REQUIRED":       http.StatusBadRequest,

	ErrCodeUnauthorized: http.StatusUnauthorized,
	ErrCodeForbidden:    http.StatusForbidden,

	ErrCodeNotFound:  http.StatusNotFound,
	"ITEM_NOT_FOUND": http.StatusNotFound,

	// Floor and concurrency conflicts -> 409 Conflict
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeVersionConflict:    http.StatusConflict,
	ErrCodePreconditionFailed: http.StatusConflict,
	"TARGET_OCCUPIED":         http.StatusConflict,
	"TARGET_HAS_NO_ORDER":     http.StatusConflict,
	"SOURCE_HAS_NO_ORDER":     http.StatusConflict,
	"TABLE_HAS_ORDER":         http.StatusConflict,
	"ORDER_MISMATCH":          http.StatusConflict,

	// Lifecycle rules -> 422 Unprocessable Entity
	ErrCodeInvalidState:   http.StatusUnprocessableEntity,
	"INVALID_TRANSITION":  http.StatusUnprocessableEntity,
	"TERMINAL_STATE":      http.StatusUnprocessableEntity,
	ErrCodeRemoteRejected: http.StatusUnprocessableEntity,

	// The change was kept but could not be written to disk
	"PERSIST_FAILED": http.StatusInternalServerError,

	ErrCodeOffline:           http.StatusServiceUnavailable,
	ErrCodeRemoteUnavailable: http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// LegacyErrorCodeMapping maps generic domain codes to the facade's codes
var LegacyErrorCodeMapping = map[string]string{
	"NOT_FOUND":        ErrCodeNotFound,
	"INVALID_INPUT":    ErrCodeInvalidInput,
	"INVALID_STATE":    ErrCodeInvalidState,
	"UNAUTHORIZED":     ErrCodeUnauthorized,
	"FORBIDDEN":        ErrCodeForbidden,
	"VALIDATION_ERROR": ErrCodeValidation,
	"BAD_REQUEST":      ErrCodeBadRequest,
	"INTERNAL_ERROR":   ErrCodeInternal,
}

// NormalizeErrorCode converts a generic domain code to the facade format.
// Domain-specific codes are returned as-is.
func NormalizeErrorCode(code string) string {
	if newCode, ok := LegacyErrorCodeMapping[code]; ok {
		return newCode
	}
	return code
}

// RemoteErrorCode picks the code reported for a classified server failure
func RemoteErrorCode(kind shared.FailureKind) string {
	switch kind {
	case shared.FailureTransient:
		return ErrCodeRemoteUnavailable
	case shared.FailureVersionConflict:
		return ErrCodeVersionConflict
	case shared.FailurePrecondition:
		return ErrCodePreconditionFailed
	case shared.FailurePermission:
		return ErrCodeForbidden
	case shared.FailureValidation:
		return ErrCodeRemoteRejected
	}
	return ErrCodeUnknown
}
