package dto

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPStatus(t *testing.T) {
	tests := []struct {
		code     string
		expected int
	}{
		{ErrCodeInternal, http.StatusInternalServerError},
		{ErrCodeValidation, http.StatusBadRequest},
		{ErrCodeInvalidInput, http.StatusBadRequest},
		{ErrCodeNotFound, http.StatusNotFound},
		{ErrCodeVersionConflict, http.StatusConflict},
		{"TARGET_OCCUPIED", http.StatusConflict},
		{"TARGET_HAS_NO_ORDER", http.StatusConflict},
		{"INVALID_TRANSITION", http.StatusUnprocessableEntity},
		{"TERMINAL_STATE", http.StatusUnprocessableEntity},
		{ErrCodeOffline, http.StatusServiceUnavailable},
		{ErrCodeRemoteUnavailable, http.StatusServiceUnavailable},
		{ErrCodeForbidden, http.StatusForbidden},
		{ErrCodeRateLimited, http.StatusTooManyRequests},
		// Unknown code should return 500
		{"UNKNOWN_CODE", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetHTTPStatus(tt.code))
		})
	}
}

func TestNormalizeErrorCode(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"NOT_FOUND", ErrCodeNotFound},
		{"INVALID_INPUT", ErrCodeInvalidInput},
		{"INVALID_STATE", ErrCodeInvalidState},
		{"FORBIDDEN", ErrCodeForbidden},
		// Domain-specific codes pass through
		{"VERSION_CONFLICT", "VERSION_CONFLICT"},
		{"TARGET_OCCUPIED", "TARGET_OCCUPIED"},
		{"OFFLINE", "OFFLINE"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeErrorCode(tt.input))
		})
	}
}

func TestRemoteErrorCode(t *testing.T) {
	tests := []struct {
		kind   shared.FailureKind
		status int
	}{
		{shared.FailureTransient, http.StatusServiceUnavailable},
		{shared.FailureVersionConflict, http.StatusConflict},
		{shared.FailurePrecondition, http.StatusConflict},
		{shared.FailurePermission, http.StatusForbidden},
		{shared.FailureValidation, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.status, GetHTTPStatus(RemoteErrorCode(tt.kind)))
		})
	}
}

func TestValidationErrorResponse(t *testing.T) {
	resp := NewValidationErrorResponse("Request validation failed", "req-1", []ValidationDetail{
		{Field: "items", Message: "items is required"},
	})

	body, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, false, decoded["success"])
	errInfo := decoded["error"].(map[string]any)
	assert.Equal(t, ErrCodeValidation, errInfo["code"])
	assert.Equal(t, "req-1", errInfo["request_id"])
	assert.Len(t, errInfo["details"], 1)
}
