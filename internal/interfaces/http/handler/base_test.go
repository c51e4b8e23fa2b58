package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/erp/pos/internal/domain/order"
	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/domain/table"
	"github.com/erp/pos/internal/infrastructure/logger"
	"github.com/erp/pos/internal/interfaces/http/dto"
	"github.com/erp/pos/tests/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newEngine returns a gin engine with the facade's request logger installed
func newEngine() *gin.Engine {
	engine := gin.New()
	engine.Use(logger.GinMiddleware(zap.NewNop()))
	return engine
}

func TestHandleError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, dto.ErrCodeNotFound},
		{"invalid input", shared.NewDomainError("INVALID_INPUT", "items is required"), http.StatusBadRequest, dto.ErrCodeInvalidInput},
		{"wrapped version conflict", fmt.Errorf("update status: %w", shared.ErrConcurrencyConflict), http.StatusConflict, "VERSION_CONFLICT"},
		{"occupied table", table.ErrTargetOccupied, http.StatusConflict, "TARGET_OCCUPIED"},
		{"invalid transition", order.ErrInvalidTransition, http.StatusUnprocessableEntity, "INVALID_TRANSITION"},
		{"terminal order", order.ErrTerminalState, http.StatusUnprocessableEntity, "TERMINAL_STATE"},
		{"offline", shared.ErrOffline, http.StatusServiceUnavailable, "OFFLINE"},
		{"remote conflict", &shared.RemoteError{Kind: shared.FailureVersionConflict, StatusCode: 409, Message: "stale"}, http.StatusConflict, "VERSION_CONFLICT"},
		{"remote permission", &shared.RemoteError{Kind: shared.FailurePermission, StatusCode: 403}, http.StatusForbidden, dto.ErrCodeForbidden},
		{"remote down", &shared.RemoteError{Kind: shared.FailureTransient, StatusCode: 502}, http.StatusServiceUnavailable, dto.ErrCodeRemoteUnavailable},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &BaseHandler{}
			engine := newEngine()
			engine.GET("/x", func(c *gin.Context) { h.HandleError(c, tt.err) })

			w := testutil.DoJSON(t, engine, http.MethodGet, "/x", nil)
			testutil.AssertErrorResponse(t, w, tt.status, tt.code)
		})
	}
}

func TestHandleError_CarriesRequestID(t *testing.T) {
	h := &BaseHandler{}
	engine := newEngine()
	engine.GET("/x", func(c *gin.Context) { h.HandleError(c, shared.ErrNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(logger.HeaderRequestID, "req-7")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)

	assert.Equal(t, "req-7", w.Header().Get(logger.HeaderRequestID))
	assert.Contains(t, w.Body.String(), `"request_id":"req-7"`)
}

func TestBindJSON(t *testing.T) {
	type body struct {
		Online *bool `json:"online" binding:"required"`
	}
	h := &BaseHandler{}
	engine := newEngine()
	engine.POST("/x", func(c *gin.Context) {
		var b body
		if !h.BindJSON(c, &b) {
			return
		}
		h.Success(c, b)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/x", nil)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodeInvalidJSON)
	})

	t.Run("missing field", func(t *testing.T) {
		w := testutil.DoJSON(t, engine, http.MethodPost, "/x", map[string]any{})
		testutil.AssertErrorResponse(t, w, http.StatusBadRequest, dto.ErrCodeValidation)
		assert.Contains(t, w.Body.String(), `"field":"Online"`)
	})

	t.Run("valid", func(t *testing.T) {
		w := testutil.DoJSON(t, engine, http.MethodPost, "/x", map[string]any{"online": false})
		got := testutil.DataAs[body](t, w)
		require.NotNil(t, got.Online)
		assert.False(t, *got.Online)
	})
}

func TestSystemHandler(t *testing.T) {
	db := &fakePinger{}
	h := NewSystemHandler("pos-agent", "till-1", db)
	engine := newEngine()
	engine.GET("/health", h.Health)
	engine.GET("/system/info", h.GetSystemInfo)
	engine.GET("/system/ping", h.Ping)

	w := testutil.DoJSON(t, engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	db.err = errors.New("database is locked")
	w = testutil.DoJSON(t, engine, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	info := testutil.DataAs[SystemInfoResponse](t, testutil.DoJSON(t, engine, http.MethodGet, "/system/info", nil))
	assert.Equal(t, "pos-agent", info.Name)
	assert.Equal(t, "till-1", info.TerminalID)
	assert.NotEmpty(t, info.GoVersion)

	pong := testutil.DataAs[PingResponse](t, testutil.DoJSON(t, engine, http.MethodGet, "/system/ping", nil))
	assert.Equal(t, "pong", pong.Message)
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping() error { return p.err }

func newJSONRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}
