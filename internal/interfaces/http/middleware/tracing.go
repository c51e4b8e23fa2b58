// Package middleware provides the gin middleware of the local facade.
package middleware

import (
	"net/http"

	"github.com/erp/pos/internal/infrastructure/logger"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// MaxHeaderAttributeLength caps header values copied onto spans
const MaxHeaderAttributeLength = 128

// TracingConfig holds configuration for the tracing middleware.
type TracingConfig struct {
	// ServiceName is the name of the service for trace identification.
	ServiceName string
	Enabled     bool
}

// TracingWithConfig returns OpenTelemetry tracing middleware wrapping
// otelgin. Spans are named "HTTP METHOD route_pattern".
func TracingWithConfig(cfg TracingConfig) gin.HandlerFunc {
	if !cfg.Enabled {
		return func(c *gin.Context) {
			c.Next()
		}
	}
	return otelgin.Middleware(cfg.ServiceName)
}

// SpanEnricher adds the terminal, request ID and operator to the request
// span and marks 4xx/5xx responses as errors. It must come after the
// tracing and logger middleware in the chain.
func SpanEnricher(terminalID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		span := trace.SpanFromContext(c.Request.Context())
		if !span.IsRecording() {
			c.Next()
			return
		}
		enrichSpan(c, span, terminalID)
		c.Next()
		markSpanStatus(span, c.Writer.Status())
	}
}

func enrichSpan(c *gin.Context, span trace.Span, terminalID string) {
	if terminalID != "" {
		span.SetAttributes(attribute.String("pos.terminal_id", terminalID))
	}
	if id := logger.GetRequestID(c.Request.Context()); id != "" {
		span.SetAttributes(attribute.String("request_id", truncate(id)))
	}
	if op := logger.GetOperator(c.Request.Context()); op != "" {
		span.SetAttributes(attribute.String("pos.operator", truncate(op)))
	}
}

func markSpanStatus(span trace.Span, statusCode int) {
	if statusCode < http.StatusBadRequest {
		return
	}
	span.SetStatus(codes.Error, http.StatusText(statusCode))
	span.SetAttributes(attribute.Int("http.status_code", statusCode))
}

func truncate(s string) string {
	if len(s) > MaxHeaderAttributeLength {
		return s[:MaxHeaderAttributeLength]
	}
	return s
}
