package middleware

import (
	"context"
	"time"

	"github.com/erp/pos/internal/infrastructure/telemetry"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var attrRoute = attribute.Key("http.route")

// httpMetrics holds the facade's request instruments
type httpMetrics struct {
	requests       metric.Int64Counter
	duration       metric.Float64Histogram
	activeRequests metric.Int64UpDownCounter
}

func newHTTPMetrics(meter metric.Meter) (*httpMetrics, error) {
	requests, err := meter.Int64Counter("pos.http.requests",
		metric.WithDescription("Facade requests by method, route and status"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram("pos.http.request.duration",
		metric.WithDescription("Facade request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(telemetry.RemoteDurationBuckets...))
	if err != nil {
		return nil, err
	}
	active, err := meter.Int64UpDownCounter("pos.http.active_requests",
		metric.WithDescription("Requests being served"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}
	return &httpMetrics{requests: requests, duration: duration, activeRequests: active}, nil
}

// HTTPMetrics records request count, latency and in-flight requests on
// meter. Metrics that fail to register turn the middleware into a no-op.
func HTTPMetrics(meter metric.Meter, enabled bool) gin.HandlerFunc {
	if !enabled || meter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	metrics, err := newHTTPMetrics(meter)
	if err != nil {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		metrics.activeRequests.Add(ctx, 1)
		c.Next()
		metrics.activeRequests.Add(ctx, -1)

		metrics.record(ctx, c.Request.Method, routePattern(c), c.Writer.Status(), time.Since(start))
	}
}

func (m *httpMetrics) record(ctx context.Context, method, route string, status int, d time.Duration) {
	base := []attribute.KeyValue{
		telemetry.AttrMethod.String(method),
		attrRoute.String(route),
	}
	m.requests.Add(ctx, 1, metric.WithAttributes(append(base, telemetry.AttrStatusCode.Int(status))...))
	// status stays off the histogram to keep series low
	m.duration.Record(ctx, d.Seconds(), metric.WithAttributes(base...))
}

// routePattern returns the matched route ("/api/v1/orders/:id"), not the
// raw path
func routePattern(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unknown"
}

// StatusGroup buckets a status code into its class
func StatusGroup(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return "2xx"
	case statusCode >= 300 && statusCode < 400:
		return "3xx"
	case statusCode >= 400 && statusCode < 500:
		return "4xx"
	case statusCode >= 500:
		return "5xx"
	default:
		return "other"
	}
}
