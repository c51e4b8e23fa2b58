package telemetry

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
var (
	AttrEntityType = attribute.Key("entity_type")
	AttrOutcome    = attribute.Key("outcome")
	AttrTrigger    = attribute.Key("trigger")
	AttrMethod     = attribute.Key("http.method")
	AttrStatusCode = attribute.Key("http.status_code")
	AttrOnline     = attribute.Key("online")
	AttrPoolState  = attribute.Key("db.pool.state")
)

// Histogram buckets in seconds
var (
	RemoteDurationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}
	ReplayDurationBuckets = []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15}
)

// SyncMetrics records queue and remote call instruments. A nil *SyncMetrics
// is valid and records nothing.
type SyncMetrics struct {
	meter metric.Meter

	drains        metric.Int64Counter
	replays       metric.Int64Counter
	replayLatency metric.Float64Histogram
	remoteLatency metric.Float64Histogram
	transitions   metric.Int64Counter

	registrations []metric.Registration
}

// NewSyncMetrics creates the instruments on meter
func NewSyncMetrics(meter metric.Meter) (*SyncMetrics, error) {
	m := &SyncMetrics{meter: meter}
	var err error

	if m.drains, err = meter.Int64Counter("pos.sync.drains",
		metric.WithDescription("Drain passes by trigger and result"),
		metric.WithUnit("{pass}")); err != nil {
		return nil, fmt.Errorf("failed to create drains counter: %w", err)
	}
	if m.replays, err = meter.Int64Counter("pos.sync.replays",
		metric.WithDescription("Replayed queue entries by entity type and outcome"),
		metric.WithUnit("{entry}")); err != nil {
		return nil, fmt.Errorf("failed to create replays counter: %w", err)
	}
	if m.replayLatency, err = meter.Float64Histogram("pos.sync.replay.duration",
		metric.WithDescription("Time to replay one queue entry"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(ReplayDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create replay histogram: %w", err)
	}
	if m.remoteLatency, err = meter.Float64Histogram("pos.remote.duration",
		metric.WithDescription("Remote API call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(RemoteDurationBuckets...)); err != nil {
		return nil, fmt.Errorf("failed to create remote histogram: %w", err)
	}
	if m.transitions, err = meter.Int64Counter("pos.connectivity.transitions",
		metric.WithDescription("Online/offline transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, fmt.Errorf("failed to create transitions counter: %w", err)
	}
	return m, nil
}

// ObserveQueue registers gauges for pending queue depth and dead letters.
// The callbacks run on each collection.
func (m *SyncMetrics) ObserveQueue(pending, deadLetters func(ctx context.Context) (int64, error)) error {
	if m == nil {
		return nil
	}
	depth, err := m.meter.Int64ObservableGauge("pos.sync.queue.depth",
		metric.WithDescription("Entries waiting to be replayed"),
		metric.WithUnit("{entry}"))
	if err != nil {
		return fmt.Errorf("failed to create queue depth gauge: %w", err)
	}
	dead, err := m.meter.Int64ObservableGauge("pos.sync.dead_letters",
		metric.WithDescription("Entries dropped and awaiting operator action"),
		metric.WithUnit("{entry}"))
	if err != nil {
		return fmt.Errorf("failed to create dead letter gauge: %w", err)
	}

	reg, err := m.meter.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		if n, err := pending(ctx); err == nil {
			o.ObserveInt64(depth, n)
		}
		if n, err := deadLetters(ctx); err == nil {
			o.ObserveInt64(dead, n)
		}
		return nil
	}, depth, dead)
	if err != nil {
		return fmt.Errorf("failed to register queue callback: %w", err)
	}
	m.registrations = append(m.registrations, reg)
	return nil
}

// RecordDrain counts one drain pass
func (m *SyncMetrics) RecordDrain(ctx context.Context, trigger, result string) {
	if m == nil {
		return
	}
	m.drains.Add(ctx, 1, metric.WithAttributes(AttrTrigger.String(trigger), AttrOutcome.String(result)))
}

// RecordReplay counts one replayed entry and its duration
func (m *SyncMetrics) RecordReplay(ctx context.Context, entityType, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(AttrEntityType.String(entityType), AttrOutcome.String(outcome))
	m.replays.Add(ctx, 1, attrs)
	m.replayLatency.Record(ctx, d.Seconds(), attrs)
}

// RecordRemoteCall records one remote API call. status 0 means no response.
func (m *SyncMetrics) RecordRemoteCall(ctx context.Context, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.remoteLatency.Record(ctx, d.Seconds(), metric.WithAttributes(
		AttrMethod.String(method),
		AttrStatusCode.String(strconv.Itoa(status)),
	))
}

// RecordConnectivity counts a transition to the given state
func (m *SyncMetrics) RecordConnectivity(ctx context.Context, online bool) {
	if m == nil {
		return
	}
	m.transitions.Add(ctx, 1, metric.WithAttributes(AttrOnline.Bool(online)))
}

// Stop unregisters observable callbacks
func (m *SyncMetrics) Stop() {
	if m == nil {
		return
	}
	for _, r := range m.registrations {
		_ = r.Unregister()
	}
	m.registrations = nil
}
