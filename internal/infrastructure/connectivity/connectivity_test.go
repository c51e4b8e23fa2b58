package connectivity

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/config"
	"github.com/erp/pos/internal/infrastructure/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
)

type mockHealthChecker struct {
	mock.Mock
}

func (m *mockHealthChecker) Health(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func TestMonitor_StartsOffline(t *testing.T) {
	m := NewMonitor()
	assert.False(t, m.IsOnline())
	assert.True(t, NewMonitor(WithInitialState(true)).IsOnline())
}

func TestMonitor_SubscribersFireOnlyWhenComingOnline(t *testing.T) {
	m := NewMonitor()
	var fired int
	unsubscribe := m.Subscribe(func() { fired++ })

	assert.True(t, m.SetOnline(true))
	assert.False(t, m.SetOnline(true), "no change, no transition")
	assert.True(t, m.SetOnline(false))
	assert.True(t, m.SetOnline(true))
	assert.Equal(t, 2, fired)

	unsubscribe()
	unsubscribe()
	m.SetOnline(false)
	m.SetOnline(true)
	assert.Equal(t, 2, fired)

	assert.Equal(t, Status{Online: true, Transitions: 5}, m.Status())
}

func TestMonitor_PanickingSubscriberDoesNotStopOthers(t *testing.T) {
	m := NewMonitor(WithLogger(zap.NewNop()))
	var calls atomic.Int32
	m.Subscribe(func() { panic("boom") })
	m.Subscribe(func() { calls.Add(1) })

	assert.NotPanics(t, func() { m.SetOnline(true) })
	assert.Equal(t, int32(1), calls.Load())
}

func TestMonitor_SubscriberMayReadState(t *testing.T) {
	m := NewMonitor()
	var sawOnline bool
	m.Subscribe(func() { sawOnline = m.IsOnline() })
	m.SetOnline(true)
	assert.True(t, sawOnline)
}

func TestMonitor_ConcurrentSignals(t *testing.T) {
	m := NewMonitor()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(online bool) {
			defer wg.Done()
			m.SetOnline(online)
			_ = m.IsOnline()
		}(i%2 == 0)
	}
	wg.Wait()
	assert.LessOrEqual(t, m.Status().Transitions, int64(50))
}

func TestMonitor_RecordsTransitions(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	sm, err := telemetry.NewSyncMetrics(mp.Meter("test"))
	require.NoError(t, err)

	m := NewMonitor(WithMetrics(sm))
	m.SetOnline(true)
	m.SetOnline(false)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	var points int
	for _, scope := range rm.ScopeMetrics {
		for _, metric := range scope.Metrics {
			if metric.Name == "pos.connectivity.transitions" {
				points = len(metric.Data.(metricdata.Sum[int64]).DataPoints)
			}
		}
	}
	assert.Equal(t, 2, points)
}

func TestProber_Probe(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		online bool
	}{
		{"healthy", nil, true},
		{"transport failure", &shared.RemoteError{Kind: shared.FailureTransient, Message: "request failed"}, false},
		{"server error", &shared.RemoteError{Kind: shared.FailureTransient, StatusCode: http.StatusBadGateway}, false},
		{"reachable but unauthorized", &shared.RemoteError{Kind: shared.FailurePermission, StatusCode: http.StatusUnauthorized}, true},
		{"unclassified error", errors.New("dial tcp: refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := new(mockHealthChecker)
			checker.On("Health", mock.Anything).Return(tt.err)

			m := NewMonitor(WithInitialState(!tt.online))
			p := NewProber(checker, m, config.ConnectivityConfig{ProbeInterval: time.Second, ProbeTimeout: 100 * time.Millisecond}, nil)

			assert.Equal(t, tt.online, p.Probe(context.Background()))
			assert.Equal(t, tt.online, m.IsOnline())
			checker.AssertExpectations(t)
		})
	}
}

func TestProber_ProbeUsesTimeout(t *testing.T) {
	checker := new(mockHealthChecker)
	checker.On("Health", mock.Anything).Run(func(args mock.Arguments) {
		ctx := args.Get(0).(context.Context)
		_, ok := ctx.Deadline()
		assert.True(t, ok)
		<-ctx.Done()
	}).Return(context.DeadlineExceeded)

	m := NewMonitor(WithInitialState(true))
	p := NewProber(checker, m, config.ConnectivityConfig{ProbeInterval: time.Second, ProbeTimeout: 20 * time.Millisecond}, nil)

	assert.False(t, p.Probe(context.Background()))
	assert.False(t, m.IsOnline())
}

func TestProber_CancelledProbeKeepsState(t *testing.T) {
	checker := new(mockHealthChecker)
	checker.On("Health", mock.Anything).Return(context.Canceled)

	m := NewMonitor(WithInitialState(true))
	p := NewProber(checker, m, config.ConnectivityConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, p.Probe(ctx))
	assert.Equal(t, int64(0), m.Status().Transitions)
}

func TestProber_StartStop(t *testing.T) {
	checker := new(mockHealthChecker)
	checker.On("Health", mock.Anything).Return(nil)

	m := NewMonitor()
	came := make(chan struct{}, 1)
	m.Subscribe(func() {
		select {
		case came <- struct{}{}:
		default:
		}
	})

	p := NewProber(checker, m, config.ConnectivityConfig{ProbeInterval: 10 * time.Millisecond}, zap.NewNop())
	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()), "second start is a no-op")

	select {
	case <-came:
	case <-time.After(time.Second):
		t.Fatal("prober never brought the monitor online")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, p.Stop(ctx))
	require.NoError(t, p.Stop(ctx))
	assert.True(t, m.IsOnline())
}

func TestNewProber_Defaults(t *testing.T) {
	p := NewProber(new(mockHealthChecker), NewMonitor(), config.ConnectivityConfig{ProbeInterval: time.Second, ProbeTimeout: time.Minute}, nil)
	assert.Equal(t, time.Second, p.interval)
	assert.Equal(t, time.Second, p.timeout, "timeout never exceeds the interval")

	p = NewProber(new(mockHealthChecker), NewMonitor(), config.ConnectivityConfig{}, nil)
	assert.Equal(t, 5*time.Second, p.interval)
}
