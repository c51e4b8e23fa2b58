// Package connectivity tracks whether the server is reachable. Application
// services ask IsOnline before every mutation; the reconciler subscribes to
// the offline to online transition to start draining the sync queue.
package connectivity

import (
	"context"
	"sync"

	"github.com/erp/pos/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Status is a point-in-time view of the monitor
type Status struct {
	Online      bool  `json:"online"`
	Transitions int64 `json:"transitions"`
}

// Monitor holds the online flag. It starts offline until a probe or a
// platform signal says otherwise.
type Monitor struct {
	logger  *zap.Logger
	metrics *telemetry.SyncMetrics

	mu          sync.Mutex
	online      bool
	transitions int64
	nextID      uint64
	subscribers map[uint64]func()
}

// MonitorOption configures a Monitor
type MonitorOption func(*Monitor)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) MonitorOption {
	return func(m *Monitor) { m.logger = l }
}

// WithMetrics records transitions
func WithMetrics(sm *telemetry.SyncMetrics) MonitorOption {
	return func(m *Monitor) { m.metrics = sm }
}

// WithInitialState sets the starting flag
func WithInitialState(online bool) MonitorOption {
	return func(m *Monitor) { m.online = online }
}

// NewMonitor creates a monitor
func NewMonitor(opts ...MonitorOption) *Monitor {
	m := &Monitor{
		logger:      zap.NewNop(),
		subscribers: make(map[uint64]func()),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsOnline reports the current flag
func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// Status returns the flag and how many times it flipped
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{Online: m.online, Transitions: m.transitions}
}

// SetOnline records a connectivity signal and reports whether the flag
// changed. Subscribers run after an offline to online flip, on the caller's
// goroutine and outside the lock, so they must not block.
func (m *Monitor) SetOnline(online bool) bool {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return false
	}
	m.online = online
	m.transitions++
	var fire []func()
	if online {
		fire = make([]func(), 0, len(m.subscribers))
		for _, fn := range m.subscribers {
			fire = append(fire, fn)
		}
	}
	m.mu.Unlock()

	m.metrics.RecordConnectivity(context.Background(), online)
	if online {
		m.logger.Info("Connectivity restored", zap.Int("subscribers", len(fire)))
	} else {
		m.logger.Warn("Connectivity lost, writes will be queued")
	}

	for _, fn := range fire {
		m.notify(fn)
	}
	return true
}

func (m *Monitor) notify(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("Connectivity subscriber panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

// Subscribe registers fn for offline to online transitions. The returned
// function removes it and is safe to call more than once.
func (m *Monitor) Subscribe(fn func()) (unsubscribe func()) {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.subscribers[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subscribers, id)
			m.mu.Unlock()
		})
	}
}
