package connectivity

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/config"
	"go.uber.org/zap"
)

// HealthChecker is the remote call the prober makes
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Prober polls the server's health endpoint and feeds the monitor
type Prober struct {
	checker  HealthChecker
	monitor  *Monitor
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewProber creates a prober
func NewProber(checker HealthChecker, monitor *Monitor, cfg config.ConnectivityConfig, logger *zap.Logger) *Prober {
	interval := cfg.ProbeInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := cfg.ProbeTimeout
	if timeout <= 0 || timeout > interval {
		timeout = interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Prober{
		checker:  checker,
		monitor:  monitor,
		interval: interval,
		timeout:  timeout,
		logger:   logger,
	}
}

// Probe runs one health check and returns the resulting online flag.
// A server that answers with a non-transient error is reachable and counts
// as online; only transport failures, timeouts, 5xx and 429 count as offline.
func (p *Prober) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.checker.Health(ctx)
	if errors.Is(context.Cause(ctx), context.Canceled) {
		// shutting down; the flag stays as it was
		return p.monitor.IsOnline()
	}
	online := err == nil || shared.ClassifyFailure(err) != shared.FailureTransient
	if err != nil && !online {
		p.logger.Debug("Health probe failed", zap.Error(err))
	}
	p.monitor.SetOnline(online)
	return online
}

// Start probes once right away and then every interval
func (p *Prober) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = true
	p.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.wg.Add(1)
	go p.runLoop(ctx)

	p.logger.Info("Connectivity prober started",
		zap.Duration("interval", p.interval),
		zap.Duration("timeout", p.timeout),
	)
	return nil
}

// Stop stops probing and waits for the loop to exit
func (p *Prober) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("Connectivity prober stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Prober) runLoop(ctx context.Context) {
	defer p.wg.Done()

	p.Probe(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Probe(ctx)
		}
	}
}
