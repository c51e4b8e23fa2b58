package syncqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/config"
	"github.com/erp/pos/internal/infrastructure/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Drain triggers
const (
	TriggerReconnect = "reconnect"
	TriggerManual    = "manual"
	TriggerPoll      = "poll"
	TriggerRetry     = "retry"
)

// Drain outcomes
const (
	OutcomeDrained = "drained"
	OutcomeStopped = "stopped"
	OutcomeOffline = "offline"
	OutcomeFailed  = "failed"
)

// Replay outcomes recorded per entry
const (
	replayApplied = "applied"
	replayDropped = "dropped"
	replayRetry   = "retry"
	replaySkipped = "skipped"
	replayRebased = "rebased"
)

// OnlineChecker is the connectivity flag the reconciler consults
type OnlineChecker interface {
	IsOnline() bool
}

// Refresher re-reads server state after the queue has been emptied
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Flusher retries local writes that only reached memory
type Flusher interface {
	Flush(ctx context.Context) (int, error)
}

type purger interface {
	Purge(ctx context.Context) (int64, error)
}

// DrainResult describes one pass over the queue
type DrainResult struct {
	Trigger    string    `json:"trigger"`
	Outcome    string    `json:"outcome"`
	Replayed   int       `json:"replayed"`
	Dropped    int       `json:"dropped"`
	Skipped    int       `json:"skipped"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// ReconcilerConfig holds the reconciler's timing
type ReconcilerConfig struct {
	PollInterval    time.Duration
	CallTimeout     time.Duration
	BatchSize       int
	IdempotencyTTL  time.Duration
	CleanupInterval time.Duration
}

// ReconcilerConfigFrom maps the sync section of the configuration
func ReconcilerConfigFrom(cfg config.SyncConfig) ReconcilerConfig {
	return ReconcilerConfig{
		PollInterval:    cfg.PollInterval,
		CallTimeout:     cfg.CallTimeout,
		BatchSize:       cfg.BatchSize,
		IdempotencyTTL:  cfg.IdempotencyTTL,
		CleanupInterval: time.Hour,
	}
}

func (c ReconcilerConfig) withDefaults() ReconcilerConfig {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.IdempotencyTTL <= 0 {
		c.IdempotencyTTL = shared.DefaultIdempotencyConfig().TTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = time.Hour
	}
	return c
}

// Reconciler drains the sync queue. Only one drain runs at a time;
// concurrent triggers share the running pass.
type Reconciler struct {
	repo      shared.SyncQueueRepository
	dead      shared.DeadLetterRepository
	applied   shared.IdempotencyStore
	online    OnlineChecker
	publisher shared.EventPublisher
	metrics   *telemetry.SyncMetrics
	config    ReconcilerConfig
	logger    *zap.Logger

	handlers   map[shared.EntityType]Handler
	refreshers []Refresher
	flushers   []Flusher

	flight singleflight.Group

	mu       sync.Mutex
	last     *DrainResult
	draining bool

	baseCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReconciler creates a reconciler. Handlers are registered afterwards by
// the application services.
func NewReconciler(
	repo shared.SyncQueueRepository,
	dead shared.DeadLetterRepository,
	applied shared.IdempotencyStore,
	online OnlineChecker,
	publisher shared.EventPublisher,
	cfg ReconcilerConfig,
	logger *zap.Logger,
) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{
		repo:      repo,
		dead:      dead,
		applied:   applied,
		online:    online,
		publisher: publisher,
		config:    cfg.withDefaults(),
		logger:    logger,
		handlers:  make(map[shared.EntityType]Handler),
		baseCtx:   context.Background(),
	}
}

// SetMetrics records drains and replays
func (r *Reconciler) SetMetrics(m *telemetry.SyncMetrics) {
	r.metrics = m
}

// Register installs the handler for an entity type
func (r *Reconciler) Register(entityType shared.EntityType, h Handler) {
	r.handlers[entityType] = h
}

// AddRefresher runs refresher after a pass that emptied the queue
func (r *Reconciler) AddRefresher(refresher Refresher) {
	r.refreshers = append(r.refreshers, refresher)
}

// AddFlusher retries the store's in-memory writes on every poll tick
func (r *Reconciler) AddFlusher(f Flusher) {
	r.flushers = append(r.flushers, f)
}

// Start runs the poll and cleanup loops until Stop
func (r *Reconciler) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	r.baseCtx = ctx
	r.cancel = cancel

	r.wg.Add(1)
	go r.pollLoop(ctx)

	if _, ok := r.applied.(purger); ok {
		r.wg.Add(1)
		go r.cleanupLoop(ctx)
	}

	r.logger.Info("sync reconciler started",
		zap.Int("batch_size", r.config.BatchSize),
		zap.Duration("poll_interval", r.config.PollInterval),
		zap.Duration("call_timeout", r.config.CallTimeout),
		zap.Int("handlers", len(r.handlers)),
	)
	return nil
}

// Stop stops the loops and waits for a running drain to finish
func (r *Reconciler) Stop(ctx context.Context) error {
	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info("sync reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Trigger starts a drain in the background and returns immediately. It is
// what the connectivity monitor calls on reconnect.
func (r *Reconciler) Trigger(trigger string) {
	ctx := r.baseCtx
	if ctx.Err() != nil {
		return
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.Drain(ctx, trigger)
	}()
}

// Drain replays the queue and returns the result. Callers arriving while a
// pass runs get that pass's result.
func (r *Reconciler) Drain(ctx context.Context, trigger string) DrainResult {
	v, _, _ := r.flight.Do("drain", func() (any, error) {
		return r.drain(ctx, trigger), nil
	})
	return v.(DrainResult)
}

func (r *Reconciler) pollLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.flush(ctx)
			if r.online.IsOnline() {
				r.Drain(ctx, TriggerPoll)
			}
		}
	}
}

func (r *Reconciler) flush(ctx context.Context) {
	for _, f := range r.flushers {
		remaining, err := f.Flush(ctx)
		if err != nil {
			r.logger.Warn("local store flush failed", zap.Int("remaining", remaining), zap.Error(err))
		}
	}
}

func (r *Reconciler) cleanupLoop(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.cleanup(ctx)
		}
	}
}

// cleanup removes expired applied-entry keys
func (r *Reconciler) cleanup(ctx context.Context) {
	p, ok := r.applied.(purger)
	if !ok {
		return
	}
	deleted, err := p.Purge(ctx)
	if err != nil {
		r.logger.Error("failed to purge applied keys", zap.Error(err))
		return
	}
	if deleted > 0 {
		r.logger.Info("purged expired applied keys", zap.Int64("deleted", deleted))
	}
}

func (r *Reconciler) drain(ctx context.Context, trigger string) (res DrainResult) {
	res = DrainResult{Trigger: trigger, StartedAt: time.Now().UTC()}

	r.mu.Lock()
	r.draining = true
	r.mu.Unlock()

	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "drain", "pos.sync.trigger", trigger)
	defer func() {
		res.FinishedAt = time.Now().UTC()
		telemetry.SetAttributes(span, "pos.sync.outcome", res.Outcome, "pos.sync.replayed", res.Replayed, "pos.sync.dropped", res.Dropped)
		span.End()
		r.metrics.RecordDrain(ctx, trigger, res.Outcome)

		r.mu.Lock()
		r.draining = false
		last := res
		r.last = &last
		r.mu.Unlock()

		if res.Outcome != OutcomeOffline {
			r.logger.Info("sync drain finished",
				zap.String("trigger", trigger),
				zap.String("outcome", res.Outcome),
				zap.Int("replayed", res.Replayed),
				zap.Int("dropped", res.Dropped),
				zap.Int("skipped", res.Skipped),
				zap.Duration("took", res.FinishedAt.Sub(res.StartedAt)),
			)
		}
	}()

	if !r.online.IsOnline() {
		res.Outcome = OutcomeOffline
		return res
	}

	for {
		entries, err := r.repo.ListPending(ctx, r.config.BatchSize)
		if err != nil {
			res.Outcome = OutcomeFailed
			res.Error = err.Error()
			telemetry.RecordError(span, err)
			return res
		}
		if len(entries) == 0 {
			break
		}
	batch:
		for _, entry := range entries {
			if ctx.Err() != nil {
				res.Outcome = OutcomeStopped
				res.Error = ctx.Err().Error()
				return res
			}
			outcome, err := r.replay(ctx, entry)
			switch outcome {
			case replayApplied, replayRebased:
				res.Replayed++
				if outcome == replayRebased {
					// later entries in this batch carry stale base versions
					break batch
				}
			case replayDropped:
				res.Dropped++
			case replaySkipped:
				res.Skipped++
			case replayRetry:
				res.Outcome = OutcomeStopped
				if err != nil {
					res.Error = err.Error()
				}
				return res
			}
		}
	}

	res.Outcome = OutcomeDrained
	if res.Replayed > 0 || res.Skipped > 0 {
		r.refresh(ctx)
	}
	return res
}

func (r *Reconciler) refresh(ctx context.Context) {
	for _, refresher := range r.refreshers {
		if err := refresher.Refresh(ctx); err != nil {
			r.logger.Warn("refresh after drain failed", zap.Error(err))
		}
	}
}

// replay handles one entry. It returns replayRetry, with the cause, when
// the pass must stop with the entry still at the head of the queue.
func (r *Reconciler) replay(ctx context.Context, entry *shared.SyncQueueEntry) (outcome string, err error) {
	start := time.Now()
	ctx, span := telemetry.StartServiceSpan(ctx, "sync", "replay",
		telemetry.SpanAttrEntityType, string(entry.EntityType),
		telemetry.SpanAttrEntityID, entry.EntityID.String(),
		telemetry.SpanAttrOperation, string(entry.Operation),
		telemetry.SpanAttrEntrySeq, entry.Seq,
	)
	defer func() {
		telemetry.RecordError(span, err)
		span.End()
		recorded := outcome
		if recorded == replayRebased {
			recorded = replayApplied
		}
		r.metrics.RecordReplay(ctx, string(entry.EntityType), recorded, time.Since(start))
	}()

	log := r.logger.With(
		zap.Int64("seq", entry.Seq),
		zap.String("entry_id", entry.ID.String()),
		zap.String("entity_type", string(entry.EntityType)),
		zap.String("entity_id", entry.EntityID.String()),
		zap.String("operation", string(entry.Operation)),
	)

	key := entry.ID.String()
	done, err := r.applied.IsProcessed(ctx, key)
	if err != nil {
		log.Warn("applied-key lookup failed", zap.Error(err))
	}
	if done {
		// accepted before a crash; do not send twice
		if err := r.repo.Delete(ctx, entry.ID); err != nil {
			return replayRetry, fmt.Errorf("delete applied entry: %w", err)
		}
		log.Info("entry already accepted by server, removed")
		return replaySkipped, nil
	}

	h, ok := r.handlers[entry.EntityType]
	if !ok {
		cause := shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("no replay handler for %s", entry.EntityType))
		return r.drop(ctx, log, entry, nil, shared.FailureValidation, cause)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
	apply, sendErr := h.Send(callCtx, entry)
	cancel()

	if sendErr != nil {
		kind := shared.ClassifyFailure(sendErr)
		telemetry.SetAttributes(span, telemetry.SpanAttrFailure, string(kind))
		if !kind.IsPermanent() {
			entry.RecordAttempt(sendErr.Error())
			if err := r.repo.RecordAttempt(ctx, entry); err != nil {
				log.Error("failed to record attempt", zap.Error(err))
			}
			log.Warn("replay failed, will retry", zap.Int("attempts", entry.Attempts), zap.Error(sendErr))
			return replayRetry, sendErr
		}
		return r.drop(ctx, log, entry, h, kind, sendErr)
	}

	if _, err := r.applied.MarkProcessed(ctx, key, r.config.IdempotencyTTL); err != nil {
		log.Warn("failed to record applied key", zap.Error(err))
	}

	outcome = replayApplied
	if apply != nil {
		changes, err := apply(ctx, r.repo)
		if err != nil {
			// the server has it; the local copy catches up on the next refresh
			log.Error("failed to apply server result locally", zap.Error(err))
		}
		for _, c := range changes {
			if c.From == c.To {
				continue
			}
			moved, err := r.repo.RebaseVersion(ctx, c.EntityID, c.From, c.To)
			if err != nil {
				log.Error("failed to rebase queued entries", zap.String("rebase_entity", c.EntityID.String()), zap.Error(err))
				continue
			}
			if moved > 0 {
				outcome = replayRebased
				log.Debug("rebased queued entries",
					zap.String("rebase_entity", c.EntityID.String()),
					zap.String("from", c.From),
					zap.String("to", c.To),
					zap.Int64("moved", moved),
				)
			}
		}
	}

	if err := r.repo.Delete(ctx, entry.ID); err != nil {
		return replayRetry, fmt.Errorf("delete replayed entry: %w", err)
	}
	log.Debug("entry replayed")
	return outcome, nil
}

// drop moves a permanently rejected entry to the dead letters, undoes its
// local effect and tells the operator. If the dead letter cannot be saved
// the entry stays queued.
func (r *Reconciler) drop(ctx context.Context, log *zap.Logger, entry *shared.SyncQueueEntry, h Handler, kind shared.FailureKind, cause error) (string, error) {
	code := shared.FailureCode(cause)
	msg := failureMessage(cause)

	letter := shared.NewSyncDeadLetter(entry, kind, code, msg)
	if err := r.dead.Save(ctx, letter); err != nil {
		log.Error("failed to save dead letter, keeping entry", zap.Error(err))
		return replayRetry, fmt.Errorf("save dead letter: %w", err)
	}

	var rolledBack bool
	if h != nil {
		rejectCtx, cancel := context.WithTimeout(ctx, r.config.CallTimeout)
		var err error
		rolledBack, err = h.Reject(rejectCtx, entry, cause)
		cancel()
		if err != nil {
			log.Error("failed to undo local change", zap.Error(err))
		}
	}

	ev := shared.NewSyncNotificationEvent(shared.EventTypeSyncEntryDropped, entry.EntityType, entry.EntityID, entry.Operation, kind, code, msg)
	ev.DeadLetterID = &letter.ID
	ev.RolledBack = rolledBack
	if r.publisher != nil {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			log.Warn("failed to publish drop notification", zap.Error(err))
		}
	}

	if err := r.repo.Delete(ctx, entry.ID); err != nil {
		return replayRetry, fmt.Errorf("delete dropped entry: %w", err)
	}

	log.Warn("entry dropped",
		zap.String("kind", string(kind)),
		zap.String("code", code),
		zap.String("dead_letter_id", letter.ID.String()),
		zap.Bool("rolled_back", rolledBack),
		zap.Error(cause),
	)
	return replayDropped, nil
}

func failureMessage(err error) string {
	var re *shared.RemoteError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	var de *shared.DomainError
	if errors.As(err, &de) {
		return de.Message
	}
	return err.Error()
}

// handlerFor returns the handler registered for an entity type
func (r *Reconciler) handlerFor(entityType shared.EntityType) (Handler, error) {
	h, ok := r.handlers[entityType]
	if !ok {
		return nil, shared.NewDomainError(shared.ErrInvalidInput.Code, fmt.Sprintf("no replay handler for %s", entityType))
	}
	return h, nil
}
