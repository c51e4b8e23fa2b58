// Command posagent runs the terminal's offline sync agent: the local store,
// the sync queue reconciler, the connectivity prober and the loopback HTTP
// facade the POS UI talks to.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	couponapp "github.com/erp/pos/internal/application/coupon"
	orderapp "github.com/erp/pos/internal/application/order"
	snapshotapp "github.com/erp/pos/internal/application/snapshot"
	"github.com/erp/pos/internal/application/syncqueue"
	tableapp "github.com/erp/pos/internal/application/table"
	"github.com/erp/pos/internal/infrastructure/cache"
	"github.com/erp/pos/internal/infrastructure/config"
	"github.com/erp/pos/internal/infrastructure/connectivity"
	"github.com/erp/pos/internal/infrastructure/event"
	"github.com/erp/pos/internal/infrastructure/logger"
	"github.com/erp/pos/internal/infrastructure/persistence"
	"github.com/erp/pos/internal/infrastructure/remote"
	"github.com/erp/pos/internal/infrastructure/telemetry"
	"github.com/erp/pos/internal/interfaces/http/handler"
	"github.com/erp/pos/internal/interfaces/http/middleware"
	"github.com/erp/pos/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "posagent: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	logCfg := &logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}

	// Telemetry comes first so the log bridge core can be teed into the logger
	bootLog, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	providers, err := telemetry.NewProviders(ctx, cfg.Telemetry, bootLog)
	if err != nil {
		return err
	}
	log, err := logger.New(logCfg, providers.LogCore(zapcore.InfoLevel))
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log = log.With(zap.String("terminal_id", cfg.App.TerminalID))
	defer func() { _ = log.Sync() }()

	log.Info("Starting POS agent",
		zap.String("name", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("branch_id", cfg.App.BranchID),
		zap.String("remote", cfg.Remote.BaseURL),
	)

	meter := providers.Meter("posagent")
	metrics, err := telemetry.NewSyncMetrics(meter)
	if err != nil {
		return err
	}
	defer metrics.Stop()

	db, err := persistence.NewDatabase(&cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close database", zap.Error(err))
		}
	}()
	if cfg.Telemetry.DBTraceEnabled {
		if err := telemetry.RegisterDBTracing(db.DB, telemetry.DBTracingConfig{
			DBSystem:      dbSystem(cfg.Database.Driver),
			WithVariables: cfg.App.Env == "development",
		}, log); err != nil {
			return err
		}
	}
	if sqlDB, err := db.DB.DB(); err == nil {
		if reg, err := telemetry.RegisterPoolMetrics(meter, sqlDB); err != nil {
			log.Warn("Pool metrics unavailable", zap.Error(err))
		} else {
			defer func() { _ = reg.Unregister() }()
		}
	}

	// Local store
	orders := persistence.NewOrderStore(db.DB, log)
	tables := persistence.NewTableStore(db.DB, log)
	zones := persistence.NewZoneStore(db.DB, log)
	snapshots := persistence.NewSnapshotStore(db.DB, log)
	queueRepo := persistence.NewGormSyncQueueRepository(db.DB)
	deadLetters := persistence.NewGormDeadLetterRepository(db.DB)

	applied, err := cache.NewIdempotencyStoreFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithDatabase(db.DB),
	).CreateStore(ctx, cfg.Sync.IdempotencyBackend)
	if err != nil {
		return err
	}
	defer func() { _ = applied.Close() }()

	client, err := remote.New(cfg.Remote, remote.WithLogger(log.Named("remote")), remote.WithMetrics(metrics))
	if err != nil {
		return err
	}

	monitor := connectivity.NewMonitor(connectivity.WithLogger(log), connectivity.WithMetrics(metrics))
	prober := connectivity.NewProber(client, monitor, cfg.Connectivity, log.Named("prober"))

	bus := event.NewInMemoryEventBus(log)
	notifications := syncqueue.NewNotificationLog(cfg.Sync.NotificationBuffer, log)
	bus.Subscribe(notifications, notifications.EventTypes()...)

	reconciler := syncqueue.NewReconciler(queueRepo, deadLetters, applied, monitor, bus,
		syncqueue.ReconcilerConfigFrom(cfg.Sync), log.Named("reconciler"))
	reconciler.SetMetrics(metrics)
	if err := metrics.ObserveQueue(queueRepo.Count, deadLetters.Count); err != nil {
		log.Warn("Queue gauges unavailable", zap.Error(err))
	}

	// Services share one lock so a floor change and an order write never
	// interleave their local updates
	branchID := cfg.App.Branch()
	queue := syncqueue.NewQueue(queueRepo, log)
	lock := &sync.Mutex{}

	tableService := tableapp.NewService(tables, zones, orders, queue, client, monitor, branchID, log.Named("tables"))
	tableService.SetEventPublisher(bus)
	tableService.SetLock(lock)
	tableService.Register(reconciler)

	orderService := orderapp.NewService(orders, tables, queue, client, monitor, branchID, log.Named("orders"))
	orderService.SetEventPublisher(bus)
	orderService.SetFloorRefresher(tableService)
	orderService.SetLock(lock)
	orderService.Register(reconciler)

	snapshotService := snapshotapp.NewService(snapshots, client, monitor, branchID, log.Named("snapshots"))
	couponService := couponapp.NewService(client, monitor, branchID, cfg.Sync.CallTimeout, log.Named("coupons"))

	reconciler.AddRefresher(tableService)
	reconciler.AddRefresher(orderService)
	reconciler.AddRefresher(snapshotService)
	flushers := []syncqueue.Flusher{orders, tables, zones, snapshots}
	for _, f := range flushers {
		reconciler.AddFlusher(f)
	}

	unsubscribe := monitor.Subscribe(func() {
		log.Info("Server reachable again, draining sync queue")
		reconciler.Trigger(syncqueue.TriggerReconnect)
	})
	defer unsubscribe()

	engine := newEngine(cfg, meter, log)
	system := handler.NewSystemHandler(cfg.App.Name, cfg.App.TerminalID, db)
	engine.GET("/health", system.Health)
	var syncThrottle gin.HandlerFunc
	if cfg.HTTP.SyncRateLimit > 0 {
		syncThrottle = middleware.RateLimit(middleware.NewRateLimiter(cfg.HTTP.SyncRateLimit, cfg.HTTP.SyncRateWindow))
	}
	router.NewRouter(engine).RegisterAll(router.Handlers{
		Orders:  handler.NewOrderHandler(orderService),
		Tables:  handler.NewTableHandler(tableService),
		Catalog: handler.NewCatalogHandler(couponService, snapshotService),
		Sync:    handler.NewSyncHandler(reconciler, notifications, monitor),
		System:  system,

		SyncThrottle: syncThrottle,
	}).Setup()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      engine,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	if err := bus.Start(ctx); err != nil {
		return err
	}
	if err := reconciler.Start(ctx); err != nil {
		return err
	}
	if err := prober.Start(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Facade listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("facade server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down POS agent")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Stop taking requests first, then let a running drain finish
		err := errors.Join(
			srv.Shutdown(shutdownCtx),
			prober.Stop(shutdownCtx),
			reconciler.Stop(shutdownCtx),
			bus.Stop(shutdownCtx),
			providers.Shutdown(shutdownCtx),
		)
		// Writes that only reached memory get one last chance before the
		// database closes
		for _, f := range flushers {
			if n, flushErr := f.Flush(shutdownCtx); flushErr != nil || n > 0 {
				log.Info("Flushed pending local writes", zap.Int("count", n), zap.Error(flushErr))
			}
		}
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("POS agent stopped with error", zap.Error(err))
		return err
	}
	log.Info("POS agent stopped")
	return nil
}

// newEngine builds the facade engine with its global middleware. API-only
// middleware goes through the router.
func newEngine(cfg *config.Config, meter metric.Meter, log *zap.Logger) *gin.Engine {
	if cfg.App.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	cors := middleware.DefaultCORSConfig()
	cors.AllowOrigins = cfg.HTTP.CORSAllowOrigins

	engine := gin.New()
	engine.Use(
		logger.Recovery(log),
		middleware.LoopbackOnly(),
		middleware.TracingWithConfig(middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		}),
		logger.GinMiddleware(log),
		middleware.SpanEnricher(cfg.App.TerminalID),
		middleware.HTTPMetrics(meter, cfg.Telemetry.Enabled),
		middleware.CORSWithConfig(cors),
		middleware.BodyLimit(cfg.HTTP.MaxBodySize),
	)
	return engine
}

func dbSystem(driver string) string {
	if driver == "postgres" {
		return "postgresql"
	}
	return driver
}
