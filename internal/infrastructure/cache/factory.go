package cache

import (
	"context"
	"fmt"

	"github.com/erp/pos/internal/domain/shared"
	"github.com/erp/pos/internal/infrastructure/config"
	"github.com/erp/pos/internal/infrastructure/persistence"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Idempotency backends accepted by sync.idempotency_backend
const (
	BackendMemory   = "memory"
	BackendDatabase = "database"
	BackendRedis    = "redis"
)

// IdempotencyStoreFactory creates idempotency stores based on configuration
type IdempotencyStoreFactory struct {
	redisConfig           config.RedisConfig
	db                    *gorm.DB
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithDatabase supplies the local database for the database backend
func WithDatabase(db *gorm.DB) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.db = db
	}
}

// WithInMemoryFallback controls whether an unreachable redis degrades to the
// in-memory store instead of failing startup. Default true.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(cfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		redisConfig:           cfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore builds the store for the named backend
func (f *IdempotencyStoreFactory) CreateStore(ctx context.Context, backend string) (shared.IdempotencyStore, error) {
	switch backend {
	case BackendMemory:
		f.logger.Warn("Using in-memory idempotency store; applied entries are forgotten on restart")
		return NewInMemoryIdempotencyStore(), nil

	case BackendDatabase:
		if f.db == nil {
			return nil, fmt.Errorf("database idempotency backend needs a database")
		}
		f.logger.Info("Using database idempotency store")
		return persistence.NewGormIdempotencyStore(f.db), nil

	case BackendRedis:
		store, err := NewRedisIdempotencyStore(ctx, f.redisConfig, DefaultKeyPrefix)
		if err == nil {
			f.logger.Info("Using Redis idempotency store", zap.String("addr", f.redisConfig.Addr()))
			return store, nil
		}
		if !f.allowInMemoryFallback {
			return nil, fmt.Errorf("redis required for idempotency but unavailable: %w", err)
		}
		f.logger.Warn("Redis unavailable, falling back to in-memory idempotency store", zap.Error(err))
		return NewInMemoryIdempotencyStore(), nil
	}
	return nil, fmt.Errorf("unknown idempotency backend %q", backend)
}
