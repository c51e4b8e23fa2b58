package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/viper"
)

// Config holds all terminal agent configuration
type Config struct {
	App          AppConfig
	Database     DatabaseConfig
	Remote       RemoteConfig
	Connectivity ConnectivityConfig
	Sync         SyncConfig
	Redis        RedisConfig
	Log          LogConfig
	HTTP         HTTPConfig
	Telemetry    TelemetryConfig
}

// AppConfig identifies the terminal
type AppConfig struct {
	Name       string
	Env        string
	TerminalID string
	BranchID   string
}

// Branch returns the configured branch id, uuid.Nil when unset
func (a AppConfig) Branch() uuid.UUID {
	id, err := uuid.Parse(a.BranchID)
	if err != nil {
		return uuid.Nil
	}
	return id
}

// DatabaseConfig selects the local store. The terminal default is an SQLite
// file; postgres is for back-office installs that share one store.
type DatabaseConfig struct {
	Driver          string // sqlite, postgres
	Path            string // sqlite file
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
	SlowThreshold   time.Duration
}

// RemoteConfig points at the server API
type RemoteConfig struct {
	BaseURL          string
	Token            string
	Timeout          time.Duration
	MaxResponseBytes int64
}

// ConnectivityConfig controls the health prober
type ConnectivityConfig struct {
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// SyncConfig controls the reconciler
type SyncConfig struct {
	PollInterval       time.Duration
	CallTimeout        time.Duration
	BatchSize          int
	IdempotencyBackend string // database, memory, redis
	IdempotencyTTL     time.Duration
	NotificationBuffer int
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// HTTPConfig holds the local facade listener settings
type HTTPConfig struct {
	Addr             string
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	IdleTimeout      time.Duration
	MaxBodySize      int64
	CORSAllowOrigins []string
	// SyncRateLimit caps manual drains and dead letter retries per
	// operator in each SyncRateWindow. A negative limit disables it.
	SyncRateLimit  int
	SyncRateWindow time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	DBTraceEnabled    bool
	ExportLogs        bool
	MetricInterval    time.Duration
}

// Load reads configuration. Priority, highest first:
// environment variables with POS_ prefix (POS_REMOTE_BASE_URL), config.toml,
// built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/posagent")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix("POS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		App: AppConfig{
			Name:       v.GetString("app.name"),
			Env:        v.GetString("app.env"),
			TerminalID: v.GetString("app.terminal_id"),
			BranchID:   v.GetString("app.branch_id"),
		},
		Database: DatabaseConfig{
			Driver:          v.GetString("database.driver"),
			Path:            v.GetString("database.path"),
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			LogLevel:        v.GetString("database.log_level"),
			SlowThreshold:   v.GetDuration("database.slow_threshold"),
		},
		Remote: RemoteConfig{
			BaseURL:          v.GetString("remote.base_url"),
			Token:            v.GetString("remote.token"),
			Timeout:          v.GetDuration("remote.timeout"),
			MaxResponseBytes: v.GetInt64("remote.max_response_bytes"),
		},
		Connectivity: ConnectivityConfig{
			ProbeInterval: v.GetDuration("connectivity.probe_interval"),
			ProbeTimeout:  v.GetDuration("connectivity.probe_timeout"),
		},
		Sync: SyncConfig{
			PollInterval:       v.GetDuration("sync.poll_interval"),
			CallTimeout:        v.GetDuration("sync.call_timeout"),
			BatchSize:          v.GetInt("sync.batch_size"),
			IdempotencyBackend: v.GetString("sync.idempotency_backend"),
			IdempotencyTTL:     v.GetDuration("sync.idempotency_ttl"),
			NotificationBuffer: v.GetInt("sync.notification_buffer"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			Addr:             v.GetString("http.addr"),
			ReadTimeout:      v.GetDuration("http.read_timeout"),
			WriteTimeout:     v.GetDuration("http.write_timeout"),
			IdleTimeout:      v.GetDuration("http.idle_timeout"),
			MaxBodySize:      v.GetInt64("http.max_body_size"),
			CORSAllowOrigins: v.GetStringSlice("http.cors_allow_origins"),
			SyncRateLimit:    v.GetInt("http.sync_rate_limit"),
			SyncRateWindow:   v.GetDuration("http.sync_rate_window"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			ExportLogs:        v.GetBool("telemetry.export_logs"),
			MetricInterval:    v.GetDuration("telemetry.metric_interval"),
		},
	}

	applyDefaults(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults sets default values for any empty config fields
func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "posagent"
	}
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "pos.db"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = "pos"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		if cfg.Database.Driver == "sqlite" {
			// one writer keeps SQLite from returning SQLITE_BUSY under the reconciler
			cfg.Database.MaxOpenConns = 1
		} else {
			cfg.Database.MaxOpenConns = 10
		}
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = cfg.Database.MaxOpenConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = time.Hour
	}
	if cfg.Database.LogLevel == "" {
		cfg.Database.LogLevel = "warn"
	}
	if cfg.Database.SlowThreshold == 0 {
		cfg.Database.SlowThreshold = 200 * time.Millisecond
	}
	if cfg.Remote.BaseURL == "" {
		cfg.Remote.BaseURL = "http://localhost:8080"
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = 10 * time.Second
	}
	if cfg.Remote.MaxResponseBytes == 0 {
		cfg.Remote.MaxResponseBytes = 8 << 20
	}
	if cfg.Connectivity.ProbeInterval == 0 {
		cfg.Connectivity.ProbeInterval = 5 * time.Second
	}
	if cfg.Connectivity.ProbeTimeout == 0 {
		cfg.Connectivity.ProbeTimeout = 2 * time.Second
	}
	if cfg.Sync.PollInterval == 0 {
		cfg.Sync.PollInterval = 30 * time.Second
	}
	if cfg.Sync.CallTimeout == 0 {
		cfg.Sync.CallTimeout = 15 * time.Second
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 50
	}
	if cfg.Sync.IdempotencyBackend == "" {
		cfg.Sync.IdempotencyBackend = "database"
	}
	if cfg.Sync.IdempotencyTTL == 0 {
		cfg.Sync.IdempotencyTTL = 72 * time.Hour
	}
	if cfg.Sync.NotificationBuffer == 0 {
		cfg.Sync.NotificationBuffer = 200
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8765"
	}
	if cfg.HTTP.ReadTimeout == 0 {
		cfg.HTTP.ReadTimeout = 15 * time.Second
	}
	if cfg.HTTP.WriteTimeout == 0 {
		// SyncNow drains inside the request
		cfg.HTTP.WriteTimeout = 2 * time.Minute
	}
	if cfg.HTTP.IdleTimeout == 0 {
		cfg.HTTP.IdleTimeout = 60 * time.Second
	}
	if cfg.HTTP.MaxBodySize == 0 {
		cfg.HTTP.MaxBodySize = 1 << 20
	}
	if cfg.HTTP.SyncRateLimit == 0 {
		cfg.HTTP.SyncRateLimit = 10
	}
	if cfg.HTTP.SyncRateWindow == 0 {
		cfg.HTTP.SyncRateWindow = time.Minute
	}
	if cfg.Telemetry.CollectorEndpoint == "" {
		cfg.Telemetry.CollectorEndpoint = "localhost:4317"
	}
	if cfg.Telemetry.SamplingRatio == 0 {
		cfg.Telemetry.SamplingRatio = 1.0
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "posagent"
	}
	if cfg.Telemetry.MetricInterval == 0 {
		cfg.Telemetry.MetricInterval = 30 * time.Second
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	u, err := url.Parse(c.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("remote.base_url must be an absolute http(s) URL, got %q", c.Remote.BaseURL)
	}
	if c.App.BranchID != "" {
		if _, err := uuid.Parse(c.App.BranchID); err != nil {
			return fmt.Errorf("app.branch_id must be a UUID: %w", err)
		}
	}

	switch c.Sync.IdempotencyBackend {
	case "database", "memory", "redis":
	default:
		return fmt.Errorf("sync.idempotency_backend must be database, memory or redis, got %q", c.Sync.IdempotencyBackend)
	}
	if c.Sync.CallTimeout < 0 || c.Sync.BatchSize < 0 {
		return fmt.Errorf("sync.call_timeout and sync.batch_size cannot be negative")
	}

	if c.App.Env == "production" {
		if u.Scheme != "https" {
			return fmt.Errorf("remote.base_url must use https in production")
		}
		if c.Remote.Token == "" {
			return fmt.Errorf("remote.token is required in production")
		}
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

// DSN returns the postgres connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
