package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	Security   SecurityConfig   `mapstructure:"security"`
	System     SystemConfig     `mapstructure:"system"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Path           string `mapstructure:"path"`
	MigrationsPath string `mapstructure:"migrations_path"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type WebSocketConfig struct {
	PingInterval int `mapstructure:"ping_interval"`
	PongTimeout  int `mapstructure:"pong_timeout"`
	WriteTimeout int `mapstructure:"write_timeout"`
}

// MonitoringConfig drives the metric store, evaluator and aggregator.
type MonitoringConfig struct {
	// ClockSkewTolerance bounds how far in the future an observation
	// timestamp may be before record() rejects it.
	ClockSkewTolerance time.Duration `mapstructure:"clock_skew_tolerance"`
	// DefaultQueryWindow bounds unconstrained metric queries.
	DefaultQueryWindow time.Duration `mapstructure:"default_query_window"`
	// QueryTimeout bounds the dashboard/time-series read path.
	QueryTimeout time.Duration `mapstructure:"query_timeout"`
	// PollInterval is the evaluator's periodic tick for window rules that
	// receive no new data (silence detection).
	PollInterval time.Duration `mapstructure:"poll_interval"`
	// EvaluatorWorkers is the size of the evaluation worker pool.
	EvaluatorWorkers int `mapstructure:"evaluator_workers"`
	// EventQueueSize is the capacity of the record() trigger queue.
	EventQueueSize int `mapstructure:"event_queue_size"`
	// MinBreachSamples is the minimum in-window sample count for
	// count_breach rules; fewer samples evaluate to no breach.
	MinBreachSamples int `mapstructure:"min_breach_samples"`
}

type SecurityConfig struct {
	EnableCORS bool `mapstructure:"enable_cors"`
	// AllowedOrigins restricts CORS to the listed dashboard origins.
	// Empty means every origin is allowed.
	AllowedOrigins []string        `mapstructure:"allowed_origins"`
	RateLimiting   RateLimitConfig `mapstructure:"rate_limiting"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerSecond int  `mapstructure:"requests_per_second"`
	BurstSize         int  `mapstructure:"burst_size"`
}

// SystemConfig covers the optional self-observation reporter.
type SystemConfig struct {
	SelfReportEnabled  bool          `mapstructure:"self_report_enabled"`
	SelfReportInterval time.Duration `mapstructure:"self_report_interval"`
	ServiceName        string        `mapstructure:"service_name"`
	Tenant             string        `mapstructure:"tenant"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	viper.AutomaticEnv()
	viper.BindEnv("server.port", "PORT")
	viper.BindEnv("database.path", "DATABASE_PATH")
	viper.BindEnv("logging.level", "LOG_LEVEL")
	viper.BindEnv("monitoring.poll_interval", "FSMON_POLL_INTERVAL")
	viper.BindEnv("system.tenant", "FSMON_TENANT")

	if err := viper.ReadInConfig(); err != nil {
		// Missing config file is fine; defaults plus env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 3400)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.mode", "development")

	// Database defaults
	viper.SetDefault("database.path", "./data/fsmon.db")
	viper.SetDefault("database.migrations_path", "./migrations")
	viper.SetDefault("database.max_connections", 25)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	// WebSocket defaults
	viper.SetDefault("websocket.ping_interval", 30)
	viper.SetDefault("websocket.pong_timeout", 60)
	viper.SetDefault("websocket.write_timeout", 10)

	// Monitoring defaults
	viper.SetDefault("monitoring.clock_skew_tolerance", "5m")
	viper.SetDefault("monitoring.default_query_window", "24h")
	viper.SetDefault("monitoring.query_timeout", "5s")
	viper.SetDefault("monitoring.poll_interval", "60s")
	viper.SetDefault("monitoring.evaluator_workers", 4)
	viper.SetDefault("monitoring.event_queue_size", 1024)
	viper.SetDefault("monitoring.min_breach_samples", 1)

	// Security defaults
	viper.SetDefault("security.enable_cors", true)
	viper.SetDefault("security.allowed_origins", []string{})
	viper.SetDefault("security.rate_limiting.enabled", true)
	viper.SetDefault("security.rate_limiting.requests_per_second", 100)
	viper.SetDefault("security.rate_limiting.burst_size", 200)

	// System defaults
	viper.SetDefault("system.self_report_enabled", false)
	viper.SetDefault("system.self_report_interval", "30s")
	viper.SetDefault("system.service_name", "fsmon-backend")
	viper.SetDefault("system.tenant", "default")
}
