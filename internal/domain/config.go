package domain

import (
	"time"
)

// Config represents the main application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Triage   TriageConfig   `mapstructure:"triage"`
	Tuning   TuningConfig   `mapstructure:"tuning"`
	Alerts   AlertsConfig   `mapstructure:"alerts"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	IdleTimeout    time.Duration `mapstructure:"idle_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
}

// DatabaseConfig represents database connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MigrationsPath  string        `mapstructure:"migrations_path"`
}

// CacheConfig represents the Redis cache configuration. The cache holds a
// snapshot of the active weight vector so multiple instances converge on
// new versions without a database read per classification.
type CacheConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	RedisURL    string        `mapstructure:"redis_url"`
	DefaultTTL  time.Duration `mapstructure:"default_ttl"`
	MaxRetries  int           `mapstructure:"max_retries"`
	PoolSize    int           `mapstructure:"pool_size"`
	PoolTimeout time.Duration `mapstructure:"pool_timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TriageConfig holds the classification thresholds. Scores between the
// two thresholds are classified CRITICAL (fail-safe over-triage).
type TriageConfig struct {
	CriticalThreshold float64 `mapstructure:"critical_threshold"`
	RoutineThreshold  float64 `mapstructure:"routine_threshold"`
	ResultCacheSize   int     `mapstructure:"result_cache_size"`
}

// TuningConfig holds the weight-tuner parameters.
type TuningConfig struct {
	Schedule          string        `mapstructure:"schedule"`
	BucketWindow      time.Duration `mapstructure:"bucket_window"`
	AccuracyWindow    time.Duration `mapstructure:"accuracy_window"`
	ToleranceBand     float64       `mapstructure:"tolerance_band"`
	AccuracyTrigger   float64       `mapstructure:"accuracy_trigger"`
	AttributionCutoff float64       `mapstructure:"attribution_cutoff"`
}

// AlertsConfig holds the escalation-engine timing rules.
type AlertsConfig struct {
	SweepSchedule     string        `mapstructure:"sweep_schedule"`
	TimeoutAfter      time.Duration `mapstructure:"timeout_after"`
	TimeoutExpiry     time.Duration `mapstructure:"timeout_expiry"`
	EscalateAfter     time.Duration `mapstructure:"escalate_after"`
	AutoEscalateAfter time.Duration `mapstructure:"auto_escalate_after"`
}

// NotifyConfig holds notification-dispatcher settings.
type NotifyConfig struct {
	WebhookURL      string        `mapstructure:"webhook_url"`
	WebhookTimeout  time.Duration `mapstructure:"webhook_timeout"`
	BreakerMaxFails uint32        `mapstructure:"breaker_max_fails"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout"`
}
