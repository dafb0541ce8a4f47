package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/referral-triage-server/internal/domain"
)

// Manager loads and validates the triage server configuration using Viper.
type Manager struct {
	config *domain.Config
}

// NewManager creates a new configuration manager
func NewManager() (*Manager, error) {
	m := &Manager{}
	if err := m.loadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return m, nil
}

// loadConfig loads configuration from various sources
func (m *Manager) loadConfig() error {
	// Set configuration file name and paths
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/referral-triage-server/")

	// Set environment variable prefix and enable automatic env binding
	viper.SetEnvPrefix("TRIAGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	m.setDefaults()

	// Config file is optional; defaults and env vars cover everything.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := viper.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}

	m.config = config
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.idle_timeout", "120s")
	viper.SetDefault("server.rate_limit_rps", 50)
	viper.SetDefault("server.rate_limit_burst", 100)

	// Database defaults
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.database", "referral_triage")
	viper.SetDefault("database.username", "postgres")
	viper.SetDefault("database.password", "")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("database.migrations_path", "migrations")

	// Cache defaults
	viper.SetDefault("cache.enabled", false)
	viper.SetDefault("cache.redis_url", "redis://localhost:6379")
	viper.SetDefault("cache.default_ttl", "1h")
	viper.SetDefault("cache.max_retries", 3)
	viper.SetDefault("cache.pool_size", 10)
	viper.SetDefault("cache.pool_timeout", "4s")

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// Classification thresholds
	viper.SetDefault("triage.critical_threshold", 0.7)
	viper.SetDefault("triage.routine_threshold", 0.3)
	viper.SetDefault("triage.result_cache_size", 1024)

	// Weight tuning
	viper.SetDefault("tuning.schedule", "0 3 * * *")
	viper.SetDefault("tuning.bucket_window", "168h")
	viper.SetDefault("tuning.accuracy_window", "720h")
	viper.SetDefault("tuning.tolerance_band", 0.2)
	viper.SetDefault("tuning.accuracy_trigger", 0.90)
	viper.SetDefault("tuning.attribution_cutoff", 0.3)

	// Alert escalation
	viper.SetDefault("alerts.sweep_schedule", "*/5 * * * *")
	viper.SetDefault("alerts.timeout_after", "30m")
	viper.SetDefault("alerts.timeout_expiry", "2h")
	viper.SetDefault("alerts.escalate_after", "2h")
	viper.SetDefault("alerts.auto_escalate_after", "15m")

	// Notifications
	viper.SetDefault("notify.webhook_url", "")
	viper.SetDefault("notify.webhook_timeout", "10s")
	viper.SetDefault("notify.breaker_max_fails", 5)
	viper.SetDefault("notify.breaker_timeout", "60s")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetDatabaseConfig returns database configuration
func (m *Manager) GetDatabaseConfig() *domain.DatabaseConfig {
	return &m.config.Database
}

// GetServerConfig returns server configuration
func (m *Manager) GetServerConfig() *domain.ServerConfig {
	return &m.config.Server
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	config := m.config

	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", config.Server.Port)
	}

	if config.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if config.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if config.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if config.Cache.Enabled && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache is enabled")
	}

	t := config.Triage
	if t.CriticalThreshold <= 0 || t.CriticalThreshold > 1 {
		return fmt.Errorf("invalid critical threshold: %f", t.CriticalThreshold)
	}
	if t.RoutineThreshold < 0 || t.RoutineThreshold >= t.CriticalThreshold {
		return fmt.Errorf("routine threshold %f must be below critical threshold %f",
			t.RoutineThreshold, t.CriticalThreshold)
	}

	tn := config.Tuning
	if tn.ToleranceBand < 0 || tn.ToleranceBand > 1 {
		return fmt.Errorf("invalid tolerance band: %f", tn.ToleranceBand)
	}
	if tn.AccuracyTrigger <= 0 || tn.AccuracyTrigger > 1 {
		return fmt.Errorf("invalid accuracy trigger: %f", tn.AccuracyTrigger)
	}
	if tn.BucketWindow <= 0 || tn.AccuracyWindow <= 0 {
		return fmt.Errorf("tuning windows must be positive")
	}

	a := config.Alerts
	if a.TimeoutAfter <= 0 || a.EscalateAfter <= 0 || a.AutoEscalateAfter <= 0 {
		return fmt.Errorf("alert timings must be positive")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}

	return nil
}
