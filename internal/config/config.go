// Package config loads configuration for the data-access layer from
// environment variables, with an optional YAML overlay file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// PoolConfig holds connection pool tuning.
type PoolConfig struct {
	// Size is the fixed number of pooled backend clients.
	Size int `yaml:"size"`
	// RefreshThreshold is the request count after which an idle client
	// is rebuilt from configuration.
	RefreshThreshold int64 `yaml:"refresh_threshold"`
	// MaintenanceInterval is how often idle clients are checked for refresh.
	MaintenanceInterval time.Duration `yaml:"maintenance_interval"`
}

// RetryConfig holds resilient executor tuning.
type RetryConfig struct {
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseDelay     time.Duration `yaml:"base_delay"`
	MaxDelay      time.Duration `yaml:"max_delay"`
	BackoffFactor float64       `yaml:"backoff_factor"`
	JitterFactor  float64       `yaml:"jitter_factor"`
}

// Config holds all application configuration
type Config struct {
	// Server configuration
	ServerAddress string `yaml:"server_address"`
	Environment   string `yaml:"environment"`

	// Supabase backend configuration. An empty URL or key degrades the
	// connection pool instead of failing startup.
	SupabaseURL string `yaml:"supabase_url"`
	SupabaseKey string `yaml:"supabase_key"`

	// ResumesTable is the backing table for resume and cover-letter rows.
	ResumesTable string `yaml:"resumes_table"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Feature flags
	EnableMetrics bool `yaml:"enable_metrics"`

	// BatchWindow is the debounce window for the query batcher.
	BatchWindow time.Duration `yaml:"batch_window"`

	Pool  PoolConfig  `yaml:"pool"`
	Retry RetryConfig `yaml:"retry"`
}

// LoadConfig loads configuration from environment variables. When
// RESUMEFORGE_CONFIG points at a YAML file, its values are applied first
// and the environment overrides them.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("RESUMEFORGE_CONFIG"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	cfg.ServerAddress = getEnv("SERVER_ADDRESS", cfg.ServerAddress)
	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
	cfg.SupabaseURL = getEnv("SUPABASE_URL", cfg.SupabaseURL)
	cfg.SupabaseKey = getEnv("SUPABASE_SERVICE_ROLE_KEY", cfg.SupabaseKey)
	cfg.ResumesTable = getEnv("RESUMES_TABLE", cfg.ResumesTable)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.EnableMetrics = getEnvBool("ENABLE_METRICS", cfg.EnableMetrics)
	cfg.BatchWindow = getEnvDuration("BATCH_WINDOW", cfg.BatchWindow)

	cfg.Pool.Size = getEnvInt("POOL_SIZE", cfg.Pool.Size)
	cfg.Pool.RefreshThreshold = int64(getEnvInt("POOL_REFRESH_THRESHOLD", int(cfg.Pool.RefreshThreshold)))
	cfg.Pool.MaintenanceInterval = getEnvDuration("POOL_MAINTENANCE_INTERVAL", cfg.Pool.MaintenanceInterval)

	cfg.Retry.MaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", cfg.Retry.MaxAttempts)
	cfg.Retry.BaseDelay = getEnvDuration("RETRY_BASE_DELAY", cfg.Retry.BaseDelay)
	cfg.Retry.MaxDelay = getEnvDuration("RETRY_MAX_DELAY", cfg.Retry.MaxDelay)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ServerAddress: ":8080",
		Environment:   "development",
		ResumesTable:  "resumes",
		LogLevel:      "info",
		EnableMetrics: true,
		BatchWindow:   50 * time.Millisecond,
		Pool: PoolConfig{
			Size:                4,
			RefreshThreshold:    1000,
			MaintenanceInterval: 5 * time.Minute,
		},
		Retry: RetryConfig{
			MaxAttempts:   3,
			BaseDelay:     100 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterFactor:  0.1,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate checks if all required configuration is present
func (c *Config) Validate() error {
	if c.Pool.Size <= 0 {
		return fmt.Errorf("pool size must be positive, got %d", c.Pool.Size)
	}
	if c.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be positive, got %d", c.Retry.MaxAttempts)
	}
	if c.Environment == "production" {
		if c.SupabaseURL == "" {
			return fmt.Errorf("SUPABASE_URL is required in production")
		}
		if c.SupabaseKey == "" {
			return fmt.Errorf("SUPABASE_SERVICE_ROLE_KEY is required in production")
		}
	}
	return nil
}

// HasBackend reports whether backend credentials are configured.
func (c *Config) HasBackend() bool {
	return c.SupabaseURL != "" && c.SupabaseKey != ""
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value == "true" || value == "1" || value == "yes"
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
