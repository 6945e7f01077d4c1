package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	App      AppConfig
	Device   DeviceConfig
	Sync     SyncConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// AppConfig holds application configuration
type AppConfig struct {
	Port     int
	Env      string
	LogLevel string
}

// DeviceConfig holds terminal connection settings.
type DeviceConfig struct {
	// Driver selects the terminal driver implementation ("sim" or "zk").
	Driver              string
	DefaultPort         int
	ProbeTimeout        time.Duration
	DriverTimeout       time.Duration
	StatusCheckInterval time.Duration
}

// SyncConfig holds the tuning knobs for the sync pipeline.
type SyncConfig struct {
	DefaultInterval   time.Duration
	LookbackWindow    time.Duration
	MaxRecordsPerRun  int
	MaxConnectRetries int
	RetryInitialDelay time.Duration
	DedupWindow       time.Duration
	RunDeadline       time.Duration
	WorkerLimit       int
	PairingPolicy     string
}

func Load() (*Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found, relying on environment")
	}

	config := &Config{}

	// Database configuration
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	config.Database = DatabaseConfig{
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     dbPort,
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
		Name:     getEnv("DB_NAME", "cmlabs-device-sync"),
		SSLMode:  getEnv("DB_SSL_MODE", "disable"),
	}

	// Application configuration
	appPort, err := strconv.Atoi(getEnv("APP_PORT", "8080"))
	if err != nil {
		return nil, fmt.Errorf("invalid APP_PORT: %w", err)
	}

	config.App = AppConfig{
		Port:     appPort,
		Env:      getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	// Device configuration
	devicePort, err := strconv.Atoi(getEnv("DEVICE_DEFAULT_PORT", "4370"))
	if err != nil {
		return nil, fmt.Errorf("invalid DEVICE_DEFAULT_PORT: %w", err)
	}

	config.Device = DeviceConfig{
		Driver:              getEnv("DEVICE_DRIVER", "zk"),
		DefaultPort:         devicePort,
		ProbeTimeout:        getEnvDuration("DEVICE_PROBE_TIMEOUT", "5s"),
		DriverTimeout:       getEnvDuration("DEVICE_DRIVER_TIMEOUT", "10s"),
		StatusCheckInterval: getEnvDuration("DEVICE_STATUS_CHECK_INTERVAL", "10m"),
	}

	// Sync configuration
	maxRecords, err := strconv.Atoi(getEnv("SYNC_MAX_RECORDS_PER_RUN", "1000"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_MAX_RECORDS_PER_RUN: %w", err)
	}

	maxRetries, err := strconv.Atoi(getEnv("SYNC_MAX_CONNECT_RETRIES", "3"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_MAX_CONNECT_RETRIES: %w", err)
	}

	workerLimit, err := strconv.Atoi(getEnv("SYNC_WORKER_LIMIT", "10"))
	if err != nil {
		return nil, fmt.Errorf("invalid SYNC_WORKER_LIMIT: %w", err)
	}

	config.Sync = SyncConfig{
		DefaultInterval:   getEnvDuration("SYNC_DEFAULT_INTERVAL", "5m"),
		LookbackWindow:    getEnvDuration("SYNC_LOOKBACK_WINDOW", "24h"),
		MaxRecordsPerRun:  maxRecords,
		MaxConnectRetries: maxRetries,
		RetryInitialDelay: getEnvDuration("SYNC_RETRY_INITIAL_DELAY", "5s"),
		DedupWindow:       getEnvDuration("SYNC_DEDUP_WINDOW", "5m"),
		RunDeadline:       getEnvDuration("SYNC_RUN_DEADLINE", "2m"),
		WorkerLimit:       workerLimit,
		PairingPolicy:     getEnv("SYNC_PAIRING_POLICY", "toggle"),
	}

	// Validate required fields
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if c.Device.Driver != "sim" && c.Device.Driver != "zk" {
		return fmt.Errorf("DEVICE_DRIVER must be \"sim\" or \"zk\", got %q", c.Device.Driver)
	}
	if c.Sync.MaxRecordsPerRun <= 0 {
		return fmt.Errorf("SYNC_MAX_RECORDS_PER_RUN must be positive")
	}
	if c.Sync.WorkerLimit <= 0 {
		return fmt.Errorf("SYNC_WORKER_LIMIT must be positive")
	}
	if c.Sync.PairingPolicy != "toggle" && c.Sync.PairingPolicy != "first-last" {
		return fmt.Errorf("SYNC_PAIRING_POLICY must be \"toggle\" or \"first-last\", got %q", c.Sync.PairingPolicy)
	}
	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key, fallback string) time.Duration {
	value := getEnv(key, fallback)
	d, err := time.ParseDuration(value)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}
