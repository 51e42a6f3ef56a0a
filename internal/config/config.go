package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Broadcast backends.
const (
	BroadcastRedis  = "redis"
	BroadcastMemory = "memory"
	BroadcastNone   = "none"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server    ServerConfig
	Store     string
	Database  DatabaseConfig
	SQLite    SQLiteConfig
	Broadcast BroadcastConfig
	Redis     RedisConfig
	Producer  ProducerConfig
	Run       RunConfig
	SeedFile  string
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// SQLiteConfig holds the local database file location and how long a
// writer waits for the database write lock.
type SQLiteConfig struct {
	Path        string
	BusyTimeout time.Duration
}

// BroadcastConfig selects how collaboration events reach subscribers.
type BroadcastConfig struct {
	Backend string
	Timeout time.Duration
	Defer   bool
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// ProducerConfig selects and configures the turn producer.
type ProducerConfig struct {
	Name            string
	MockDelay       time.Duration
	OpenAIAPIKey    string //nolint:gosec // G117: provider credential config
	OpenAIModel     string
	AnthropicAPIKey string //nolint:gosec // G117: provider credential config
	AnthropicModel  string
	MaxTokens       int
}

// RunConfig bounds collaboration runs. A zero Timeout means no limit.
type RunConfig struct {
	Timeout time.Duration
}

// Load reads configuration from environment variables.
// Defaults run a self-contained node: sqlite store, in-process broadcast
// and the mock producer.
func Load() (*Config, error) {
	readTimeout, err := getEnvDuration("CHORUS_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("CHORUS_SERVER_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rps, err := getEnvFloat("CHORUS_RATE_LIMIT_RPS", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	burst, err := getEnvInt("CHORUS_RATE_LIMIT_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbPort, err := getEnvInt("CHORUS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("CHORUS_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("CHORUS_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	broadcastTimeout, err := getEnvDuration("CHORUS_BROADCAST_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	deferEvents, err := getEnvBool("CHORUS_DEFER_EVENTS", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	mockDelay, err := getEnvDuration("CHORUS_MOCK_DELAY", 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	maxTokens, err := getEnvInt("CHORUS_MAX_TOKENS", 1024)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	runTimeout, err := getEnvDuration("CHORUS_RUN_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	busyTimeout, err := getEnvDuration("CHORUS_SQLITE_BUSY_TIMEOUT", 2*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:           getEnv("CHORUS_SERVER_ADDR", ":8080"),
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			CORSOrigins:    getEnvList("CHORUS_CORS_ORIGINS", []string{"http://localhost:3000"}),
			RateLimitRPS:   rps,
			RateLimitBurst: burst,
		},
		Store: getEnv("CHORUS_STORE", StoreSQLite),
		Database: DatabaseConfig{
			Host:     getEnv("CHORUS_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("CHORUS_DB_USER", "chorus"),
			Password: getEnv("CHORUS_DB_PASSWORD", ""),
			DBName:   getEnv("CHORUS_DB_NAME", "chorus_dev"),
			SSLMode:  getEnv("CHORUS_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		SQLite: SQLiteConfig{
			Path:        getEnv("CHORUS_SQLITE_PATH", "chorus.db"),
			BusyTimeout: busyTimeout,
		},
		Broadcast: BroadcastConfig{
			Backend: getEnv("CHORUS_BROADCAST", BroadcastMemory),
			Timeout: broadcastTimeout,
			Defer:   deferEvents,
		},
		Redis: RedisConfig{
			Addr:     getEnv("CHORUS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("CHORUS_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Producer: ProducerConfig{
			Name:            getEnv("CHORUS_PRODUCER", "mock"),
			MockDelay:       mockDelay,
			OpenAIAPIKey:    getEnv("CHORUS_OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("CHORUS_OPENAI_MODEL", ""),
			AnthropicAPIKey: getEnv("CHORUS_ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("CHORUS_ANTHROPIC_MODEL", ""),
			MaxTokens:       maxTokens,
		},
		Run: RunConfig{
			Timeout: runTimeout,
		},
		SeedFile: getEnv("CHORUS_SEED_FILE", ""),
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	switch c.Store {
	case StorePostgres:
		if c.Database.Port < 1 || c.Database.Port > 65535 {
			return fmt.Errorf("CHORUS_DB_PORT must be 1-65535, got %d", c.Database.Port)
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("CHORUS_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
		}
		if c.Database.SSLMode == "disable" {
			log.Warn().Msg("CHORUS_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
		}
	case StoreSQLite:
		if c.SQLite.Path == "" {
			return errors.New("CHORUS_SQLITE_PATH is required for the sqlite store")
		}
		if c.SQLite.BusyTimeout <= 0 {
			return fmt.Errorf("CHORUS_SQLITE_BUSY_TIMEOUT must be positive, got %s", c.SQLite.BusyTimeout)
		}
	default:
		return fmt.Errorf("CHORUS_STORE must be %q or %q, got %q", StorePostgres, StoreSQLite, c.Store)
	}

	switch c.Broadcast.Backend {
	case BroadcastRedis, BroadcastMemory, BroadcastNone:
	default:
		return fmt.Errorf("CHORUS_BROADCAST must be redis, memory or none, got %q", c.Broadcast.Backend)
	}

	switch c.Producer.Name {
	case "openai":
		if c.Producer.OpenAIAPIKey == "" {
			return errors.New("CHORUS_OPENAI_API_KEY is required for the openai producer")
		}
	case "anthropic":
		if c.Producer.AnthropicAPIKey == "" {
			return errors.New("CHORUS_ANTHROPIC_API_KEY is required for the anthropic producer")
		}
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("CHORUS_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("CHORUS_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimitRPS <= 0 {
		return fmt.Errorf("CHORUS_RATE_LIMIT_RPS must be positive, got %g", c.Server.RateLimitRPS)
	}
	if c.Server.RateLimitBurst < 1 {
		return fmt.Errorf("CHORUS_RATE_LIMIT_BURST must be >= 1, got %d", c.Server.RateLimitBurst)
	}
	if c.Broadcast.Timeout <= 0 {
		return fmt.Errorf("CHORUS_BROADCAST_TIMEOUT must be positive, got %s", c.Broadcast.Timeout)
	}
	if c.Producer.MockDelay < 0 {
		return fmt.Errorf("CHORUS_MOCK_DELAY must not be negative, got %s", c.Producer.MockDelay)
	}
	if c.Producer.MaxTokens < 1 {
		return fmt.Errorf("CHORUS_MAX_TOKENS must be >= 1, got %d", c.Producer.MaxTokens)
	}
	if c.Run.Timeout < 0 {
		return fmt.Errorf("CHORUS_RUN_TIMEOUT must not be negative, got %s", c.Run.Timeout)
	}

	return nil
}

// sqliteLockMargin covers the RunLog writes around a bounded run.
const sqliteLockMargin = 5 * time.Second

// SQLiteBusyTimeout returns how long a sqlite writer waits for the write lock.
// A run holds that lock for its whole duration, so with a bounded run the
// wait is never shorter than CHORUS_RUN_TIMEOUT plus a margin.
func (c *Config) SQLiteBusyTimeout() time.Duration {
	if c.Run.Timeout > 0 {
		return max(c.SQLite.BusyTimeout, c.Run.Timeout+sqliteLockMargin)
	}
	return c.SQLite.BusyTimeout
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
