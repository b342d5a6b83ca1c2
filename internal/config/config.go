package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	Server     ServerConfig
	ERP        ERPConfig
	OpenAI     OpenAIConfig
	Session    SessionConfig
	Cache      CacheConfig
	PostgreSQL PostgreSQLConfig
	Logging    LoggingConfig
	Catalog    CatalogConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port              int
	Host              string
	GinMode           string
	AllowedOrigins    string
	APIKey            string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	WidgetDir         string
}

// ERPConfig describes the remote OData gateway
type ERPConfig struct {
	BaseURL         string
	Username        string
	Password        string
	Client          string // sap-client query parameter, optional
	Timeout         time.Duration
	MaxResponseSize int64
	PageSize        int
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey          string
	APIBase         string
	ChatModel       string
	ChatTemperature float64
	ChatTopP        float64
	ChatMaxTokens   int
	ChatExtraBody   string // JSON string for extra_body
	Timeout         int
	Enabled         bool
}

// SessionConfig controls conversation context expiry
type SessionConfig struct {
	IdleTimeout   time.Duration
	SweepInterval time.Duration
}

// CacheConfig selects the cache backend and its TTLs.
// An empty RedisAddr keeps everything in process memory.
type CacheConfig struct {
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	InterpreterTTL  time.Duration
	EntityDataTTL   time.Duration
	CleanupInterval time.Duration
}

// PostgreSQLConfig holds the optional query log database.
// The query log is disabled when DSN is empty.
type PostgreSQLConfig struct {
	DSN                string
	MaxConnections     int
	MaxIdleConnections int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// CatalogConfig points at an optional catalog file overriding the embedded one
type CatalogConfig struct {
	Path string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (optional)
	_ = godotenv.Load()

	apiKey := getEnv("OPENAI_API_KEY", "")

	cfg := &Config{
		Server: ServerConfig{
			Port:              getEnvAsInt("SERVER_PORT", 3000),
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			GinMode:           getEnv("GIN_MODE", "release"),
			AllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", "*"),
			APIKey:            getEnv("API_KEY", ""),
			RateLimitRequests: getEnvAsInt("RATE_LIMIT_REQUESTS", 100),
			RateLimitWindow:   getEnvAsSeconds("RATE_LIMIT_WINDOW_SECONDS", 15*time.Minute),
			WidgetDir:         getEnv("WIDGET_DIR", ""),
		},
		ERP: ERPConfig{
			BaseURL:         strings.TrimRight(getEnv("ERP_BASE_URL", ""), "/"),
			Username:        getEnv("ERP_USERNAME", ""),
			Password:        getEnv("ERP_PASSWORD", ""),
			Client:          getEnv("ERP_CLIENT", ""),
			Timeout:         getEnvAsSeconds("ERP_TIMEOUT", 60*time.Second),
			MaxResponseSize: int64(getEnvAsInt("ERP_MAX_RESPONSE_MB", 50)) * 1024 * 1024,
			PageSize:        getEnvAsInt("ERP_PAGE_SIZE", 100),
		},
		OpenAI: OpenAIConfig{
			APIKey:          apiKey,
			APIBase:         strings.TrimRight(getEnv("OPENAI_API_BASE", "https://api.openai.com/v1"), "/"),
			ChatModel:       getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
			ChatTemperature: getEnvAsFloat("OPENAI_CHAT_TEMPERATURE", 0.1),
			ChatTopP:        getEnvAsFloat("OPENAI_CHAT_TOP_P", 0),
			ChatMaxTokens:   getEnvAsInt("OPENAI_CHAT_MAX_TOKENS", 1000),
			ChatExtraBody:   getEnv("OPENAI_CHAT_EXTRA_BODY", ""),
			Timeout:         getEnvAsInt("OPENAI_TIMEOUT", 30),
			Enabled:         apiKey != "",
		},
		Session: SessionConfig{
			IdleTimeout:   getEnvAsSeconds("SESSION_IDLE_TIMEOUT_SECONDS", 30*time.Minute),
			SweepInterval: getEnvAsSeconds("SESSION_SWEEP_INTERVAL_SECONDS", 10*time.Minute),
		},
		Cache: CacheConfig{
			RedisAddr:       getEnv("REDIS_ADDR", ""),
			RedisPassword:   getEnv("REDIS_PASSWORD", ""),
			RedisDB:         getEnvAsInt("REDIS_DB", 0),
			InterpreterTTL:  getEnvAsSeconds("CACHE_INTERPRETER_TTL_SECONDS", 30*time.Minute),
			EntityDataTTL:   getEnvAsSeconds("CACHE_ENTITY_TTL_SECONDS", 2*time.Minute),
			CleanupInterval: getEnvAsSeconds("CACHE_CLEANUP_INTERVAL_SECONDS", 5*time.Minute),
		},
		PostgreSQL: PostgreSQLConfig{
			DSN:                getEnv("DATABASE_URL", getEnv("PG_DSN", "")),
			MaxConnections:     getEnvAsInt("PG_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("PG_MAX_IDLE_CONNECTIONS", 2),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Catalog: CatalogConfig{
			Path: getEnv("CATALOG_PATH", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail later at request time
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT out of range: %d", c.Server.Port)
	}
	if c.ERP.PageSize <= 0 {
		return fmt.Errorf("ERP_PAGE_SIZE must be positive")
	}
	if c.ERP.MaxResponseSize <= 0 {
		return fmt.Errorf("ERP_MAX_RESPONSE_MB must be positive")
	}
	if c.Session.IdleTimeout <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("session timeouts must be positive")
	}
	if c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("CACHE_CLEANUP_INTERVAL_SECONDS must be positive")
	}
	return nil
}

// DebugMode reports whether the server runs with development conveniences enabled
func (c *Config) DebugMode() bool {
	return c.Server.GinMode == "debug"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Warning: Invalid float value for %s, using default %f", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSeconds(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil || value <= 0 {
		log.Printf("Warning: Invalid duration value for %s, using default %s", key, defaultValue)
		return defaultValue
	}
	return time.Duration(value) * time.Second
}
