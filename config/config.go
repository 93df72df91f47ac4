package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the exchange
type Config struct {
	Engine   EngineConfig
	Exchange ExchangeConfig
	Logger   LoggerConfig
	Memory   MemoryConfig
	Journal  JournalConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Pebble   PebbleConfig
	Kafka    KafkaConfig
}

// EngineConfig holds matching engine configuration
type EngineConfig struct {
	// MarketPolicy decides what happens to the unfilled part of a market
	// order: "reject" or "cancel"
	MarketPolicy    string
	ShutdownTimeout time.Duration
}

// ExchangeConfig describes the exchange whose securities are tradable when
// exchanges are not loaded from the database
type ExchangeConfig struct {
	APIURL       string
	BaseCurrency string
	Securities   []string
	LoadFromDB   bool
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level string // DEBUG, INFO, WARN, ERROR
}

// MemoryConfig holds in-memory storage configuration
type MemoryConfig struct {
	MaxOrders int
}

// JournalConfig holds the append-only trade file configuration
type JournalConfig struct {
	FileEnabled bool
	FilePath    string
}

// DatabaseConfig holds PostgreSQL database configuration
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	Name            string
	User            string
	Password        string
	MaxConns        int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SSLMode         string
}

// RedisConfig holds Redis cache configuration
type RedisConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Password     string
	DB           int
	MaxRetries   int
	PoolSize     int
	MinIdleConns int
	TLSEnabled   bool
	OrderTTL     time.Duration
}

// PebbleConfig holds the embedded trade journal configuration
type PebbleConfig struct {
	Enabled bool
	Dir     string
}

// KafkaConfig holds the trade feed configuration
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

var instance *Config

// Load loads configuration from .env file (if exists) and environment variables
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Engine: EngineConfig{
			MarketPolicy:    strings.ToLower(getEnv("MARKET_ORDER_POLICY", "reject")),
			ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Exchange: ExchangeConfig{
			APIURL:       getEnv("EXCHANGE_API_URL", "http://localhost:8080"),
			BaseCurrency: getEnv("EXCHANGE_BASE_CURRENCY", "USD"),
			Securities:   getEnvList("EXCHANGE_SECURITIES", []string{"BTC"}),
			LoadFromDB:   getEnvBool("EXCHANGE_LOAD_FROM_DB", false),
		},
		Logger: LoggerConfig{
			Level: strings.ToUpper(getEnv("LOG_LEVEL", "INFO")),
		},
		Memory: MemoryConfig{
			MaxOrders: getEnvInt("MEMORY_MAX_ORDERS", 100000),
		},
		Journal: JournalConfig{
			FileEnabled: getEnvBool("TRADE_LOG_ENABLED", true),
			FilePath:    getEnv("TRADE_LOG_PATH", "trades.log"),
		},
		Database: DatabaseConfig{
			Enabled:         getEnvBool("DATABASE_ENABLED", false),
			Host:            getEnv("DATABASE_HOST", "localhost"),
			Port:            getEnvInt("DATABASE_PORT", 5432),
			Name:            getEnv("DATABASE_NAME", "exchange"),
			User:            getEnv("DATABASE_USER", "postgres"),
			Password:        getEnv("DATABASE_PASSWORD", ""),
			MaxConns:        getEnvInt("DATABASE_MAX_CONNECTIONS", 20),
			MaxIdleConns:    getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime: getEnvDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			SSLMode:         getEnv("DATABASE_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:      getEnvBool("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			MaxRetries:   getEnvInt("REDIS_MAX_RETRIES", 3),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			TLSEnabled:   getEnvBool("REDIS_TLS_ENABLED", false),
			OrderTTL:     getEnvDuration("REDIS_ORDER_TTL", 24*time.Hour),
		},
		Pebble: PebbleConfig{
			Enabled: getEnvBool("PEBBLE_ENABLED", false),
			Dir:     getEnv("PEBBLE_DIR", "data/journal"),
		},
		Kafka: KafkaConfig{
			Enabled: getEnvBool("KAFKA_ENABLED", false),
			Brokers: getEnvList("KAFKA_BROKERS", []string{"localhost:9092"}),
			Topic:   getEnv("KAFKA_TRADES_TOPIC", "exchange.trades"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	instance = cfg
	return cfg, nil
}

// Get returns the singleton config instance
func Get() *Config {
	if instance == nil {
		panic("config not loaded - call config.Load() first")
	}
	return instance
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Engine.MarketPolicy != "reject" && c.Engine.MarketPolicy != "cancel" {
		return fmt.Errorf("MARKET_ORDER_POLICY must be one of: reject, cancel")
	}

	if c.Exchange.BaseCurrency == "" {
		return fmt.Errorf("EXCHANGE_BASE_CURRENCY cannot be empty")
	}
	if !c.Exchange.LoadFromDB && len(c.Exchange.Securities) == 0 {
		return fmt.Errorf("EXCHANGE_SECURITIES must list at least one currency")
	}
	if c.Exchange.LoadFromDB && !c.Database.Enabled {
		return fmt.Errorf("EXCHANGE_LOAD_FROM_DB requires DATABASE_ENABLED")
	}

	if c.Memory.MaxOrders < 1 {
		return fmt.Errorf("MEMORY_MAX_ORDERS must be > 0")
	}

	if c.Journal.FileEnabled && c.Journal.FilePath == "" {
		return fmt.Errorf("TRADE_LOG_PATH cannot be empty")
	}
	if c.Pebble.Enabled && c.Pebble.Dir == "" {
		return fmt.Errorf("PEBBLE_DIR cannot be empty")
	}
	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return fmt.Errorf("KAFKA_BROKERS and KAFKA_TRADES_TOPIC are required when KAFKA_ENABLED")
	}

	validLevels := map[string]bool{"DEBUG": true, "INFO": true, "WARN": true, "ERROR": true}
	if !validLevels[c.Logger.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: DEBUG, INFO, WARN, ERROR")
	}

	return nil
}

// Helper functions to read environment variables with defaults

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList reads a comma separated list, dropping empty entries
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
