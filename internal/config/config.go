// Package config provides configuration management for the yield aggregation
// engine. It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Chains    ChainsConfig
	Prices    PricesConfig
	Auth      AuthConfig
	Relayer   RelayerConfig
	Upstream  UpstreamConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds all database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration for the portfolio value
// history store
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// ChainsConfig holds per-chain configuration
type ChainsConfig struct {
	Enabled []string
	Chains  map[string]ChainConfig
}

// ChainConfig holds configuration for a specific chain
type ChainConfig struct {
	RPCPrimary       string
	RPCSecondary     string
	ExplorerURL      string
	RegistryContract string
	Testnet          bool
}

// PricesConfig holds price lookup configuration
type PricesConfig struct {
	BaseURL  string
	CacheTTL time.Duration
}

// AuthConfig holds wallet authentication configuration
type AuthConfig struct {
	NonceTTL   time.Duration
	SessionTTL time.Duration
}

// RelayerConfig holds the sponsored-transaction relayer key. When the key is
// empty, deposit/withdraw/claim submission is disabled and the API serves
// read-only portfolio data.
type RelayerConfig struct {
	PrivateKey string
}

// UpstreamConfig bounds every external RPC/HTTP call
type UpstreamConfig struct {
	CallTimeout   time.Duration
	RetryAttempts int
	RetryBaseWait time.Duration
}

// RateLimitConfig holds API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "orbit_yield"),
				User:           getEnv("POSTGRES_USER", "orbit"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 50),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "orbit_yield"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
		},
		Prices: PricesConfig{
			BaseURL:  getEnv("PRICE_API_URL", "https://api.coingecko.com/api/v3"),
			CacheTTL: getEnvAsDuration("PRICE_CACHE_TTL", 60*time.Second),
		},
		Auth: AuthConfig{
			NonceTTL:   getEnvAsDuration("AUTH_NONCE_TTL", 5*time.Minute),
			SessionTTL: getEnvAsDuration("AUTH_SESSION_TTL", 24*time.Hour),
		},
		Relayer: RelayerConfig{
			PrivateKey: getEnv("RELAYER_PRIVATE_KEY", ""),
		},
		Upstream: UpstreamConfig{
			CallTimeout:   getEnvAsDuration("UPSTREAM_CALL_TIMEOUT", 10*time.Second),
			RetryAttempts: getEnvAsInt("UPSTREAM_RETRY_ATTEMPTS", 3),
			RetryBaseWait: getEnvAsDuration("UPSTREAM_RETRY_BASE_WAIT", 500*time.Millisecond),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsInt("RATE_LIMIT_RPS", 50),
			Burst:             getEnvAsInt("RATE_LIMIT_BURST", 20),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	config.Chains = loadChainConfigs()

	return config, nil
}

// loadChainConfigs loads chain-specific configurations
func loadChainConfigs() ChainsConfig {
	enabled := strings.Split(getEnv("ENABLED_CHAINS", "ethereum,polygon,arbitrum,optimism,base"), ",")

	chains := make(map[string]ChainConfig)
	var valid []string
	for _, chain := range enabled {
		chain = strings.TrimSpace(chain)
		if chain == "" {
			continue
		}
		valid = append(valid, chain)

		prefix := strings.ToUpper(strings.ReplaceAll(chain, "-", "_"))
		chains[chain] = ChainConfig{
			RPCPrimary:       getEnv(prefix+"_RPC_PRIMARY", ""),
			RPCSecondary:     getEnv(prefix+"_RPC_SECONDARY", ""),
			ExplorerURL:      getEnv(prefix+"_EXPLORER_URL", ""),
			RegistryContract: getEnv(prefix+"_REGISTRY_CONTRACT", ""),
			Testnet:          getEnvAsBool(prefix+"_TESTNET", false),
		}
	}

	return ChainsConfig{
		Enabled: valid,
		Chains:  chains,
	}
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool gets an environment variable as a boolean with a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
