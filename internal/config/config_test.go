package config

import (
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("POSTGRES_HOST", "testhost")
	t.Setenv("AUTH_NONCE_TTL", "2m")
	t.Setenv("PRICE_CACHE_TTL", "30s")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("Server.Port = %v, want %v", cfg.Server.Port, "9090")
	}
	if cfg.Database.Postgres.Host != "testhost" {
		t.Errorf("Database.Postgres.Host = %v, want %v", cfg.Database.Postgres.Host, "testhost")
	}
	if cfg.Auth.NonceTTL != 2*time.Minute {
		t.Errorf("Auth.NonceTTL = %v, want %v", cfg.Auth.NonceTTL, 2*time.Minute)
	}
	if cfg.Prices.CacheTTL != 30*time.Second {
		t.Errorf("Prices.CacheTTL = %v, want %v", cfg.Prices.CacheTTL, 30*time.Second)
	}
}

func TestLoadChainConfigs(t *testing.T) {
	t.Setenv("ENABLED_CHAINS", "ethereum, polygon,")
	t.Setenv("ETHEREUM_RPC_PRIMARY", "https://eth.example/rpc")
	t.Setenv("ETHEREUM_RPC_SECONDARY", "https://eth-backup.example/rpc")
	t.Setenv("ETHEREUM_REGISTRY_CONTRACT", "0x1111111111111111111111111111111111111111")
	t.Setenv("POLYGON_TESTNET", "true")

	chains := loadChainConfigs()

	if len(chains.Enabled) != 2 {
		t.Fatalf("Enabled = %v, want 2 chains", chains.Enabled)
	}

	eth, ok := chains.Chains["ethereum"]
	if !ok {
		t.Fatal("missing ethereum chain config")
	}
	if eth.RPCPrimary != "https://eth.example/rpc" {
		t.Errorf("RPCPrimary = %v", eth.RPCPrimary)
	}
	if eth.RPCSecondary != "https://eth-backup.example/rpc" {
		t.Errorf("RPCSecondary = %v", eth.RPCSecondary)
	}
	if eth.RegistryContract != "0x1111111111111111111111111111111111111111" {
		t.Errorf("RegistryContract = %v", eth.RegistryContract)
	}

	polygon := chains.Chains["polygon"]
	if !polygon.Testnet {
		t.Error("polygon Testnet = false, want true")
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_STRING", "custom")
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_DURATION", "90s")
	t.Setenv("TEST_BAD_INT", "notanumber")

	if got := getEnv("TEST_STRING", "default"); got != "custom" {
		t.Errorf("getEnv = %v, want custom", got)
	}
	if got := getEnv("TEST_MISSING", "default"); got != "default" {
		t.Errorf("getEnv = %v, want default", got)
	}
	if got := getEnvAsInt("TEST_INT", 1); got != 42 {
		t.Errorf("getEnvAsInt = %v, want 42", got)
	}
	if got := getEnvAsInt("TEST_BAD_INT", 7); got != 7 {
		t.Errorf("getEnvAsInt = %v, want fallback 7", got)
	}
	if got := getEnvAsBool("TEST_BOOL", false); !got {
		t.Error("getEnvAsBool = false, want true")
	}
	if got := getEnvAsDuration("TEST_DURATION", time.Second); got != 90*time.Second {
		t.Errorf("getEnvAsDuration = %v, want 90s", got)
	}
}
