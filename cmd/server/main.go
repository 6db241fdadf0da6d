// Package main provides the API server entry point for the yield aggregation
// service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orbit-yield/internal/adapter"
	"github.com/orbit-yield/internal/api"
	"github.com/orbit-yield/internal/auth"
	"github.com/orbit-yield/internal/chains"
	"github.com/orbit-yield/internal/config"
	"github.com/orbit-yield/internal/lifecycle"
	"github.com/orbit-yield/internal/logging"
	"github.com/orbit-yield/internal/portfolio"
	"github.com/orbit-yield/internal/registry"
	"github.com/orbit-yield/internal/retry"
	"github.com/orbit-yield/internal/storage"
	"github.com/orbit-yield/internal/types"
	"github.com/orbit-yield/internal/valuation"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Structured logging initialized")

	// Database connections
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redisCache, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redisCache.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	logger.Info("Database connections established")

	// Chain RPC pools
	pools := make(map[types.ChainID]*adapter.RPCPool)
	registries := make(map[types.ChainID]string)
	for _, chainName := range cfg.Chains.Enabled {
		chainCfg, ok := cfg.Chains.Chains[chainName]
		if !ok || chainCfg.RPCPrimary == "" {
			logger.WithField("chain", chainName).Warn("Skipping chain: no RPC endpoint configured")
			continue
		}

		pool, err := adapter.NewRPCPool(chainName, chainCfg)
		if err != nil {
			logger.WithError(err).WithField("chain", chainName).Warn("Failed to connect chain RPC")
			continue
		}
		chainID := types.ChainID(chainName)
		pools[chainID] = pool
		registries[chainID] = chainCfg.RegistryContract
		logger.WithFields(map[string]interface{}{
			"chain": chainName,
			"rpc":   chainCfg.RPCPrimary,
		}).Info("Chain RPC pool initialized")
	}
	if len(pools) == 0 {
		logger.Fatal("No chain RPC pools initialized")
	}

	evmReader, err := adapter.NewEVMReader(&adapter.EVMReaderConfig{
		Pools:       pools,
		Registries:  registries,
		RelayerKey:  cfg.Relayer.PrivateKey,
		CallTimeout: cfg.Upstream.CallTimeout,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize EVM reader")
	}
	defer evmReader.Close()

	// Valuation
	priceClient := adapter.NewPriceClient(cfg.Prices.BaseURL, redisCache.Client(), cfg.Prices.CacheTTL)
	normalizer := valuation.NewNormalizer(priceClient)

	// Core services
	chainRegistry := chains.NewRegistry(&cfg.Chains)
	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Upstream.RetryAttempts
	retryCfg.InitialWait = cfg.Upstream.RetryBaseWait

	opportunityRegistry := registry.NewRegistry(evmReader, chainRegistry, normalizer, registry.Options{
		CallTimeout: cfg.Upstream.CallTimeout,
		Retry:       retryCfg,
	})

	lifecycleManager := lifecycle.NewManager(evmReader)
	historyRepo := storage.NewHistoryRepository(clickhouse)
	aggregator := portfolio.NewAggregator(evmReader, evmReader, normalizer, lifecycleManager, historyRepo)

	// Wallet authentication
	userRepo := storage.NewUserRepository(postgres)
	nonceStore := storage.NewRedisNonceStore(redisCache.Client())
	sessionStore := storage.NewRedisSessionStore(redisCache.Client())
	authenticator := auth.NewAuthenticator(
		nonceStore, userRepo, sessionStore, evmReader,
		cfg.Auth.NonceTTL, cfg.Auth.SessionTTL,
	)

	logger.Info("Services initialized")

	serverConfig := &api.ServerConfig{
		Host:              cfg.Server.Host,
		Port:              cfg.Server.Port,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ShutdownTimeout:   10 * time.Second,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	}
	server := api.NewServer(serverConfig, opportunityRegistry, authenticator, aggregator, userRepo, chainRegistry)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	logger.WithFields(map[string]interface{}{
		"host": cfg.Server.Host,
		"port": cfg.Server.Port,
	}).Info("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}
	logger.Info("Server exited")
}
