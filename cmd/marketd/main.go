package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/api"
	"github.com/neuron-labs/marketd/assistant"
	"github.com/neuron-labs/marketd/catalog"
	"github.com/neuron-labs/marketd/client"
	"github.com/neuron-labs/marketd/feed"
	"github.com/neuron-labs/marketd/gateway"
	"github.com/neuron-labs/marketd/internal/config"
	"github.com/neuron-labs/marketd/internal/constants"
	"github.com/neuron-labs/marketd/internal/logger"
	"github.com/neuron-labs/marketd/marketplace"
	"github.com/neuron-labs/marketd/notify"
	"github.com/neuron-labs/marketd/purchase"
	"github.com/neuron-labs/marketd/storage"
)

var (
	// Version information (injected at build time)
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
		rpcEndpoint = flag.String("rpc", "", "Ethereum RPC endpoint URL")
		dbPath      = flag.String("db", "", "Receipt database path")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error)")
		logFormat   = flag.String("log-format", "", "Log format (json, console)")

		apiHost = flag.String("api-host", "", "API server host")
		apiPort = flag.Int("api-port", 0, "API server port")
	)

	flag.Parse()

	if *showVersion {
		fmt.Printf("marketd version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", buildTime)
		os.Exit(0)
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	applyFlags(cfg, *rpcEndpoint, *dbPath, *logLevel, *logFormat, *apiHost, *apiPort)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting marketd",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_time", buildTime),
		zap.String("rpc_endpoint", cfg.RPC.Endpoint),
		zap.String("contract", cfg.Marketplace.ContractAddress),
		zap.String("db_path", cfg.Database.Path),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ethClient, err := client.NewClient(&client.Config{
		Endpoint: cfg.RPC.Endpoint,
		Timeout:  cfg.RPC.Timeout,
		Logger:   log,
	})
	if err != nil {
		log.Fatal("Failed to create Ethereum client", zap.Error(err))
	}
	defer ethClient.Close()

	chainID, err := ethClient.GetChainID(ctx)
	if err != nil {
		log.Fatal("Failed to get chain ID", zap.Error(err))
	}
	log.Info("Connected to chain", zap.String("chain_id", chainID.String()))

	reader, err := marketplace.NewReader(ethClient, cfg.ContractAddr(), logger.WithComponent(log, "marketplace"))
	if err != nil {
		log.Fatal("Failed to create marketplace reader", zap.Error(err))
	}

	metrics := feed.NewMetrics(prometheus.DefaultRegisterer)
	aggregator, err := feed.NewAggregator(reader, metrics, logger.WithComponent(log, "feed"))
	if err != nil {
		log.Fatal("Failed to create feed aggregator", zap.Error(err))
	}

	catalogStore, err := catalog.LoadStore(cfg.Catalog.Path)
	if err != nil {
		log.Fatal("Failed to load contract catalog",
			zap.String("path", cfg.Catalog.Path),
			zap.Error(err))
	}
	log.Info("Catalog loaded",
		zap.String("path", cfg.Catalog.Path),
		zap.Int("contracts", len(catalogStore.All())))

	store, err := storage.NewPebbleStore(&storage.Config{
		Path:     cfg.Database.Path,
		ReadOnly: cfg.Database.ReadOnly,
	}, logger.WithComponent(log, "storage"))
	if err != nil {
		log.Fatal("Failed to open receipt store", zap.Error(err))
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close receipt store", zap.Error(err))
		}
	}()

	deps := api.Deps{
		Aggregator: aggregator,
		Catalog:    catalogStore,
		Receipts:   store,
	}

	if cfg.Source.Endpoint != "" {
		deps.Source, err = catalog.NewSourceClient(cfg.Source.Endpoint, cfg.Source.Timeout,
			logger.WithComponent(log, "source"))
		if err != nil {
			log.Fatal("Failed to create source client", zap.Error(err))
		}
	}

	if cfg.AI.APIKey != "" {
		deps.Assistant, err = assistant.New(&assistant.Config{
			Endpoint: cfg.AI.Endpoint,
			APIKey:   cfg.AI.APIKey,
			Timeout:  cfg.AI.Timeout,
		}, logger.WithComponent(log, "assistant"))
		if err != nil {
			log.Fatal("Failed to create assistant", zap.Error(err))
		}
	}

	// Purchasing needs a signing key; without one the API serves
	// read-only routes.
	var notifier *notify.MultiNotifier
	if cfg.Marketplace.PrivateKey != "" {
		purchaser, err := marketplace.NewPurchaser(ethClient, &marketplace.PurchaserConfig{
			Contract:            cfg.ContractAddr(),
			PrivateKey:          cfg.Marketplace.PrivateKey,
			ReceiptPollInterval: cfg.Marketplace.ReceiptPollInterval,
			SettlementTimeout:   cfg.Marketplace.SettlementTimeout,
		}, logger.WithComponent(log, "purchaser"))
		if err != nil {
			log.Fatal("Failed to create purchaser", zap.Error(err))
		}
		log.Info("Purchasing enabled", zap.String("account", purchaser.From().Hex()))

		downloader, err := gateway.NewClient(&gateway.Config{
			BaseURL:     cfg.Gateway.BaseURL,
			Timeout:     cfg.Gateway.Timeout,
			DownloadDir: cfg.Gateway.DownloadDir,
		}, logger.WithComponent(log, "gateway"))
		if err != nil {
			log.Fatal("Failed to create gateway client", zap.Error(err))
		}

		notifier = buildNotifier(cfg, log)
		deps.Sequencer = purchase.NewSequencer(purchaser, downloader, store, notifier,
			logger.WithComponent(log, "purchase"))
	}

	apiServer, err := api.NewServer(buildAPIConfig(cfg), logger.WithComponent(log, "api"), deps)
	if err != nil {
		log.Fatal("Failed to create API server", zap.Error(err))
	}

	// The WebSocket hub only exists once the server is built
	if notifier != nil {
		if hub := apiServer.NotificationHub(); hub != nil {
			notifier.Add(hub)
		}
	}

	// Warm the feed so the first request is served from memory
	go func() {
		if _, err := aggregator.Listings(ctx); err != nil {
			log.Warn("Initial feed load failed, will retry on first request", zap.Error(err))
		}
	}()

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error("API server failed", zap.Error(err))
			cancel()
		}
	}()

	select {
	case sig := <-sigChan:
		log.Info("Received shutdown signal", zap.String("signal", sig.String()))
	case <-ctx.Done():
	}

	log.Info("Shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), constants.DefaultShutdownTimeout)
	defer shutdownCancel()

	if err := apiServer.Stop(shutdownCtx); err != nil {
		log.Error("Failed to stop API server gracefully", zap.Error(err))
	}

	log.Info("marketd stopped")
}

// buildNotifier assembles the notification fan-out: service log plus
// webhook when configured. The WebSocket hub is added once the API
// server exists.
func buildNotifier(cfg *config.Config, log *zap.Logger) *notify.MultiNotifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(logger.WithComponent(log, "notify"))}

	if cfg.Notifications.Webhook.Enabled {
		webhook, err := notify.NewWebhookNotifier(cfg.Notifications.Webhook.URL, cfg.Notifications.Webhook.Timeout)
		if err != nil {
			log.Warn("Webhook notifier disabled", zap.Error(err))
		} else {
			notifiers = append(notifiers, webhook)
		}
	}

	return notify.NewMultiNotifier(log, notifiers...)
}

func buildAPIConfig(cfg *config.Config) *api.Config {
	apiConfig := api.DefaultConfig()
	if cfg.API.Host != "" {
		apiConfig.Host = cfg.API.Host
	}
	if cfg.API.Port != 0 {
		apiConfig.Port = cfg.API.Port
	}
	apiConfig.EnableGraphQL = cfg.API.EnableGraphQL
	apiConfig.EnableWebSocket = cfg.API.EnableWebSocket
	apiConfig.EnableCORS = cfg.API.EnableCORS
	if len(cfg.API.AllowedOrigins) > 0 {
		apiConfig.AllowedOrigins = cfg.API.AllowedOrigins
	}
	apiConfig.EnableRateLimit = cfg.API.EnableRateLimit
	if cfg.API.RateLimitPerSecond > 0 {
		apiConfig.RateLimitPerSecond = cfg.API.RateLimitPerSecond
	}
	if cfg.API.RateLimitBurst > 0 {
		apiConfig.RateLimitBurst = cfg.API.RateLimitBurst
	}
	return apiConfig
}

// loadConfig loads configuration from file and environment variables
func loadConfig(configFile string) (*config.Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// loadDotEnv loads environment variables from a .env file if it exists
func loadDotEnv() error {
	info, err := os.Stat(".env")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat .env: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf(".env exists but is a directory")
	}
	if err := godotenv.Load(); err != nil {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// applyFlags overrides config values with command-line flags
func applyFlags(cfg *config.Config, rpcEndpoint, dbPath, logLevel, logFormat, apiHost string, apiPort int) {
	if rpcEndpoint != "" {
		cfg.RPC.Endpoint = rpcEndpoint
	}
	if dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if apiHost != "" {
		cfg.API.Host = apiHost
	}
	if apiPort != 0 {
		cfg.API.Port = apiPort
	}
}

// initLogger creates the root logger from config
func initLogger(level, format string) (*zap.Logger, error) {
	development := format == "console"
	return logger.NewWithConfig(&logger.Config{
		Level:       level,
		Development: development,
		Encoding:    encodingFor(format),
	})
}

func encodingFor(format string) string {
	if format == "console" {
		return "console"
	}
	return "json"
}
