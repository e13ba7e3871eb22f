// Package config loads marketd configuration from YAML files and
// MARKETD_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/neuron-labs/marketd/internal/constants"
)

// Config holds all configuration for the marketplace service
type Config struct {
	RPC           RPCConfig           `yaml:"rpc"`
	Marketplace   MarketplaceConfig   `yaml:"marketplace"`
	Database      DatabaseConfig      `yaml:"database"`
	Catalog       CatalogConfig       `yaml:"catalog"`
	Source        SourceConfig        `yaml:"source"`
	AI            AIConfig            `yaml:"ai"`
	Gateway       GatewayConfig       `yaml:"gateway"`
	Log           LogConfig           `yaml:"log"`
	API           APIConfig           `yaml:"api"`
	Notifications NotificationsConfig `yaml:"notifications"`
}

// RPCConfig holds chain RPC client configuration
type RPCConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// MarketplaceConfig holds marketplace contract configuration
type MarketplaceConfig struct {
	// ContractAddress is the deployed marketplace contract address
	ContractAddress string `yaml:"contract_address"`
	// PrivateKey is the hex-encoded key used to sign purchase transactions.
	// Prefer setting MARKETD_MARKETPLACE_PRIVATE_KEY over the config file.
	PrivateKey string `yaml:"private_key,omitempty"`
	// ReceiptPollInterval is how often to poll for purchase settlement
	ReceiptPollInterval time.Duration `yaml:"receipt_poll_interval"`
	// SettlementTimeout bounds the wait for purchase settlement
	SettlementTimeout time.Duration `yaml:"settlement_timeout"`
}

// DatabaseConfig holds the receipts database configuration
type DatabaseConfig struct {
	Path     string `yaml:"path"`
	ReadOnly bool   `yaml:"readonly"`
}

// CatalogConfig holds the bundled contract catalog configuration
type CatalogConfig struct {
	// Path is the YAML catalog file loaded wholesale at startup
	Path string `yaml:"path"`
}

// SourceConfig holds the source-retrieval endpoint configuration
type SourceConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AIConfig holds the generative-AI endpoint configuration
type AIConfig struct {
	Endpoint string        `yaml:"endpoint"`
	APIKey   string        `yaml:"api_key,omitempty"`
	Timeout  time.Duration `yaml:"timeout"`
}

// GatewayConfig holds IPFS gateway and download configuration
type GatewayConfig struct {
	// BaseURL is the HTTP gateway prefix substituted for ipfs:// URIs
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
	// DownloadDir is where purchased contract files are saved
	DownloadDir string `yaml:"download_dir"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// APIConfig holds API server configuration
type APIConfig struct {
	Enabled            bool     `yaml:"enabled"`
	Host               string   `yaml:"host"`
	Port               int      `yaml:"port"`
	EnableGraphQL      bool     `yaml:"enable_graphql"`
	EnableWebSocket    bool     `yaml:"enable_websocket"`
	EnableCORS         bool     `yaml:"enable_cors"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	EnableRateLimit    bool     `yaml:"enable_rate_limit"`
	RateLimitPerSecond float64  `yaml:"rate_limit_per_second"`
	RateLimitBurst     int      `yaml:"rate_limit_burst"`
}

// NotificationsConfig holds notification delivery configuration
type NotificationsConfig struct {
	Webhook WebhookConfig `yaml:"webhook"`
}

// WebhookConfig holds webhook notification settings
type WebhookConfig struct {
	Enabled bool          `yaml:"enabled"`
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	cfg := &Config{}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults sets default values for the configuration
func (c *Config) SetDefaults() {
	if c.RPC.Timeout == 0 {
		c.RPC.Timeout = constants.DefaultRPCTimeout
	}

	if c.Marketplace.ReceiptPollInterval == 0 {
		c.Marketplace.ReceiptPollInterval = constants.DefaultReceiptPollInterval
	}
	if c.Marketplace.SettlementTimeout == 0 {
		c.Marketplace.SettlementTimeout = constants.DefaultSettlementTimeout
	}

	if c.Source.Timeout == 0 {
		c.Source.Timeout = constants.DefaultHTTPTimeout
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = constants.DefaultHTTPTimeout
	}

	if c.Gateway.BaseURL == "" {
		c.Gateway.BaseURL = constants.DefaultIPFSGateway
	}
	if c.Gateway.Timeout == 0 {
		c.Gateway.Timeout = constants.DefaultHTTPTimeout
	}
	if c.Gateway.DownloadDir == "" {
		c.Gateway.DownloadDir = "downloads"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	if c.API.Host == "" {
		c.API.Host = constants.DefaultAPIHost
	}
	if c.API.Port == 0 {
		c.API.Port = constants.DefaultAPIPort
	}
	if c.API.AllowedOrigins == nil {
		c.API.AllowedOrigins = []string{"*"}
	}
	if c.API.RateLimitPerSecond == 0 {
		c.API.RateLimitPerSecond = constants.DefaultRateLimitPerSecond
	}
	if c.API.RateLimitBurst == 0 {
		c.API.RateLimitBurst = constants.DefaultRateLimitBurst
	}

	if c.Notifications.Webhook.Timeout == 0 {
		c.Notifications.Webhook.Timeout = 10 * time.Second
	}
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables take precedence over file configuration.
func (c *Config) LoadFromEnv() error {
	if endpoint := os.Getenv("MARKETD_RPC_ENDPOINT"); endpoint != "" {
		c.RPC.Endpoint = endpoint
	}
	if timeout := os.Getenv("MARKETD_RPC_TIMEOUT"); timeout != "" {
		duration, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("invalid MARKETD_RPC_TIMEOUT: %w", err)
		}
		c.RPC.Timeout = duration
	}

	if addr := os.Getenv("MARKETD_MARKETPLACE_ADDRESS"); addr != "" {
		c.Marketplace.ContractAddress = addr
	}
	if key := os.Getenv("MARKETD_MARKETPLACE_PRIVATE_KEY"); key != "" {
		c.Marketplace.PrivateKey = key
	}

	if path := os.Getenv("MARKETD_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if readonly := os.Getenv("MARKETD_DB_READONLY"); readonly != "" {
		val, err := strconv.ParseBool(readonly)
		if err != nil {
			return fmt.Errorf("invalid MARKETD_DB_READONLY: %w", err)
		}
		c.Database.ReadOnly = val
	}

	if path := os.Getenv("MARKETD_CATALOG_PATH"); path != "" {
		c.Catalog.Path = path
	}

	if endpoint := os.Getenv("MARKETD_SOURCE_ENDPOINT"); endpoint != "" {
		c.Source.Endpoint = endpoint
	}

	if endpoint := os.Getenv("MARKETD_AI_ENDPOINT"); endpoint != "" {
		c.AI.Endpoint = endpoint
	}
	if key := os.Getenv("MARKETD_AI_API_KEY"); key != "" {
		c.AI.APIKey = key
	}

	if base := os.Getenv("MARKETD_GATEWAY_BASE_URL"); base != "" {
		c.Gateway.BaseURL = base
	}
	if dir := os.Getenv("MARKETD_DOWNLOAD_DIR"); dir != "" {
		c.Gateway.DownloadDir = dir
	}

	if level := os.Getenv("MARKETD_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if format := os.Getenv("MARKETD_LOG_FORMAT"); format != "" {
		c.Log.Format = format
	}

	if enabled := os.Getenv("MARKETD_API_ENABLED"); enabled != "" {
		val, err := strconv.ParseBool(enabled)
		if err != nil {
			return fmt.Errorf("invalid MARKETD_API_ENABLED: %w", err)
		}
		c.API.Enabled = val
	}
	if host := os.Getenv("MARKETD_API_HOST"); host != "" {
		c.API.Host = host
	}
	if port := os.Getenv("MARKETD_API_PORT"); port != "" {
		val, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid MARKETD_API_PORT: %w", err)
		}
		c.API.Port = val
	}
	if enableGraphQL := os.Getenv("MARKETD_API_GRAPHQL"); enableGraphQL != "" {
		val, err := strconv.ParseBool(enableGraphQL)
		if err != nil {
			return fmt.Errorf("invalid MARKETD_API_GRAPHQL: %w", err)
		}
		c.API.EnableGraphQL = val
	}
	if enableWebSocket := os.Getenv("MARKETD_API_WEBSOCKET"); enableWebSocket != "" {
		val, err := strconv.ParseBool(enableWebSocket)
		if err != nil {
			return fmt.Errorf("invalid MARKETD_API_WEBSOCKET: %w", err)
		}
		c.API.EnableWebSocket = val
	}
	if enableCORS := os.Getenv("MARKETD_API_CORS_ENABLED"); enableCORS != "" {
		val, err := strconv.ParseBool(enableCORS)
		if err != nil {
			return fmt.Errorf("invalid MARKETD_API_CORS_ENABLED: %w", err)
		}
		c.API.EnableCORS = val
	}
	if allowedOrigins := os.Getenv("MARKETD_API_CORS_ALLOWED_ORIGINS"); allowedOrigins != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(allowedOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		c.API.AllowedOrigins = origins
	}

	if webhookEnabled := os.Getenv("MARKETD_NOTIFICATIONS_WEBHOOK_ENABLED"); webhookEnabled != "" {
		val, err := strconv.ParseBool(webhookEnabled)
		if err != nil {
			return fmt.Errorf("invalid MARKETD_NOTIFICATIONS_WEBHOOK_ENABLED: %w", err)
		}
		c.Notifications.Webhook.Enabled = val
	}
	if webhookURL := os.Getenv("MARKETD_NOTIFICATIONS_WEBHOOK_URL"); webhookURL != "" {
		c.Notifications.Webhook.URL = webhookURL
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC endpoint is required")
	}
	if c.RPC.Timeout <= 0 {
		return fmt.Errorf("RPC timeout must be positive")
	}

	if c.Marketplace.ContractAddress == "" {
		return fmt.Errorf("marketplace contract address is required")
	}
	if !common.IsHexAddress(c.Marketplace.ContractAddress) {
		return fmt.Errorf("invalid marketplace contract address %q", c.Marketplace.ContractAddress)
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog path is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level %q, must be one of: debug, info, warn, error", c.Log.Level)
	}

	validLogFormats := map[string]bool{
		"json":    true,
		"console": true,
	}
	if !validLogFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format %q, must be one of: json, console", c.Log.Format)
	}

	if c.Notifications.Webhook.Enabled && c.Notifications.Webhook.URL == "" {
		return fmt.Errorf("webhook notifications enabled but no URL configured")
	}

	return nil
}

// ContractAddr returns the parsed marketplace contract address.
// Call Validate first; an unparseable address yields the zero address.
func (c *Config) ContractAddr() common.Address {
	return common.HexToAddress(c.Marketplace.ContractAddress)
}

// Load is a convenience method that loads configuration in the following order:
// 1. Load from file (if provided)
// 2. Load from environment variables (override file)
// 3. Set defaults for any missing values
// 4. Validate
func Load(configFile string) (*Config, error) {
	cfg := NewConfig()

	if configFile != "" {
		if err := cfg.LoadFromFile(configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := cfg.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	cfg.SetDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}
