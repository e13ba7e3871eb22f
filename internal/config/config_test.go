package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testContractAddress = "0x000000000000000000000000000000000000dEaD"

func validConfig() *Config {
	cfg := NewConfig()
	cfg.RPC.Endpoint = "http://localhost:8545"
	cfg.Marketplace.ContractAddress = testContractAddress
	cfg.Database.Path = "/tmp/marketd-db"
	cfg.Catalog.Path = "/tmp/catalog.yaml"
	return cfg
}

func TestSetDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, 30*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, 2*time.Second, cfg.Marketplace.ReceiptPollInterval)
	assert.Equal(t, "https://ipfs.io/ipfs/", cfg.Gateway.BaseURL)
	assert.Equal(t, "downloads", cfg.Gateway.DownloadDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "localhost", cfg.API.Host)
	assert.Equal(t, 8080, cfg.API.Port)
	assert.Equal(t, []string{"*"}, cfg.API.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "valid",
			mutate:  func(*Config) {},
			wantErr: "",
		},
		{
			name:    "missing rpc endpoint",
			mutate:  func(c *Config) { c.RPC.Endpoint = "" },
			wantErr: "RPC endpoint is required",
		},
		{
			name:    "missing contract address",
			mutate:  func(c *Config) { c.Marketplace.ContractAddress = "" },
			wantErr: "marketplace contract address is required",
		},
		{
			name:    "malformed contract address",
			mutate:  func(c *Config) { c.Marketplace.ContractAddress = "not-an-address" },
			wantErr: "invalid marketplace contract address",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database path is required",
		},
		{
			name:    "missing catalog path",
			mutate:  func(c *Config) { c.Catalog.Path = "" },
			wantErr: "catalog path is required",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: "invalid log level",
		},
		{
			name: "webhook enabled without url",
			mutate: func(c *Config) {
				c.Notifications.Webhook.Enabled = true
				c.Notifications.Webhook.URL = ""
			},
			wantErr: "webhook notifications enabled but no URL configured",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
rpc:
  endpoint: http://localhost:8545
  timeout: 5s
marketplace:
  contract_address: "` + testContractAddress + `"
database:
  path: /var/lib/marketd
catalog:
  path: /etc/marketd/catalog.yaml
api:
  enabled: true
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromFile(path))

	assert.Equal(t, "http://localhost:8545", cfg.RPC.Endpoint)
	assert.Equal(t, 5*time.Second, cfg.RPC.Timeout)
	assert.Equal(t, testContractAddress, cfg.Marketplace.ContractAddress)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, 9090, cfg.API.Port)
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewConfig()
	err := cfg.LoadFromFile("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MARKETD_RPC_ENDPOINT", "http://env:8545")
	t.Setenv("MARKETD_API_PORT", "7070")
	t.Setenv("MARKETD_API_CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MARKETD_AI_API_KEY", "test-key")

	cfg := NewConfig()
	require.NoError(t, cfg.LoadFromEnv())

	assert.Equal(t, "http://env:8545", cfg.RPC.Endpoint)
	assert.Equal(t, 7070, cfg.API.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.API.AllowedOrigins)
	assert.Equal(t, "test-key", cfg.AI.APIKey)
}

func TestLoadFromEnvInvalid(t *testing.T) {
	t.Setenv("MARKETD_API_PORT", "not-a-port")

	cfg := NewConfig()
	err := cfg.LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MARKETD_API_PORT")
}

func TestContractAddr(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, testContractAddress, cfg.ContractAddr().Hex())
}
