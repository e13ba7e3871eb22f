// Package gateway resolves token metadata URIs through an HTTP IPFS
// gateway and saves purchased contract files to disk.
package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	ipfsScheme       = "ipfs://"
	maxDownloadBytes = 16 << 20 // 16 MiB
)

// Config holds gateway configuration
type Config struct {
	// BaseURL is the HTTP gateway prefix ipfs:// URIs are rewritten to,
	// e.g. "https://ipfs.io/ipfs/".
	BaseURL     string
	Timeout     time.Duration
	DownloadDir string
}

// Client fetches content behind token metadata URIs
type Client struct {
	baseURL     string
	downloadDir string
	httpClient  *http.Client
	logger      *zap.Logger
}

// NewClient creates a gateway client
func NewClient(cfg *Config, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL cannot be empty")
	}
	if cfg.DownloadDir == "" {
		return nil, fmt.Errorf("download dir cannot be empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	return &Client{
		baseURL:     baseURL,
		downloadDir: cfg.DownloadDir,
		httpClient:  &http.Client{Timeout: timeout},
		logger:      logger,
	}, nil
}

// ResolveURI rewrites an ipfs:// URI to its HTTP gateway form. URIs
// with other schemes pass through unchanged.
func (c *Client) ResolveURI(uri string) string {
	if strings.HasPrefix(uri, ipfsScheme) {
		return c.baseURL + strings.TrimPrefix(uri, ipfsScheme)
	}
	return uri
}

// DownloadFilename derives the local filename for a metadata URI:
// the URI path's base name with its extension replaced by .sol and a
// "contract-" prefix.
func DownloadFilename(uri string) string {
	base := path.Base(strings.TrimPrefix(uri, ipfsScheme))
	base = strings.TrimSuffix(base, path.Ext(base))
	return fmt.Sprintf("contract-%s.sol", base)
}

// Fetch retrieves the content behind a metadata URI
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	resolved := c.ResolveURI(uri)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateway request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gateway fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gateway returned status %d for %s", resp.StatusCode, resolved)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("gateway returned empty content for %s", resolved)
	}

	return data, nil
}

// Download fetches a metadata URI and writes it to the download
// directory under its derived contract filename. Returns the written
// file path.
func (c *Client) Download(ctx context.Context, uri string) (string, error) {
	data, err := c.Fetch(ctx, uri)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(c.downloadDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create download dir: %w", err)
	}

	dest := filepath.Join(c.downloadDir, DownloadFilename(uri))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write contract file: %w", err)
	}

	c.logger.Info("contract downloaded",
		zap.String("uri", uri),
		zap.String("path", dest),
		zap.Int("bytes", len(data)))

	return dest, nil
}
