package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const maxSourceBytes = 4 << 20 // 4 MiB

// SourceClient fetches contract source text from the source service
type SourceClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewSourceClient creates a source client against the given endpoint
func NewSourceClient(endpoint string, timeout time.Duration, logger *zap.Logger) (*SourceClient, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SourceClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// FetchSource retrieves the Solidity source for a record's stored
// path. The service names the request field "slug" on the wire but
// takes the path value.
func (c *SourceClient) FetchSource(ctx context.Context, path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("source path cannot be empty")
	}

	body, err := json.Marshal(map[string]string{"slug": path})
	if err != nil {
		return "", fmt.Errorf("failed to encode source request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build source request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("source request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("source service returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxSourceBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read source response: %w", err)
	}

	var payload struct {
		Contract string `json:"contract"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", fmt.Errorf("failed to decode source response: %w", err)
	}
	if payload.Contract == "" {
		return "", fmt.Errorf("source service returned empty contract for %q", path)
	}

	c.logger.Debug("fetched contract source",
		zap.String("path", path),
		zap.Int("bytes", len(payload.Contract)))

	return payload.Contract, nil
}
