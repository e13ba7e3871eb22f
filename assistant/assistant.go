// Package assistant answers user questions about catalog contracts by
// prompting a generative language model with the contract's source and
// reference material.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/neuron-labs/marketd/catalog"
)

var (
	// ErrBlankQuestion is returned for empty or whitespace-only questions.
	// No model request is made.
	ErrBlankQuestion = errors.New("question is blank")

	// ErrBusy is returned while a previous question is still in flight
	ErrBusy = errors.New("a question is already in flight")
)

const maxResponseBytes = 1 << 20 // 1 MiB

// Config holds assistant configuration
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Assistant sends contract questions to the model endpoint. Only one
// question may be in flight at a time.
type Assistant struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger

	busy atomic.Bool
}

// New creates an assistant from config
func New(cfg *Config, logger *zap.Logger) (*Assistant, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Assistant{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}, nil
}

// generateRequest mirrors the model API's content envelope
type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Ask answers a question about a contract. Blank questions return
// ErrBlankQuestion without touching the network; a second call while
// one is running returns ErrBusy.
func (a *Assistant) Ask(ctx context.Context, question, source string, rec catalog.Record) (string, error) {
	if strings.TrimSpace(question) == "" {
		return "", ErrBlankQuestion
	}

	if !a.busy.CompareAndSwap(false, true) {
		return "", ErrBusy
	}
	defer a.busy.Store(false)

	start := time.Now()
	answer, err := a.generate(ctx, BuildPrompt(question, source, rec))
	if err != nil {
		a.logger.Warn("model request failed",
			zap.String("contract", rec.Identifier()),
			zap.Error(err))
		return "", err
	}

	a.logger.Info("question answered",
		zap.String("contract", rec.Identifier()),
		zap.Duration("elapsed", time.Since(start)))

	return answer, nil
}

// Busy reports whether a question is currently in flight
func (a *Assistant) Busy() bool {
	return a.busy.Load()
}

func (a *Assistant) generate(ctx context.Context, prompt string) (string, error) {
	payload := generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode model request: %w", err)
	}

	endpoint, err := a.keyedEndpoint()
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build model request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("model endpoint returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read model response: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode model response: %w", err)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("model response has no candidates")
	}

	return parsed.Candidates[0].Content.Parts[0].Text, nil
}

// keyedEndpoint appends the API key as a query parameter
func (a *Assistant) keyedEndpoint() (string, error) {
	u, err := url.Parse(a.endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid model endpoint: %w", err)
	}
	q := u.Query()
	q.Set("key", a.apiKey)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
