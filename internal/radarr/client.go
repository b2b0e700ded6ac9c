// Package radarr unmonitors movies in a Radarr instance so a removed
// duplicate is not immediately re-acquired.
package radarr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/faults"
)

const (
	defaultTimeout = 30 * time.Second
	apiKeyHeader   = "X-Api-Key"
)

// Client provides HTTP communication with a Radarr server.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
}

// ClientConfig contains configuration for creating a new Radarr client.
type ClientConfig struct {
	URL     string
	APIKey  string
	Timeout int
	Logger  zerolog.Logger
}

// NewClient creates a new Radarr HTTP client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("radarr URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("radarr API key is required")
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &Client{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger.With().Str("component", "radarr-client").Logger(),
	}, nil
}

// do executes an HTTP request with the API key header.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(apiKeyHeader, c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug().Str("method", method).Str("path", path).Msg("executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.Connectivity("radarr", err)
	}
	return resp, nil
}

// doJSON executes a request and decodes the JSON response into result.
func (c *Client) doJSON(ctx context.Context, method, path string, body io.Reader, result interface{}) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return err
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (c *Client) putJSON(ctx context.Context, path string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}
	return c.doJSON(ctx, http.MethodPut, path, bytes.NewReader(data), nil)
}

// classify maps HTTP error statuses onto the shared fault taxonomy.
func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return faults.Auth("radarr", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return faults.NotFound("radarr resource")
	case resp.StatusCode == http.StatusTooManyRequests:
		return faults.RateLimit("radarr")
	case resp.StatusCode >= http.StatusInternalServerError:
		return faults.Connectivity("radarr", fmt.Errorf("status %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("radarr request failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// TestConnection verifies connectivity by fetching system status.
func (c *Client) TestConnection(ctx context.Context) error {
	var status struct {
		Version string `json:"version"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v3/system/status", nil, &status); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	c.logger.Info().Str("version", status.Version).Msg("connection test successful")
	return nil
}
