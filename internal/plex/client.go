// Package plex reads the media catalog from a Plex server and performs
// catalog-side deletes and refreshes.
package plex

import (
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
	defaultTimeout = 60 * time.Second
	tokenHeader    = "X-Plex-Token"
)

// Client provides HTTP communication with a Plex server.
type Client struct {
	baseURL      string
	token        string
	movieLibrary string
	tvLibrary    string
	httpClient   *http.Client
	logger       zerolog.Logger
}

// ClientConfig contains configuration for creating a new Plex client.
type ClientConfig struct {
	URL   string
	Token string
	// MovieLibrary and TVLibrary restrict scans to named sections.
	// Empty means every section of the matching type.
	MovieLibrary string
	TVLibrary    string
	Timeout      int
	Logger       zerolog.Logger
}

// NewClient creates a new Plex HTTP client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("plex URL is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("plex token is required")
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.URL, "/"),
		token:        cfg.Token,
		movieLibrary: cfg.MovieLibrary,
		tvLibrary:    cfg.TVLibrary,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       cfg.Logger.With().Str("component", "plex-client").Logger(),
	}, nil
}

// do executes an HTTP request with the token header, asking for JSON.
func (c *Client) do(ctx context.Context, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set(tokenHeader, c.token)
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("method", method).Str("path", path).Msg("executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.Connectivity("plex", err)
	}
	return resp, nil
}

// doJSON executes a GET request and decodes the JSON response into result.
func (c *Client) doJSON(ctx context.Context, path string, result interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path)
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

func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return faults.Auth("plex", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotFound:
		return faults.NotFound("plex resource")
	case resp.StatusCode == http.StatusTooManyRequests:
		return faults.RateLimit("plex")
	case resp.StatusCode >= http.StatusInternalServerError:
		// Server-side errors are transient from the client's point of view
		// and eligible for retry.
		return faults.Connectivity("plex", fmt.Errorf("status %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("plex request failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// TestConnection verifies connectivity and the token by fetching the server
// identity.
func (c *Client) TestConnection(ctx context.Context) error {
	var identity struct {
		MediaContainer struct {
			Version string `json:"version"`
		} `json:"MediaContainer"`
	}
	if err := c.doJSON(ctx, "/identity", &identity); err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	c.logger.Info().Str("version", identity.MediaContainer.Version).Msg("connection test successful")
	return nil
}
