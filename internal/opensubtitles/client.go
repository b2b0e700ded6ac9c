// Package opensubtitles implements the subtitle provider against the
// OpenSubtitles REST API.
package opensubtitles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/reelsweep/reelsweep/internal/faults"
	"github.com/reelsweep/reelsweep/internal/media"
	"github.com/reelsweep/reelsweep/internal/subtitles"
)

const (
	defaultBaseURL = "https://api.opensubtitles.com/api/v1"
	defaultTimeout = 30 * time.Second
	userAgent      = "reelsweep v1.0"

	// minInterval spaces requests out; the API throttles aggressively.
	minInterval = 250 * time.Millisecond
)

// Client talks to the OpenSubtitles REST API. It implements
// subtitles.Provider.
type Client struct {
	baseURL    string
	apiKey     string
	username   string
	password   string
	httpClient *http.Client
	logger     zerolog.Logger

	mu       sync.Mutex
	token    string
	lastCall time.Time
}

// ClientConfig contains configuration for creating a new OpenSubtitles
// client. Username and password are optional; without them downloads run on
// the anonymous quota.
type ClientConfig struct {
	BaseURL  string
	APIKey   string
	Username string
	Password string
	Timeout  int
	Logger   zerolog.Logger
}

// NewClient creates a new OpenSubtitles client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("opensubtitles API key is required")
	}

	baseURL := defaultBaseURL
	if cfg.BaseURL != "" {
		baseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}

	timeout := defaultTimeout
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}

	return &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		logger:     cfg.Logger.With().Str("component", "opensubtitles-client").Logger(),
	}, nil
}

// throttle enforces the minimum spacing between API calls.
func (c *Client) throttle() {
	c.mu.Lock()
	wait := minInterval - time.Since(c.lastCall)
	c.lastCall = time.Now().Add(wait)
	c.mu.Unlock()
	if wait > 0 {
		time.Sleep(wait)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Api-Key", c.apiKey)
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	c.throttle()
	c.logger.Debug().Str("method", method).Str("path", path).Msg("executing request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.Connectivity("opensubtitles", err)
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, result interface{}) error {
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

// TestConnection verifies the API key against the user info endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodGet, "/infos/user", nil, nil)
}

// classify maps error statuses onto the shared fault taxonomy. 406 is the
// API's quota-exceeded signal and is treated the same as 429.
func classify(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return faults.Auth("opensubtitles", fmt.Errorf("status %d", resp.StatusCode))
	case resp.StatusCode == http.StatusNotAcceptable || resp.StatusCode == http.StatusTooManyRequests:
		return faults.RateLimit("opensubtitles")
	case resp.StatusCode == http.StatusNotFound:
		return faults.NotFound("opensubtitles resource")
	case resp.StatusCode >= http.StatusInternalServerError:
		return faults.Connectivity("opensubtitles", fmt.Errorf("status %d", resp.StatusCode))
	default:
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("opensubtitles request failed with status %d: %s", resp.StatusCode, string(body))
	}
}

// Login obtains a bearer token for the configured account. Without
// credentials it is a no-op and downloads use the anonymous quota.
func (c *Client) Login(ctx context.Context) error {
	if c.username == "" || c.password == "" {
		return nil
	}

	var result struct {
		Token string `json:"token"`
	}
	payload := map[string]string{"username": c.username, "password": c.password}
	if err := c.doJSON(ctx, http.MethodPost, "/login", payload, &result); err != nil {
		return fmt.Errorf("opensubtitles login failed: %w", err)
	}

	c.mu.Lock()
	c.token = result.Token
	c.mu.Unlock()
	c.logger.Info().Str("user", c.username).Msg("logged in")
	return nil
}

type searchResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Language          string  `json:"language"`
			MoviehashMatch    bool    `json:"moviehash_match"`
			FromTrusted       bool    `json:"from_trusted"`
			HearingImpaired   bool    `json:"hearing_impaired"`
			MachineTranslated bool    `json:"machine_translated"`
			DownloadCount     int     `json:"download_count"`
			Release           string  `json:"release"`
			Ratings           float64 `json:"ratings"`
			Files             []struct {
				FileID int64 `json:"file_id"`
			} `json:"files"`
		} `json:"attributes"`
	} `json:"data"`
}

// Search queries for subtitles matching the request. Results carry the
// match basis: a moviehash match is an exact file identity, everything else
// is metadata.
func (c *Client) Search(ctx context.Context, req subtitles.SearchRequest) ([]subtitles.Candidate, error) {
	params := url.Values{}
	params.Set("languages", strings.Join(req.Languages, ","))
	if req.MovieHash != "" {
		params.Set("moviehash", req.MovieHash)
	}
	if req.IMDBID != "" {
		params.Set("imdb_id", strings.TrimPrefix(req.IMDBID, "tt"))
	}
	if req.Title != "" {
		params.Set("query", req.Title)
	}
	if req.Kind == media.KindEpisode {
		if req.Season > 0 {
			params.Set("season_number", strconv.Itoa(req.Season))
		}
		if req.Episode > 0 {
			params.Set("episode_number", strconv.Itoa(req.Episode))
		}
	} else if req.Year > 0 {
		params.Set("year", strconv.Itoa(req.Year))
	}

	var resp searchResponse
	if err := c.doJSON(ctx, http.MethodGet, "/subtitles?"+params.Encode(), nil, &resp); err != nil {
		return nil, err
	}

	candidates := make([]subtitles.Candidate, 0, len(resp.Data))
	for _, d := range resp.Data {
		if len(d.Attributes.Files) == 0 {
			continue
		}
		cand := subtitles.Candidate{
			ID:                d.ID,
			FileID:            d.Attributes.Files[0].FileID,
			Language:          strings.ToLower(d.Attributes.Language),
			Basis:             subtitles.BasisMetadata,
			Confidence:        metadataConfidence(req),
			Release:           d.Attributes.Release,
			FromTrusted:       d.Attributes.FromTrusted,
			HearingImpaired:   d.Attributes.HearingImpaired,
			MachineTranslated: d.Attributes.MachineTranslated,
			Downloads:         d.Attributes.DownloadCount,
		}
		if d.Attributes.MoviehashMatch {
			cand.Basis = subtitles.BasisHash
			cand.Confidence = 1.0
		}
		candidates = append(candidates, cand)
	}

	c.logger.Debug().Int("candidates", len(candidates)).Str("title", req.Title).Msg("search complete")
	return candidates, nil
}

// metadataConfidence grades how specific the metadata query was: an IMDB id
// pins the work exactly, a bare title with year is weaker.
func metadataConfidence(req subtitles.SearchRequest) float64 {
	if req.IMDBID != "" {
		return 0.9
	}
	if req.Year > 0 || (req.Season > 0 && req.Episode > 0) {
		return 0.8
	}
	return 0.6
}

// Download fetches the subtitle content for a candidate. The API hands out
// a short-lived link first; quota exhaustion surfaces as a rate-limit fault
// on that first call.
func (c *Client) Download(ctx context.Context, candidate subtitles.Candidate) ([]byte, error) {
	var grant struct {
		Link      string `json:"link"`
		Remaining int    `json:"remaining"`
	}
	payload := map[string]int64{"file_id": candidate.FileID}
	if err := c.doJSON(ctx, http.MethodPost, "/download", payload, &grant); err != nil {
		return nil, err
	}
	if grant.Link == "" {
		return nil, fmt.Errorf("opensubtitles returned no download link for %s", candidate.ID)
	}
	if grant.Remaining == 0 {
		c.logger.Warn().Msg("this download used the last of the quota")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, grant.Link, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, faults.Connectivity("opensubtitles", err)
	}
	defer resp.Body.Close()

	if err := classify(resp); err != nil {
		return nil, err
	}
	return io.ReadAll(resp.Body)
}
