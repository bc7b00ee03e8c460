// Package client talks to the flux data repository's web API: the site
// directory, data availability, variable limits and bulk downloads.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chrissnell/fluxdata/internal/log"
	"go.uber.org/zap"
)

// Config holds the repository endpoints.
type Config struct {
	SiteInfoURL       string
	AvailabilityURL   string
	VariableLimitsURL string
	DownloadURL       string
	Timeout           time.Duration
	UserAgent         string
}

// DefaultConfig points at the public AmeriFlux endpoints.
func DefaultConfig() Config {
	return Config{
		SiteInfoURL:       "https://amfcdn.lbl.gov/api/v1/site_display/AmeriFlux",
		AvailabilityURL:   "https://amfcdn.lbl.gov/api/v1/data_availability/AmeriFlux",
		VariableLimitsURL: "https://ameriflux-data.lbl.gov/AmeriFlux/SiteSearch.svc/fpinVarLimits",
		DownloadURL:       "https://amfcdn.lbl.gov/api/v1/data_download",
		Timeout:           60 * time.Second,
		UserAgent:         "fluxdata",
	}
}

// APIError is returned for any non-2xx response.
type APIError struct {
	StatusCode int
	URL        string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("repository returned %d for %s: %s", e.StatusCode, e.URL, e.Body)
}

// Client is a repository API client. It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *zap.SugaredLogger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates a client. Empty endpoints in cfg fall back to DefaultConfig.
func New(cfg Config, logger *zap.SugaredLogger, opts ...Option) *Client {
	def := DefaultConfig()
	if cfg.SiteInfoURL == "" {
		cfg.SiteInfoURL = def.SiteInfoURL
	}
	if cfg.AvailabilityURL == "" {
		cfg.AvailabilityURL = def.AvailabilityURL
	}
	if cfg.VariableLimitsURL == "" {
		cfg.VariableLimitsURL = def.VariableLimitsURL
	}
	if cfg.DownloadURL == "" {
		cfg.DownloadURL = def.DownloadURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = def.UserAgent
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: log.OrNop(logger),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("error creating request for %s: %w", url, err)
	}
	return c.doJSON(req, v)
}

func (c *Client) postJSON(ctx context.Context, url string, body, v any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error encoding request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("error creating request for %s: %w", url, err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doJSON(req, v)
}

func (c *Client) doJSON(req *http.Request, v any) error {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	c.logger.Debugf("making %s request to %s", req.Method, req.URL)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("error making request to %s: %w", req.URL, err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("error reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &APIError{StatusCode: resp.StatusCode, URL: req.URL.String(), Body: excerpt(bodyBytes)}
	}

	if err := json.NewDecoder(bytes.NewReader(bodyBytes)).Decode(v); err != nil {
		return fmt.Errorf("unable to decode response from %s: %w", req.URL, err)
	}
	return nil
}

func excerpt(b []byte) string {
	const max = 512
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
