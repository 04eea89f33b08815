// Package entrez is a small NCBI E-utilities client covering the esearch,
// elink, esummary and efetch calls needed to resolve accessions and fetch
// SRA run metadata. Requests are rate limited per NCBI usage policy and carry
// the caller's tool name and contact email.
package entrez

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/nishad/srafetch/internal/errors"
)

// DefaultBaseURL is the public E-utilities endpoint.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils/"

// NCBI allows 3 requests per second without an API key and 10 with one.
const (
	anonymousRate = 3.0
	apiKeyRate    = 10.0
)

// Config configures a Client. Email is passed on every request.
type Config struct {
	BaseURL    string
	Email      string
	APIKey     string
	Tool       string
	Timeout    time.Duration
	RateLimit  float64 // requests per second; 0 picks the NCBI default
	HTTPClient *http.Client
	Logger     *slog.Logger
	Observer   Observer
}

// Observer is told about every completed request. Status is 0 when the
// request failed before a response arrived.
type Observer interface {
	ObserveRequest(util string, status int, elapsed time.Duration)
}

// Client issues E-utilities requests. It is safe for concurrent use; the
// rate limiter is shared by all callers.
type Client struct {
	cfg        Config
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// HTTPError is returned for non-2xx responses.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	msg := strings.TrimSpace(e.Message)
	if len(msg) > 200 {
		msg = msg[:200] + "..."
	}
	if msg == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, msg)
}

// NewClient creates a client, filling unset fields with defaults.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Tool == "" {
		cfg.Tool = "srafetch"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = anonymousRate
		if cfg.APIKey != "" {
			cfg.RateLimit = apiKeyRate
		}
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:     logger,
	}
}

// call POSTs params to the named utility (e.g. "esearch") and returns the body.
// POST keeps long ID lists out of the URL.
func (c *Client) call(ctx context.Context, util string, params url.Values) ([]byte, error) {
	op := errors.Op("entrez." + util)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.E(op, errors.KindNetwork, err, "rate limiter")
	}

	params.Set("tool", c.cfg.Tool)
	if c.cfg.Email != "" {
		params.Set("email", c.cfg.Email)
	}
	if c.cfg.APIKey != "" {
		params.Set("api_key", c.cfg.APIKey)
	}

	endpoint := c.cfg.BaseURL + util + ".fcgi"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, errors.E(op, errors.KindNetwork, err, "create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.cfg.Tool)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(util, 0, start)
		return nil, errors.E(op, errors.KindNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.E(op, errors.KindNetwork, err, "read body")
	}
	c.observe(util, resp.StatusCode, start)
	c.logger.Debug("entrez request", "util", util, "status", resp.StatusCode,
		"bytes", len(body), "elapsed", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errors.E(op, errors.KindRemote, &HTTPError{StatusCode: resp.StatusCode, Message: string(body)})
	}
	return body, nil
}

func (c *Client) observe(util string, status int, start time.Time) {
	if c.cfg.Observer != nil {
		c.cfg.Observer.ObserveRequest(util, status, time.Since(start))
	}
}

// errorElement extracts the text of an <ERROR> element some utilities return
// with a 200 status.
func errorElement(body []byte) (string, bool) {
	start := bytes.Index(body, []byte("<ERROR>"))
	if start < 0 {
		return "", false
	}
	rest := body[start+len("<ERROR>"):]
	end := bytes.Index(rest, []byte("</ERROR>"))
	if end < 0 {
		return string(rest), true
	}
	return string(rest[:end]), true
}
