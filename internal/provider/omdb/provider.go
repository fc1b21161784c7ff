package omdb

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Digital-Shane/media-sidecar/internal/provider"
	"github.com/Digital-Shane/omdb"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	providerName = "omdb"

	// DefaultTimeout bounds a single catalog request.
	DefaultTimeout = 10 * time.Second

	// maxBodyBytes caps how much of a response body is read.
	maxBodyBytes = 1 << 20
)

// Config holds everything needed to build a Client.
type Config struct {
	APIKey  string
	BaseURL string // defaults to omdb.DefaultURL
	Timeout time.Duration

	// RequestsPerSecond paces outgoing requests when positive. Zero leaves
	// the client unthrottled.
	RequestsPerSecond float64

	// HTTPClient overrides the transport, mostly for tests.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client looks up movies, series and episodes in the OMDb catalog. Every
// failure is reported to callers as absence; the reason is only logged.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	timeout    time.Duration
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// New creates a Client. A blank API key yields provider.ErrMissingCredential.
func New(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, provider.ErrMissingCredential
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = omdb.DefaultURL
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid OMDb base url %q: %w", baseURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	c := &Client{
		httpClient: httpClient,
		apiKey:     apiKey,
		baseURL:    baseURL,
		timeout:    timeout,
		logger:     cfg.Logger.With().Str("component", providerName).Logger(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c, nil
}

// buildRequest constructs an HTTP request with common parameters applied.
func (c *Client) buildRequest(ctx context.Context, params map[string]string) (*http.Request, error) {
	values := url.Values{}
	for k, v := range params {
		if v == "" {
			continue
		}
		values.Set(k, v)
	}
	values.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return nil, err
	}
	req.URL.RawQuery = values.Encode()
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// get performs one catalog request and returns the raw body of a 2xx response.
func (c *Client) get(ctx context.Context, params map[string]string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.transportError(err)
		}
	}

	req, err := c.buildRequest(ctx, params)
	if err != nil {
		return nil, &provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeInvalidRequest,
			Message:  "could not build request",
			Err:      err,
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, c.transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(resp.StatusCode)
	}
	return body, nil
}

func (c *Client) transportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeTimeout,
			Message:  fmt.Sprintf("request timed out after %s", c.timeout),
			Err:      err,
		}
	}
	return &provider.ProviderError{
		Provider: providerName,
		Code:     provider.CodeTransport,
		Message:  "request failed",
		Err:      err,
	}
}

func statusError(status int) error {
	perr := &provider.ProviderError{
		Provider: providerName,
		Code:     provider.CodeHTTPStatus,
		Message:  fmt.Sprintf("unexpected status %d", status),
		Status:   status,
	}
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		perr.Code = provider.CodeAuthFailed
		perr.Message = "OMDb authentication failed"
	case status == http.StatusNotFound:
		perr.Code = provider.CodeNotFound
		perr.Message = "not found"
	case status == http.StatusTooManyRequests:
		perr.Code = provider.CodeRateLimited
		perr.Message = "request limit reached"
	}
	return perr
}

// mapError classifies the Error text of a Response:"False" body.
func mapError(msg string) error {
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "invalid api key"), strings.Contains(lower, "no api key"):
		return &provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeAuthFailed,
			Message:  "OMDb authentication failed: " + msg,
		}
	case strings.Contains(lower, "limit reached"), strings.Contains(lower, "too many requests"):
		return &provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeRateLimited,
			Message:  msg,
		}
	default:
		if msg == "" {
			msg = "not found"
		}
		return &provider.ProviderError{
			Provider: providerName,
			Code:     provider.CodeNotFound,
			Message:  msg,
		}
	}
}

// logMiss records why a lookup produced no record.
func (c *Client) logMiss(err error, event *zerolog.Event) {
	var perr *provider.ProviderError
	if errors.As(err, &perr) {
		event = event.Str("code", perr.Code)
		if perr.Status != 0 {
			event = event.Int("status", perr.Status)
		}
	}
	event.Err(err).Msg("lookup returned no record")
}

// missEvent picks the log level for a failed lookup. Plain misses are routine.
func (c *Client) missEvent(err error) *zerolog.Event {
	if provider.IsCode(err, provider.CodeNotFound) {
		return c.logger.Debug()
	}
	return c.logger.Warn()
}
