// Package yandex talks to the Yandex Cloud IAM token endpoint and the
// foundation-models completion endpoint.
package yandex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/dotcommander/actionlib/pkg/actionlib/errors"
)

const (
	DefaultTokenURL      = "https://iam.api.cloud.yandex.net/iam/v1/tokens"
	DefaultCompletionURL = "https://llm.api.cloud.yandex.net/foundationModels/v1/completion"
	DefaultModelURI      = "gpt://b1gkl7o40oq65tfl3s3j/yandexgpt"

	// maxErrorBody bounds how much of a failed response is kept in errors and logs
	maxErrorBody = 4096
)

type Client struct {
	tokenURL      string
	completionURL string
	modelURI      string
	httpClient    *http.Client
	maxRetries    int
	backoff       time.Duration
	limiter       *rate.Limiter
	logger        *slog.Logger
}

type Option func(*Client)

func WithRetry(maxRetries int) Option {
	return func(c *Client) {
		if maxRetries >= 0 {
			c.maxRetries = maxRetries
		}
	}
}

// WithBackoff sets the unit of the linear delay between retries
func WithBackoff(unit time.Duration) Option {
	return func(c *Client) {
		c.backoff = unit
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		// Preserve existing transport if any
		transport := c.httpClient.Transport
		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithRateLimit(requestsPerMinute int, burst int) Option {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60.0), burst)
	}
}

// WithEndpoints overrides the token and completion URLs; empty values keep the defaults
func WithEndpoints(tokenURL, completionURL string) Option {
	return func(c *Client) {
		if tokenURL != "" {
			c.tokenURL = tokenURL
		}
		if completionURL != "" {
			c.completionURL = completionURL
		}
	}
}

func WithModel(modelURI string) Option {
	return func(c *Client) {
		if modelURI != "" {
			c.modelURI = modelURI
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func NewClient(opts ...Option) *Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		tokenURL:      DefaultTokenURL,
		completionURL: DefaultCompletionURL,
		modelURI:      DefaultModelURI,
		httpClient: &http.Client{
			Timeout:   60 * time.Second,
			Transport: transport,
		},
		maxRetries: 2,
		backoff:    time.Second,
		limiter:    rate.NewLimiter(rate.Limit(0.5), 5), // Default: 30 req/min
		logger:     slog.Default().With("component", "yandex_client"),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.logger.Debug("yandex client initialized",
		"token_url", c.tokenURL,
		"completion_url", c.completionURL,
		"model", c.modelURI,
		"max_retries", c.maxRetries,
		"rate_limit", fmt.Sprintf("%v req/s", c.limiter.Limit()))

	return c
}

// ModelURI returns the model identifier sent with every completion request
func (c *Client) ModelURI() string {
	return c.modelURI
}

// postJSON sends payload to url and returns the raw body of a 2xx response.
// Transport failures, including non-2xx statuses, come back as
// *errors.TransportError and are retried while they look temporary.
func (c *Client) postJSON(ctx context.Context, requestID, url string, payload any, bearer string) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	startTime := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		c.logger.Error("rate limit wait failed",
			"request_id", requestID,
			"error", err)
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	c.logger.Debug("rate limit passed",
		"request_id", requestID,
		"wait_duration_ms", time.Since(startTime).Milliseconds())

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * c.backoff
			c.logger.Debug("retry backoff",
				"request_id", requestID,
				"attempt", attempt,
				"backoff_ms", backoff.Milliseconds())

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				c.logger.Warn("request cancelled during backoff",
					"request_id", requestID,
					"attempt", attempt)
				return nil, ctx.Err()
			}
		}

		attemptStart := time.Now()
		respBody, err := c.doRequest(ctx, url, body, bearer)
		attemptDuration := time.Since(attemptStart)

		if err == nil {
			c.logger.Debug("request successful",
				"request_id", requestID,
				"attempt", attempt,
				"duration_ms", attemptDuration.Milliseconds(),
				"response_length", len(respBody))
			return respBody, nil
		}

		lastErr = err

		if !apperrors.IsRetryable(err) || ctx.Err() != nil {
			c.logger.Error("request failed with non-retryable error",
				"request_id", requestID,
				"attempt", attempt,
				"duration_ms", attemptDuration.Milliseconds(),
				"error", err)
			return nil, err
		}

		c.logger.Warn("request failed, will retry",
			"request_id", requestID,
			"attempt", attempt,
			"duration_ms", attemptDuration.Milliseconds(),
			"error", err)
	}

	c.logger.Error("request failed after max retries",
		"request_id", requestID,
		"max_retries", c.maxRetries,
		"total_duration_ms", time.Since(startTime).Milliseconds(),
		"last_error", lastErr)

	return nil, lastErr
}

func (c *Client) doRequest(ctx context.Context, url string, body []byte, bearer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &apperrors.TransportError{Endpoint: url, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &apperrors.TransportError{Endpoint: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &apperrors.TransportError{
			Endpoint:   url,
			StatusCode: resp.StatusCode,
			Body:       truncate(string(respBody), maxErrorBody),
		}
	}

	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func newRequestID(prefix string) string {
	return fmt.Sprintf("%s_%d", prefix, time.Now().UnixNano())
}
