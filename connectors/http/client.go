// Copyright 2025 Conduit
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package http provides a general-purpose JSON REST client for building
// connectors against HTTP APIs.
package http

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
	"time"

	"conduit/integrations/connectors/base"
	"conduit/integrations/connectors/sdk"
	"conduit/integrations/shared/logger"
)

// maxErrorBodyBytes caps how much of an error response body is retained.
const maxErrorBodyBytes = 64 * 1024

// APIClient is a JSON REST client bound to one base URL. Credentials,
// default headers, rate limiting, retry, metrics, and circuit breaking
// are configured once at construction and applied to every request.
type APIClient struct {
	baseURL     string
	credentials *base.Credentials
	headers     map[string]string

	httpClient  *http.Client
	limiter     *sdk.RateLimiter
	retryPolicy *sdk.RetryPolicy
	metrics     *sdk.RequestMetrics
	breaker     *sdk.CircuitBreaker
	tokens      sdk.TokenProvider
	log         *logger.Logger

	host              string
	allowPrivateHosts bool
}

// Option configures an APIClient.
type Option func(*APIClient)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *APIClient) { c.httpClient = client }
}

// WithHeader adds a default header sent on every request. Per-request
// headers with the same name take precedence.
func WithHeader(name, value string) Option {
	return func(c *APIClient) { c.headers[name] = value }
}

// WithHeaders adds a set of default headers.
func WithHeaders(headers map[string]string) Option {
	return func(c *APIClient) {
		for name, value := range headers {
			c.headers[name] = value
		}
	}
}

// WithRateLimiter throttles requests through the given limiter.
func WithRateLimiter(limiter *sdk.RateLimiter) Option {
	return func(c *APIClient) { c.limiter = limiter }
}

// WithRetryPolicy retries failed requests under the given policy. Without
// it, each request is attempted exactly once.
func WithRetryPolicy(policy *sdk.RetryPolicy) Option {
	return func(c *APIClient) { c.retryPolicy = policy }
}

// WithMetrics records request counts, errors, retries and latency.
func WithMetrics(metrics *sdk.RequestMetrics) Option {
	return func(c *APIClient) { c.metrics = metrics }
}

// WithCircuitBreaker routes every attempt through the given breaker.
func WithCircuitBreaker(breaker *sdk.CircuitBreaker) Option {
	return func(c *APIClient) { c.breaker = breaker }
}

// WithTokenProvider sources bearer tokens dynamically, taking precedence
// over static credentials.
func WithTokenProvider(provider sdk.TokenProvider) Option {
	return func(c *APIClient) { c.tokens = provider }
}

// WithLogger emits one structured log line per request attempt: method,
// path, status and duration. Credentials and bodies are never logged.
func WithLogger(log *logger.Logger) Option {
	return func(c *APIClient) { c.log = log }
}

// AllowPrivateHosts permits base URLs that resolve to private or loopback
// addresses. Intended for tests and on-premise deployments.
func AllowPrivateHosts() Option {
	return func(c *APIClient) { c.allowPrivateHosts = true }
}

// NewAPIClient creates a client for the given base URL. The URL is
// validated up front; private and loopback hosts are rejected unless
// AllowPrivateHosts is set.
func NewAPIClient(baseURL string, creds *base.Credentials, opts ...Option) (*APIClient, error) {
	c := &APIClient{
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		credentials: creds,
		headers:     make(map[string]string),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}

	urlOpts := base.DefaultURLValidationOptions()
	urlOpts.AllowPrivateIPs = c.allowPrivateHosts
	if err := base.ValidateURL(c.baseURL, urlOpts); err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	if parsed, err := url.Parse(c.baseURL); err == nil {
		c.host = parsed.Hostname()
	}

	return c, nil
}

// SetCredentials replaces the client's credentials, e.g. after a token
// rotation.
func (c *APIClient) SetCredentials(creds *base.Credentials) {
	c.credentials = creds
}

// BaseURL returns the validated base URL.
func (c *APIClient) BaseURL() string {
	return c.baseURL
}

// RequestOptions customizes a single request.
type RequestOptions struct {
	// Headers are merged over the client defaults; per-request values win.
	Headers map[string]string

	// Params are appended to the URL as query parameters.
	Params map[string]string

	// Body is serialized to JSON when non-nil.
	Body interface{}
}

// APIRequestError is returned for non-2xx responses. Body carries the
// provider's response for diagnosis, capped at 64 KiB.
type APIRequestError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIRequestError) Error() string {
	return fmt.Sprintf("request failed with status %s", e.Status)
}

// Request performs one HTTP request against the base URL and returns the
// decoded JSON response. Non-2xx responses return a *APIRequestError.
// Rate limiting, retry and the circuit breaker apply in that order when
// configured.
func (c *APIClient) Request(ctx context.Context, method, path string, opts *RequestOptions) (interface{}, error) {
	if opts == nil {
		opts = &RequestOptions{}
	}

	if c.limiter != nil {
		if err := c.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
	}

	attempts := 0
	attempt := func() (interface{}, error) {
		attempts++
		if c.metrics != nil && attempts > 1 {
			c.metrics.RecordRetry()
		}

		start := time.Now()
		result, err := c.do(ctx, method, path, opts)
		duration := time.Since(start)
		if c.metrics != nil {
			c.metrics.RecordRequest(duration, err)
		}
		c.logOutcome(method, path, duration, err)
		return result, err
	}

	guarded := attempt
	if c.breaker != nil {
		guarded = func() (interface{}, error) {
			var result interface{}
			err := c.breaker.Execute(ctx, func() error {
				var attemptErr error
				result, attemptErr = attempt()
				return attemptErr
			})
			return result, err
		}
	}

	if c.retryPolicy == nil {
		return guarded()
	}
	return sdk.Retry(ctx, c.retryPolicy, guarded)
}

// do performs a single attempt.
func (c *APIClient) do(ctx context.Context, method, path string, opts *RequestOptions) (interface{}, error) {
	target, err := c.buildURL(path, opts.Params)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for name, value := range c.headers {
		req.Header.Set(name, value)
	}
	for name, value := range opts.Headers {
		req.Header.Set(name, value)
	}
	if opts.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	if err := c.applyAuth(ctx, req); err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", base.SanitizeLogString(target), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &APIRequestError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}

	var result interface{}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("failed to parse response JSON: %w", err)
	}
	return result, nil
}

// logOutcome writes one structured line for a completed attempt. Only
// method, path, status and timing are recorded.
func (c *APIClient) logOutcome(method, path string, duration time.Duration, err error) {
	if c.log == nil {
		return
	}

	target := base.SanitizeLogString(method + " " + path)
	if err != nil {
		status := 0
		var apiErr *APIRequestError
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		c.log.ErrorWithCode(c.host, "", target+" failed", status, err, nil)
		return
	}

	c.log.InfoWithDuration(c.host, "", target, float64(duration.Microseconds())/1000.0, nil)
}

// applyAuth resolves the effective credentials for one request. A token
// provider takes precedence over static credentials.
func (c *APIClient) applyAuth(ctx context.Context, req *http.Request) error {
	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return fmt.Errorf("failed to obtain access token: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		return nil
	}

	sdk.ApplyCredentials(req, c.credentials)
	return nil
}

// buildURL joins the base URL with path and appends query parameters.
func (c *APIClient) buildURL(path string, params map[string]string) (string, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	parsed, err := url.Parse(c.baseURL + path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}

	if len(params) > 0 {
		q := parsed.Query()
		for name, value := range params {
			q.Set(name, value)
		}
		parsed.RawQuery = q.Encode()
	}

	return parsed.String(), nil
}

// Get performs a GET request.
func (c *APIClient) Get(ctx context.Context, path string, opts *RequestOptions) (interface{}, error) {
	return c.Request(ctx, http.MethodGet, path, opts)
}

// Post performs a POST request with the given JSON body.
func (c *APIClient) Post(ctx context.Context, path string, body interface{}, opts *RequestOptions) (interface{}, error) {
	return c.Request(ctx, http.MethodPost, path, withBody(opts, body))
}

// Put performs a PUT request with the given JSON body.
func (c *APIClient) Put(ctx context.Context, path string, body interface{}, opts *RequestOptions) (interface{}, error) {
	return c.Request(ctx, http.MethodPut, path, withBody(opts, body))
}

// Patch performs a PATCH request with the given JSON body.
func (c *APIClient) Patch(ctx context.Context, path string, body interface{}, opts *RequestOptions) (interface{}, error) {
	return c.Request(ctx, http.MethodPatch, path, withBody(opts, body))
}

// Delete performs a DELETE request.
func (c *APIClient) Delete(ctx context.Context, path string, opts *RequestOptions) (interface{}, error) {
	return c.Request(ctx, http.MethodDelete, path, opts)
}

func withBody(opts *RequestOptions, body interface{}) *RequestOptions {
	if opts == nil {
		opts = &RequestOptions{}
	}
	merged := *opts
	merged.Body = body
	return &merged
}
