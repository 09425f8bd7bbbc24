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

// Package graphql provides a client for connectors backed by GraphQL
// APIs.
package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"conduit/integrations/connectors/base"
	"conduit/integrations/connectors/sdk"
	"conduit/integrations/shared/logger"
)

// Client posts GraphQL documents to a single endpoint. Bearer credentials
// take precedence over API keys; basic auth is not part of the GraphQL
// surface.
type Client struct {
	endpoint    string
	credentials *base.Credentials
	headers     map[string]string
	httpClient  *http.Client
	log         *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) { c.httpClient = client }
}

// WithHeader adds a default header sent on every request.
func WithHeader(name, value string) Option {
	return func(c *Client) { c.headers[name] = value }
}

// WithLogger emits one structured log line per executed document:
// operation name, outcome and duration. Credentials, queries and
// variables are never logged.
func WithLogger(log *logger.Logger) Option {
	return func(c *Client) { c.log = log }
}

// NewClient creates a client for the given GraphQL endpoint.
func NewClient(endpoint string, creds *base.Credentials, opts ...Option) *Client {
	c := &Client{
		endpoint:    endpoint,
		credentials: creds,
		headers:     make(map[string]string),
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request is the standard GraphQL request envelope.
type Request struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
}

// ResponseError is one entry from a GraphQL errors array.
type ResponseError struct {
	Message string `json:"message"`
	Path    []any  `json:"path,omitempty"`
}

// HTTPError is returned when the transport layer fails with a non-2xx
// status before a GraphQL response could be read.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("graphql request failed with status %s", e.Status)
}

// RequestError is returned when the server answers 200 but the response
// carries a GraphQL errors array.
type RequestError struct {
	Errors []ResponseError
}

func (e *RequestError) Error() string {
	if len(e.Errors) == 0 {
		return "graphql request failed"
	}
	messages := make([]string, len(e.Errors))
	for i, entry := range e.Errors {
		messages[i] = entry.Message
	}
	return "graphql request failed: " + strings.Join(messages, "; ")
}

// Execute posts one GraphQL document and returns the data field. A
// response with a non-empty errors array fails with *RequestError even
// when data is partially present.
func (c *Client) Execute(ctx context.Context, req Request) (interface{}, error) {
	start := time.Now()
	data, err := c.execute(ctx, req)
	c.logOutcome(req, time.Since(start), err)
	return data, err
}

func (c *Client) execute(ctx context.Context, req Request) (interface{}, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graphql request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create graphql request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for name, value := range c.headers {
		httpReq.Header.Set(name, value)
	}
	c.applyAuth(httpReq)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("graphql request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}

	var envelope struct {
		Data   interface{}     `json:"data"`
		Errors []ResponseError `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("failed to parse graphql response: %w", err)
	}

	if len(envelope.Errors) > 0 {
		return nil, &RequestError{Errors: envelope.Errors}
	}
	return envelope.Data, nil
}

// logOutcome writes one structured line for a completed document. Only
// the operation name and timing are recorded, never the document or its
// variables.
func (c *Client) logOutcome(req Request, duration time.Duration, err error) {
	if c.log == nil {
		return
	}

	operation := req.OperationName
	if operation == "" {
		operation = "anonymous"
	}
	operation = base.SanitizeLogString(operation)

	if err != nil {
		status := 0
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			status = httpErr.StatusCode
		}
		c.log.ErrorWithCode("", "", "graphql operation "+operation+" failed", status, err, nil)
		return
	}

	c.log.InfoWithDuration("", "", "graphql operation "+operation, float64(duration.Microseconds())/1000.0, nil)
}

// applyAuth sets the auth header. Bearer wins over API key; basic
// credentials are ignored here.
func (c *Client) applyAuth(req *http.Request) {
	creds := c.credentials
	switch {
	case creds == nil:
	case creds.Bearer != "":
		req.Header.Set("Authorization", "Bearer "+creds.Bearer)
	case creds.APIKey != "":
		header := creds.APIKeyHeader
		if header == "" {
			header = sdk.DefaultAPIKeyHeader
		}
		req.Header.Set(header, creds.APIKey)
	}
}

// Query executes a query document.
func (c *Client) Query(ctx context.Context, query string, variables map[string]interface{}) (interface{}, error) {
	return c.Execute(ctx, Request{Query: query, Variables: variables})
}

// Mutation executes a mutation document.
func (c *Client) Mutation(ctx context.Context, mutation string, variables map[string]interface{}) (interface{}, error) {
	return c.Execute(ctx, Request{Query: mutation, Variables: variables})
}

// BatchResult is the outcome of one request in a BatchQuery call.
type BatchResult struct {
	Data interface{}
	Err  error
}

// BatchQuery executes all requests concurrently and returns the results
// in request order. Failures are recorded per entry; one failing request
// never aborts the others.
func (c *Client) BatchQuery(ctx context.Context, requests []Request) []BatchResult {
	results := make([]BatchResult, len(requests))

	var wg sync.WaitGroup
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()
			data, err := c.Execute(ctx, req)
			results[i] = BatchResult{Data: data, Err: err}
		}(i, req)
	}
	wg.Wait()

	return results
}
