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

package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"conduit/integrations/connectors/base"
	"conduit/integrations/shared/logger"
)

// maxInspectBodyChars caps how much of a response body the debugger records.
const maxInspectBodyChars = 500

// DebugLogEntry is one recorded debugger event.
type DebugLogEntry struct {
	Timestamp time.Time   `json:"timestamp"`
	Level     string      `json:"level"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

// TimingMetric records the duration of one labeled span.
type TimingMetric struct {
	Label    string        `json:"label"`
	Duration time.Duration `json:"duration"`
}

// DebugReport bundles everything a debugger collected.
type DebugReport struct {
	Logs    []DebugLogEntry `json:"logs"`
	Metrics []TimingMetric  `json:"metrics"`
}

// Debugger collects an append-only log and timing metrics while a
// connector is exercised. All methods are safe for concurrent use.
type Debugger struct {
	logs       []DebugLogEntry
	metrics    []TimingMetric
	httpClient *http.Client
	mu         sync.Mutex
}

// NewDebugger creates an empty debugger.
func NewDebugger() *Debugger {
	return &Debugger{
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Log appends one entry.
func (d *Debugger) Log(level, message string, data interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logs = append(d.logs, DebugLogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   message,
		Data:      data,
	})
}

// StartTimer starts a labeled span; the returned stop function records the
// elapsed duration into the metrics list.
func (d *Debugger) StartTimer(label string) func() {
	start := time.Now()
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		d.metrics = append(d.metrics, TimingMetric{
			Label:    label,
			Duration: time.Since(start),
		})
	}
}

// Trace runs fn, logging its start and outcome and recording its duration
// under label. The function's result and error pass through unchanged.
func (d *Debugger) Trace(label string, fn func() (interface{}, error)) (interface{}, error) {
	d.Log("debug", "trace started: "+label, nil)
	stop := d.StartTimer(label)

	result, err := fn()
	stop()

	if err != nil {
		d.Log("error", "trace failed: "+label, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	d.Log("debug", "trace succeeded: "+label, nil)
	return result, nil
}

// InspectedResponse is the recorded outcome of InspectRequest.
type InspectedResponse struct {
	StatusCode int           `json:"status_code"`
	Headers    http.Header   `json:"headers"`
	Body       string        `json:"body"`
	Duration   time.Duration `json:"duration"`
}

// InspectRequestOptions configures InspectRequest.
type InspectRequestOptions struct {
	Method  string
	Headers map[string]string
	Body    interface{} // serialized to JSON when non-nil
}

// InspectRequest performs an HTTP request and records both sides of the
// exchange: method, URL and headers going out; status, headers and the
// first 500 characters of the body coming back, with timing.
func (d *Debugger) InspectRequest(ctx context.Context, rawURL string, opts *InspectRequestOptions) (*InspectedResponse, error) {
	if opts == nil {
		opts = &InspectRequestOptions{}
	}
	method := opts.Method
	if method == "" {
		method = http.MethodGet
	}

	var bodyReader io.Reader
	if opts.Body != nil {
		encoded, err := json.Marshal(opts.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}
	if opts.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	d.Log("debug", "request: "+method+" "+base.SanitizeLogString(rawURL), map[string]interface{}{
		"headers": headerNames(req.Header),
	})

	stop := d.StartTimer(method + " " + rawURL)
	resp, err := d.httpClient.Do(req)
	stop()

	if err != nil {
		d.Log("error", "request failed: "+base.SanitizeLogString(err.Error()), nil)
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	body := string(raw)
	if len(body) > maxInspectBodyChars {
		body = body[:maxInspectBodyChars]
	}

	inspected := &InspectedResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
	}

	d.Log("debug", fmt.Sprintf("response: %d", resp.StatusCode), map[string]interface{}{
		"headers": headerNames(resp.Header),
		"body":    base.SanitizeLogString(body),
	})

	return inspected, nil
}

// Logs returns a copy of the recorded log entries.
func (d *Debugger) Logs() []DebugLogEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	logs := make([]DebugLogEntry, len(d.logs))
	copy(logs, d.logs)
	return logs
}

// Metrics returns a copy of the recorded timing metrics.
func (d *Debugger) Metrics() []TimingMetric {
	d.mu.Lock()
	defer d.mu.Unlock()
	metrics := make([]TimingMetric, len(d.metrics))
	copy(metrics, d.metrics)
	return metrics
}

// Report returns the full debug report.
func (d *Debugger) Report() *DebugReport {
	return &DebugReport{Logs: d.Logs(), Metrics: d.Metrics()}
}

// Reset clears all recorded logs and metrics.
func (d *Debugger) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logs = nil
	d.metrics = nil
}

// headerNames lists header keys without their values; values may carry
// credentials and are never recorded.
func headerNames(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	return names
}

// TestStatus is the outcome of one harness check.
type TestStatus string

const (
	TestPending TestStatus = "pending"
	TestPassed  TestStatus = "passed"
	TestFailed  TestStatus = "failed"
)

// TestResult is one recorded harness outcome. Results are immutable once
// recorded.
type TestResult struct {
	Name     string        `json:"name"`
	Status   TestStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// TestReport aggregates a tester run.
type TestReport struct {
	RunID       string       `json:"run_id"`
	Total       int          `json:"total"`
	Passed      int          `json:"passed"`
	Failed      int          `json:"failed"`
	SuccessRate float64      `json:"success_rate"`
	Results     []TestResult `json:"results"`
	Debug       *DebugReport `json:"debug"`
}

// ConnectorTester exercises a connector implementation without touching
// its live endpoints directly. Failures, including panics inside the
// connector, are caught and recorded so a full run always completes.
type ConnectorTester struct {
	connector base.Connector
	debugger  *Debugger
	runID     string
	results   []TestResult
	mu        sync.Mutex
}

// NewConnectorTester creates a tester around the given connector.
func NewConnectorTester(connector base.Connector) *ConnectorTester {
	return &ConnectorTester{
		connector: connector,
		debugger:  NewDebugger(),
		runID:     uuid.NewString(),
	}
}

// Debugger returns the tester's debugger for additional instrumentation.
func (t *ConnectorTester) Debugger() *Debugger {
	return t.debugger
}

// TestConnection runs the connector's TestConnection and records the
// outcome. Errors are captured into the result, never propagated.
func (t *ConnectorTester) TestConnection(creds *base.Credentials) TestResult {
	return t.run("test_connection", func() error {
		return t.connector.TestConnection(creds)
	})
}

// TestOperation runs one named operation and records the outcome. Errors
// are captured into the result, never propagated.
func (t *ConnectorTester) TestOperation(operation string, params map[string]interface{}, creds *base.Credentials) TestResult {
	return t.run("operation:"+operation, func() error {
		_, err := t.connector.Execute(operation, params, creds)
		return err
	})
}

// run executes one check, converting errors and panics into a failed
// result.
func (t *ConnectorTester) run(name string, fn func() error) TestResult {
	result := TestResult{Name: name, Status: TestPending}
	start := time.Now()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()

	result.Duration = time.Since(start)
	if err != nil {
		result.Status = TestFailed
		result.Error = err.Error()
		t.debugger.Log("error", name+" failed", map[string]interface{}{"error": base.SanitizeLogString(err.Error())})
	} else {
		result.Status = TestPassed
		t.debugger.Log("info", name+" passed", nil)
	}

	t.mu.Lock()
	t.results = append(t.results, result)
	t.mu.Unlock()

	return result
}

// Results returns a copy of the recorded results.
func (t *ConnectorTester) Results() []TestResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	results := make([]TestResult, len(t.results))
	copy(results, t.results)
	return results
}

// GenerateReport aggregates the run into totals plus the debug report.
func (t *ConnectorTester) GenerateReport() *TestReport {
	results := t.Results()

	report := &TestReport{
		RunID:   t.runID,
		Total:   len(results),
		Results: results,
		Debug:   t.debugger.Report(),
	}

	for _, r := range results {
		switch r.Status {
		case TestPassed:
			report.Passed++
		case TestFailed:
			report.Failed++
		}
	}

	if report.Total > 0 {
		report.SuccessRate = float64(report.Passed) / float64(report.Total)
	}

	return report
}

// MockRequest is the inbound request handed to a MockHandler.
type MockRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Query   map[string][]string
	Params  map[string]string // path variables, e.g. {id}
	Body    []byte
}

// MockHandler produces the response payload for one stubbed route. A
// non-nil error yields a structured 500.
type MockHandler func(req *MockRequest) (interface{}, error)

// MockRequestLogEntry records one call against the mock server, matched
// or not.
type MockRequestLogEntry struct {
	ID        string    `json:"id"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Body      string    `json:"body"`
	Status    int       `json:"status"`
	Matched   bool      `json:"matched"`
	Timestamp time.Time `json:"timestamp"`
}

// MockServer is a route-based stub server for verifying connectors
// without live endpoints. Routes are keyed by "METHOD:path"; every call is
// appended to the request log; unmatched routes return a structured 404
// and handler failures a structured 500. CORS is open so browser-driven
// dashboards can exercise it directly.
type MockServer struct {
	router     *mux.Router
	handler    http.Handler
	routes     map[string]MockHandler
	requestLog []MockRequestLogEntry
	server     *httptest.Server
	log        *logger.Logger
	mu         sync.Mutex
}

// NewMockServer creates an empty mock server.
func NewMockServer() *MockServer {
	s := &MockServer{
		router: mux.NewRouter(),
		routes: make(map[string]MockHandler),
	}
	s.router.NotFoundHandler = http.HandlerFunc(s.notFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.notFound)
	s.handler = cors.AllowAll().Handler(s.router)
	return s
}

// Route registers a handler for "METHOD path". Paths may use mux
// variables ("/items/{id}").
func (s *MockServer) Route(method, path string, handler MockHandler) *MockServer {
	s.mu.Lock()
	s.routes[method+":"+path] = handler
	s.mu.Unlock()

	s.router.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		s.invoke(w, r, handler)
	}).Methods(method)

	return s
}

// SetLogger emits one structured log line per call the server receives,
// matched or not. Request bodies are not logged.
func (s *MockServer) SetLogger(log *logger.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log = log
}

// Routes returns the registered "METHOD:path" keys, sorted.
func (s *MockServer) Routes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys := make([]string, 0, len(s.routes))
	for key := range s.routes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// ServeHTTP implements http.Handler, logging every call.
func (s *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	r.Body = io.NopCloser(bytes.NewReader(body))

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.handler.ServeHTTP(rec, r)

	entry := MockRequestLogEntry{
		ID:        uuid.NewString(),
		Method:    r.Method,
		Path:      r.URL.Path,
		Body:      base.SanitizeLogString(string(body)),
		Status:    rec.status,
		Matched:   rec.status != http.StatusNotFound,
		Timestamp: time.Now(),
	}

	s.mu.Lock()
	s.requestLog = append(s.requestLog, entry)
	log := s.log
	s.mu.Unlock()

	if log != nil {
		log.Info("", entry.ID, base.SanitizeLogString(entry.Method+" "+entry.Path), map[string]interface{}{
			"status":  entry.Status,
			"matched": entry.Matched,
		})
	}
}

// invoke runs one matched handler, converting panics and errors into a
// structured 500.
func (s *MockServer) invoke(w http.ResponseWriter, r *http.Request, handler MockHandler) {
	defer func() {
		if rec := recover(); rec != nil {
			writeMockError(w, http.StatusInternalServerError, fmt.Sprintf("handler panic: %v", rec), "handler_error")
		}
	}()

	body, _ := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	req := &MockRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Headers: r.Header,
		Query:   r.URL.Query(),
		Params:  mux.Vars(r),
		Body:    body,
	}

	result, err := handler(req)
	if err != nil {
		writeMockError(w, http.StatusInternalServerError, err.Error(), "handler_error")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(result)
}

// notFound answers unmatched routes with a structured 404 listing the
// registered routes.
func (s *MockServer) notFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"message":    fmt.Sprintf("no route for %s %s", r.Method, r.URL.Path),
			"type":       "not_found",
			"registered": s.Routes(),
		},
	})
}

// Start serves the mock over a local listener and returns its base URL.
func (s *MockServer) Start() string {
	s.server = httptest.NewServer(s)
	return s.server.URL
}

// Close shuts the server down if it was started.
func (s *MockServer) Close() {
	if s.server != nil {
		s.server.Close()
	}
}

// Requests returns a copy of the request log.
func (s *MockServer) Requests() []MockRequestLogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := make([]MockRequestLogEntry, len(s.requestLog))
	copy(log, s.requestLog)
	return log
}

// ResetLog clears the request log.
func (s *MockServer) ResetLog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestLog = nil
}

// writeMockError writes a structured JSON error response.
func writeMockError(w http.ResponseWriter, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{
			"message": message,
			"type":    errType,
		},
	})
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
