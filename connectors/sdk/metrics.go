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
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks outbound request metrics for one client or
// connector instance. All recording paths are lock-free.
type RequestMetrics struct {
	connectorName string

	requestsTotal int64
	errorsTotal   int64
	retriesTotal  int64

	durationTotal int64 // nanoseconds
	requestCount  int64

	latencies *LatencyHistogram
}

// NewRequestMetrics creates a metrics collector for the named connector.
func NewRequestMetrics(connectorName string) *RequestMetrics {
	return &RequestMetrics{
		connectorName: connectorName,
		latencies:     NewLatencyHistogram(),
	}
}

// RecordRequest records one completed request.
func (m *RequestMetrics) RecordRequest(duration time.Duration, err error) {
	atomic.AddInt64(&m.requestsTotal, 1)
	atomic.AddInt64(&m.durationTotal, int64(duration))
	atomic.AddInt64(&m.requestCount, 1)

	if err != nil {
		atomic.AddInt64(&m.errorsTotal, 1)
	}

	m.latencies.Record(duration)
}

// RecordRetry records one retry attempt.
func (m *RequestMetrics) RecordRetry() {
	atomic.AddInt64(&m.retriesTotal, 1)
}

// GetStats returns a point-in-time snapshot.
func (m *RequestMetrics) GetStats() *MetricsSnapshot {
	count := atomic.LoadInt64(&m.requestCount)

	var avgLatency time.Duration
	if count > 0 {
		avgLatency = time.Duration(atomic.LoadInt64(&m.durationTotal) / count)
	}

	return &MetricsSnapshot{
		ConnectorName: m.connectorName,
		RequestsTotal: atomic.LoadInt64(&m.requestsTotal),
		ErrorsTotal:   atomic.LoadInt64(&m.errorsTotal),
		RetriesTotal:  atomic.LoadInt64(&m.retriesTotal),
		AvgLatency:    avgLatency,
		LatencyP50:    m.latencies.Percentile(0.5),
		LatencyP95:    m.latencies.Percentile(0.95),
		LatencyP99:    m.latencies.Percentile(0.99),
	}
}

// Reset resets all metrics
func (m *RequestMetrics) Reset() {
	atomic.StoreInt64(&m.requestsTotal, 0)
	atomic.StoreInt64(&m.errorsTotal, 0)
	atomic.StoreInt64(&m.retriesTotal, 0)
	atomic.StoreInt64(&m.durationTotal, 0)
	atomic.StoreInt64(&m.requestCount, 0)
	m.latencies.Reset()
}

// MetricsSnapshot represents a point-in-time snapshot of metrics
type MetricsSnapshot struct {
	ConnectorName string        `json:"connector_name"`
	RequestsTotal int64         `json:"requests_total"`
	ErrorsTotal   int64         `json:"errors_total"`
	RetriesTotal  int64         `json:"retries_total"`
	AvgLatency    time.Duration `json:"avg_latency"`
	LatencyP50    time.Duration `json:"latency_p50"`
	LatencyP95    time.Duration `json:"latency_p95"`
	LatencyP99    time.Duration `json:"latency_p99"`
}

// LatencyHistogram provides simple percentile calculations
type LatencyHistogram struct {
	samples []time.Duration
	maxSize int
	mu      sync.Mutex
}

// NewLatencyHistogram creates a new latency histogram
func NewLatencyHistogram() *LatencyHistogram {
	return &LatencyHistogram{
		samples: make([]time.Duration, 0, 1000),
		maxSize: 10000,
	}
}

// Record adds a latency sample
func (h *LatencyHistogram) Record(d time.Duration) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) >= h.maxSize {
		// Remove oldest samples
		h.samples = h.samples[len(h.samples)/2:]
	}
	h.samples = append(h.samples, d)
}

// Percentile calculates the given percentile
func (h *LatencyHistogram) Percentile(p float64) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(h.samples))
	copy(sorted, h.samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}

// Reset clears all samples
func (h *LatencyHistogram) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = h.samples[:0]
}

// Count returns the number of samples
func (h *LatencyHistogram) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

// MetricsCollector exposes a set of RequestMetrics as a
// prometheus.Collector. Register it with a prometheus.Registry to serve
// connector metrics from an existing /metrics endpoint.
type MetricsCollector struct {
	namespace string
	metrics   map[string]*RequestMetrics
	mu        sync.RWMutex

	requestsDesc *prometheus.Desc
	errorsDesc   *prometheus.Desc
	retriesDesc  *prometheus.Desc
	latencyDesc  *prometheus.Desc
}

// NewMetricsCollector creates a collector under the given namespace.
func NewMetricsCollector(namespace string) *MetricsCollector {
	labels := []string{"connector"}
	return &MetricsCollector{
		namespace: namespace,
		metrics:   make(map[string]*RequestMetrics),
		requestsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "connector", "requests_total"),
			"Total number of outbound requests", labels, nil),
		errorsDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "connector", "errors_total"),
			"Total number of failed requests", labels, nil),
		retriesDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "connector", "retries_total"),
			"Total number of retry attempts", labels, nil),
		latencyDesc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "connector", "request_latency_seconds"),
			"Request latency distribution", labels, nil),
	}
}

// Register adds a connector's metrics to the collector.
func (c *MetricsCollector) Register(name string, metrics *RequestMetrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics[name] = metrics
}

// Unregister removes a connector's metrics from the collector.
func (c *MetricsCollector) Unregister(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.metrics, name)
}

// Describe implements prometheus.Collector.
func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.requestsDesc
	ch <- c.errorsDesc
	ch <- c.retriesDesc
	ch <- c.latencyDesc
}

// Collect implements prometheus.Collector.
func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for name, m := range c.metrics {
		stats := m.GetStats()

		ch <- prometheus.MustNewConstMetric(c.requestsDesc, prometheus.CounterValue, float64(stats.RequestsTotal), name)
		ch <- prometheus.MustNewConstMetric(c.errorsDesc, prometheus.CounterValue, float64(stats.ErrorsTotal), name)
		ch <- prometheus.MustNewConstMetric(c.retriesDesc, prometheus.CounterValue, float64(stats.RetriesTotal), name)

		quantiles := map[float64]float64{
			0.5:  stats.LatencyP50.Seconds(),
			0.95: stats.LatencyP95.Seconds(),
			0.99: stats.LatencyP99.Seconds(),
		}
		sum := stats.AvgLatency.Seconds() * float64(stats.RequestsTotal)
		ch <- prometheus.MustNewConstSummary(c.latencyDesc, uint64(stats.RequestsTotal), sum, quantiles, name)
	}
}

// OperationTimer provides convenient timing for operations
type OperationTimer struct {
	start time.Time
}

// NewTimer starts a new timer
func NewTimer() *OperationTimer {
	return &OperationTimer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was started
func (t *OperationTimer) Duration() time.Duration {
	return time.Since(t.start)
}

// RecordTo records the duration to the given callback
func (t *OperationTimer) RecordTo(record func(time.Duration, error), err error) {
	record(t.Duration(), err)
}
