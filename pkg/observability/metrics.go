package observability

import (
	"sync"
	"time"
)

// inMemoryMetricsClient accumulates metrics in process memory. It is the
// default client when no external metrics backend is configured; the
// snapshot is exposed for tests and debug endpoints.
type inMemoryMetricsClient struct {
	mu         sync.Mutex
	counters   map[string]float64
	gauges     map[string]float64
	histograms map[string][]float64
}

// NewMetricsClient creates the default metrics client
func NewMetricsClient() MetricsClient {
	return &inMemoryMetricsClient{
		counters:   make(map[string]float64),
		gauges:     make(map[string]float64),
		histograms: make(map[string][]float64),
	}
}

func (m *inMemoryMetricsClient) IncrementCounter(name string, value float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[name] += value
}

func (m *inMemoryMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {
	m.IncrementCounter(name+labelSuffix(labels), value)
}

func (m *inMemoryMetricsClient) RecordGauge(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gauges[name+labelSuffix(labels)] = value
}

func (m *inMemoryMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := name + labelSuffix(labels)
	m.histograms[key] = append(m.histograms[key], value)
}

func (m *inMemoryMetricsClient) RecordLatency(operation string, duration time.Duration) {
	m.RecordHistogram(operation+".latency", duration.Seconds(), nil)
}

func (m *inMemoryMetricsClient) Close() error {
	return nil
}

// CounterValue returns the current value of a counter, for tests
func (m *inMemoryMetricsClient) CounterValue(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

func labelSuffix(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}

	suffix := ""
	for k, v := range labels {
		suffix += "," + k + "=" + v
	}
	return suffix
}

// NoopMetricsClient discards all metrics
type NoopMetricsClient struct{}

func NewNoopMetricsClient() MetricsClient {
	return &NoopMetricsClient{}
}

func (m *NoopMetricsClient) IncrementCounter(name string, value float64) {}
func (m *NoopMetricsClient) RecordCounter(name string, value float64, labels map[string]string) {}
func (m *NoopMetricsClient) RecordGauge(name string, value float64, labels map[string]string)   {}
func (m *NoopMetricsClient) RecordHistogram(name string, value float64, labels map[string]string) {
}
func (m *NoopMetricsClient) RecordLatency(operation string, duration time.Duration) {}
func (m *NoopMetricsClient) Close() error                                           { return nil }
