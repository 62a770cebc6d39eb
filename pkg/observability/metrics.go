package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics records application metrics.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T creates a Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// Metric names.
const (
	MetricWebhookEvents  = "mylife.webhook.events"
	MetricWebhookLatency = "mylife.webhook.duration"
	MetricAccessJobs     = "mylife.access.jobs"
	MetricAccessSweeps   = "mylife.access.sweeps"
	MetricRevocations    = "mylife.entitlements.revocations"
)

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// InMemoryMetrics keeps counters and last timings in memory. The worker
// exposes a snapshot on its health endpoint.
type InMemoryMetrics struct {
	mu       sync.RWMutex
	counters map[string]int64
	timings  map[string]time.Duration
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters: make(map[string]int64),
		timings:  make(map[string]time.Duration),
	}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[formatKey(name, tags)] += value
}

func (m *InMemoryMetrics) Timing(name string, d time.Duration, tags ...Tag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timings[formatKey(name, tags)] = d
}

// GetCounter returns the counter for name and tags.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.counters[formatKey(name, tags)]
}

// Snapshot copies all counters.
func (m *InMemoryMetrics) Snapshot() map[string]int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out
}

// formatKey renders name{k=v,...} with tags sorted so order does not matter.
func formatKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = t.Key + "=" + t.Value
	}
	sort.Strings(parts)
	return name + "{" + strings.Join(parts, ",") + "}"
}
