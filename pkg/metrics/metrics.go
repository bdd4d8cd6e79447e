// Package metrics provides performance tracking for Ferry using Prometheus
// metrics. It offers a per-component Collector for throughput, latency and
// queue depth, plus a small ad-hoc metric store that connectors expose over
// their Metrics() map.
//
// Example usage:
//
//	collector := metrics.NewCollector("file-source")
//	timer := collector.Timer("read_batch")
//	readBatch()
//	timer.Stop()
//	collector.AddRecords("success", 1000)
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	recordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ferry_records_total",
			Help: "Total number of records processed, by component and outcome.",
		},
		[]string{"component", "outcome"},
	)

	operationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ferry_operation_duration_seconds",
			Help:    "Latency distribution of component operations.",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 18),
		},
		[]string{"component", "operation"},
	)

	throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ferry_throughput_records_per_second",
			Help: "Current records-per-second throughput by component.",
		},
		[]string{"component"},
	)

	queueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ferry_queue_depth",
			Help: "Depth of internal channels and batch queues.",
		},
		[]string{"component"},
	)
)

// Collector provides a metrics collection interface for a single component.
// It records to the shared Prometheus vectors under the component label and
// mirrors values into an internal map that connectors return from Metrics().
type Collector struct {
	name      string
	startTime time.Time

	mu     sync.RWMutex
	values map[string]interface{}
}

// NewCollector creates a new metrics collector for a component.
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
		values:    make(map[string]interface{}),
	}
}

// StartTime returns when the collector was created.
func (c *Collector) StartTime() time.Time {
	return c.startTime
}

// AddRecords increments the record counter for the given outcome
// ("success" or "failure") and mirrors the running total.
func (c *Collector) AddRecords(outcome string, n int) {
	recordsTotal.WithLabelValues(c.name, outcome).Add(float64(n))

	c.mu.Lock()
	key := "records_" + outcome
	if prev, ok := c.values[key].(int64); ok {
		c.values[key] = prev + int64(n)
	} else {
		c.values[key] = int64(n)
	}
	c.mu.Unlock()
}

// SetThroughput records the current records-per-second throughput.
func (c *Collector) SetThroughput(rps float64) {
	throughput.WithLabelValues(c.name).Set(rps)
	c.Record("throughput_rps", rps)
}

// SetQueueDepth records the current queue depth.
func (c *Collector) SetQueueDepth(depth int) {
	queueDepth.WithLabelValues(c.name).Set(float64(depth))
	c.Record("queue_depth", depth)
}

// Record stores an ad-hoc metric value in the collector's map.
func (c *Collector) Record(name string, value interface{}) {
	c.mu.Lock()
	c.values[name] = value
	c.mu.Unlock()
}

// Increment adds one to a stored counter value.
func (c *Collector) Increment(name string) {
	c.mu.Lock()
	if prev, ok := c.values[name].(int64); ok {
		c.values[name] = prev + 1
	} else {
		c.values[name] = int64(1)
	}
	c.mu.Unlock()
}

// GetAll returns a copy of all stored metric values.
func (c *Collector) GetAll() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Timer tracks the duration of a single operation.
type Timer struct {
	collector *Collector
	operation string
	start     time.Time
}

// Timer starts a new timer for the given operation.
func (c *Collector) Timer(operation string) *Timer {
	return &Timer{
		collector: c,
		operation: operation,
		start:     time.Now(),
	}
}

// Stop records the elapsed time in the latency histogram and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	operationLatency.WithLabelValues(t.collector.name, t.operation).Observe(elapsed.Seconds())
	return elapsed
}

// ThroughputTracker measures records per second over an interval.
type ThroughputTracker struct {
	collector *Collector
	mu        sync.Mutex
	count     int64
	since     time.Time
}

// NewThroughputTracker creates a throughput tracker bound to a collector.
func (c *Collector) NewThroughputTracker() *ThroughputTracker {
	return &ThroughputTracker{
		collector: c,
		since:     time.Now(),
	}
}

// Increment adds processed records to the tracker.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	t.count += n
	t.mu.Unlock()
}

// GetAndReset returns the records-per-second rate since the last reset and
// publishes it to the throughput gauge.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	elapsed := time.Since(t.since).Seconds()
	count := t.count
	t.count = 0
	t.since = time.Now()
	t.mu.Unlock()

	if elapsed <= 0 {
		return 0
	}
	rps := float64(count) / elapsed
	t.collector.SetThroughput(rps)
	return rps
}
