package telemetry

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MetricType represents the type of metric
type MetricType string

const (
	Counter MetricType = "counter"
	Gauge   MetricType = "gauge"
	Timer   MetricType = "timer"
)

// Metric is one aggregated series. Timers accumulate milliseconds in Value
// and observations in Count.
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Count     int64             `json:"count,omitempty"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Unit      string            `json:"unit,omitempty"`
}

// Collector aggregates metrics in memory.
type Collector struct {
	mu      sync.RWMutex
	series  map[string]*Metric
	enabled bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewCollector creates a collector. A positive flushEvery logs a snapshot on
// that interval until Shutdown.
func NewCollector(enabled bool, flushEvery time.Duration) *Collector {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Collector{
		series:  map[string]*Metric{},
		enabled: enabled,
		ctx:     ctx,
		cancel:  cancel,
	}
	if enabled && flushEvery > 0 {
		go c.periodicFlush(flushEvery)
	}
	return c
}

// Enabled reports whether the collector records anything.
func (c *Collector) Enabled() bool { return c.enabled }

// Counter increments a counter metric
func (c *Collector) Counter(name string, value float64, labels map[string]string) {
	c.record(name, Counter, "", labels, func(m *Metric) {
		m.Value += value
		m.Count++
	})
}

// Gauge sets a gauge metric value
func (c *Collector) Gauge(name string, value float64, labels map[string]string) {
	c.record(name, Gauge, "", labels, func(m *Metric) {
		m.Value = value
		m.Count = 1
	})
}

// Timer records a duration measurement
func (c *Collector) Timer(name string, duration time.Duration, labels map[string]string) {
	c.record(name, Timer, "ms", labels, func(m *Metric) {
		m.Value += float64(duration.Milliseconds())
		m.Count++
	})
}

func (c *Collector) record(name string, typ MetricType, unit string, labels map[string]string, apply func(*Metric)) {
	if !c.enabled {
		return
	}
	key := seriesKey(name, labels)

	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.series[key]
	if !ok {
		m = &Metric{Name: name, Type: typ, Unit: unit, Labels: copyLabels(labels)}
		c.series[key] = m
	}
	apply(m)
	m.Timestamp = time.Now()
}

// GetMetrics returns a snapshot sorted by name and labels.
func (c *Collector) GetMetrics() []Metric {
	c.mu.RLock()
	keys := make([]string, 0, len(c.series))
	for k := range c.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]Metric, 0, len(keys))
	for _, k := range keys {
		m := *c.series[k]
		m.Labels = copyLabels(m.Labels)
		result = append(result, m)
	}
	c.mu.RUnlock()
	return result
}

// WriteText writes the snapshot in Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	typed := map[string]bool{}
	for _, m := range c.GetMetrics() {
		name := m.Name
		promType := "gauge"
		if m.Type == Counter {
			promType = "counter"
		}
		if m.Type == Timer {
			name += "_ms_sum"
			promType = "counter"
		}
		if !typed[name] {
			if _, err := fmt.Fprintf(w, "# TYPE %s %s\n", name, promType); err != nil {
				return err
			}
			typed[name] = true
		}
		if _, err := fmt.Fprintf(w, "%s%s %g\n", name, labelString(m.Labels), m.Value); err != nil {
			return err
		}
		if m.Type == Timer {
			if _, err := fmt.Fprintf(w, "%s_ms_count%s %d\n", m.Name, labelString(m.Labels), m.Count); err != nil {
				return err
			}
		}
	}
	return nil
}

// FlushMetrics logs the current snapshot.
func (c *Collector) FlushMetrics() {
	metrics := c.GetMetrics()
	if len(metrics) == 0 {
		return
	}
	log.Debug().Int("count", len(metrics)).Msg("Flushing telemetry metrics")
	for _, metric := range metrics {
		log.Info().
			Str("name", metric.Name).
			Str("type", string(metric.Type)).
			Float64("value", metric.Value).
			Int64("count", metric.Count).
			Interface("labels", metric.Labels).
			Msg("telemetry_metric")
	}
}

func (c *Collector) periodicFlush(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.FlushMetrics()
		}
	}
}

// Shutdown stops the collector
func (c *Collector) Shutdown() {
	if c.cancel != nil {
		c.cancel()
	}
	if c.enabled {
		c.FlushMetrics()
	}
}

func seriesKey(name string, labels map[string]string) string {
	return name + labelString(labels)
}

func labelString(labels map[string]string) string {
	if len(labels) == 0 {
		return ""
	}
	pairs := make([]string, 0, len(labels))
	for k, v := range labels {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, v))
	}
	sort.Strings(pairs)
	return "{" + strings.Join(pairs, ",") + "}"
}

func copyLabels(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Global collector instance
var (
	globalMu        sync.Mutex
	globalCollector *Collector
)

// InitGlobal initializes the global telemetry collector
func InitGlobal(enabled bool, flushEvery time.Duration) *Collector {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCollector != nil {
		globalCollector.Shutdown()
	}
	globalCollector = NewCollector(enabled, flushEvery)
	return globalCollector
}

// GetGlobal returns the global collector
func GetGlobal() *Collector {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCollector == nil {
		globalCollector = NewCollector(false, 0)
	}
	return globalCollector
}

// CounterGlobal increments a counter using the global collector
func CounterGlobal(name string, value float64, labels map[string]string) {
	GetGlobal().Counter(name, value, labels)
}

// GaugeGlobal sets a gauge using the global collector
func GaugeGlobal(name string, value float64, labels map[string]string) {
	GetGlobal().Gauge(name, value, labels)
}

// TimerGlobal records a timer using the global collector
func TimerGlobal(name string, duration time.Duration, labels map[string]string) {
	GetGlobal().Timer(name, duration, labels)
}

// Shutdown shuts down the global collector
func Shutdown() {
	globalMu.Lock()
	defer globalMu.Unlock()
	if globalCollector != nil {
		globalCollector.Shutdown()
	}
}
