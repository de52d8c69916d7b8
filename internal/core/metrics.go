package core

import (
	"sync"
	"time"
)

// Metrics tracks calculator requests, failures and engine time.
type Metrics struct {
	requests  int64
	errors    int64
	cacheHits int64
	duration  time.Duration
	mu        sync.RWMutex
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records a completed engine evaluation
func (m *Metrics) RecordRequest(duration time.Duration) {
	m.mu.Lock()
	m.requests++
	m.duration += duration
	m.mu.Unlock()
}

func (m *Metrics) RecordError() {
	m.mu.Lock()
	m.errors++
	m.mu.Unlock()
}

func (m *Metrics) RecordCacheHit() {
	m.mu.Lock()
	m.cacheHits++
	m.mu.Unlock()
}

// Stats is a snapshot of Metrics.
type Stats struct {
	Requests  int64         `json:"requests"`
	Errors    int64         `json:"errors"`
	CacheHits int64         `json:"cache_hits"`
	Duration  time.Duration `json:"duration_ns"`
}

// GetStats returns current metrics
func (m *Metrics) GetStats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{Requests: m.requests, Errors: m.errors, CacheHits: m.cacheHits, Duration: m.duration}
}
