package telemetry

import (
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthCheck represents a health check result
type HealthCheck struct {
	Name        string            `json:"name"`
	Status      HealthStatus      `json:"status"`
	Message     string            `json:"message"`
	LastChecked time.Time         `json:"last_checked"`
	Duration    time.Duration     `json:"duration"`
	Details     map[string]string `json:"details,omitempty"`
}

// Health runs a set of named checks.
type Health struct {
	mu     sync.RWMutex
	checks map[string]func() HealthCheck
}

// NewHealth returns a Health preloaded with DefaultHealthChecks.
func NewHealth() *Health {
	h := &Health{checks: map[string]func() HealthCheck{}}
	for name, fn := range DefaultHealthChecks() {
		h.Register(name, fn)
	}
	return h
}

// Register adds or replaces a check.
func (h *Health) Register(name string, checkFn func() HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks[name] = checkFn
}

// Run executes every check in name order and returns the worst status.
func (h *Health) Run() (HealthStatus, []HealthCheck) {
	h.mu.RLock()
	names := make([]string, 0, len(h.checks))
	for n := range h.checks {
		names = append(names, n)
	}
	fns := make(map[string]func() HealthCheck, len(h.checks))
	for n, fn := range h.checks {
		fns[n] = fn
	}
	h.mu.RUnlock()
	sort.Strings(names)

	overall := HealthStatusHealthy
	checks := make([]HealthCheck, 0, len(names))
	for _, n := range names {
		start := time.Now()
		check := fns[n]()
		if check.Name == "" {
			check.Name = n
		}
		check.Duration = time.Since(start)
		check.LastChecked = time.Now()
		checks = append(checks, check)

		switch check.Status {
		case HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if overall == HealthStatusHealthy {
				overall = HealthStatusDegraded
			}
		}
	}
	return overall, checks
}

// DefaultHealthChecks returns a set of default health checks
func DefaultHealthChecks() map[string]func() HealthCheck {
	return map[string]func() HealthCheck{
		"memory": func() HealthCheck {
			var m runtime.MemStats
			runtime.ReadMemStats(&m)

			heapMB := float64(m.HeapAlloc) / (1024 * 1024)
			status := HealthStatusHealthy
			message := fmt.Sprintf("Heap memory: %.2f MB", heapMB)

			if heapMB > 1000 {
				status = HealthStatusDegraded
				message = fmt.Sprintf("High memory usage: %.2f MB", heapMB)
			}
			if heapMB > 2000 {
				status = HealthStatusUnhealthy
				message = fmt.Sprintf("Critical memory usage: %.2f MB", heapMB)
			}

			return HealthCheck{
				Name:    "memory",
				Status:  status,
				Message: message,
				Details: map[string]string{"heap_mb": fmt.Sprintf("%.2f", heapMB)},
			}
		},
		"goroutines": func() HealthCheck {
			count := runtime.NumGoroutine()
			status := HealthStatusHealthy
			if count > 5000 {
				status = HealthStatusDegraded
			}
			return HealthCheck{
				Name:    "goroutines",
				Status:  status,
				Message: fmt.Sprintf("Goroutines: %d", count),
			}
		},
	}
}
