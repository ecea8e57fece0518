package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
)

// HealthCheck represents a single health check result
type HealthCheck struct {
	Name        string       `json:"name"`
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
}

// HealthReport represents the overall health report
type HealthReport struct {
	Status    HealthStatus  `json:"status"`
	Timestamp time.Time     `json:"timestamp"`
	Service   string        `json:"service"`
	Checks    []HealthCheck `json:"checks"`
}

// CheckFunc probes one dependency. A degraded result (e.g. ledger
// mirroring unavailable) does not make the service unhealthy: the
// primary path keeps working without notarization.
type CheckFunc func(ctx context.Context) HealthCheck

// HealthManager manages health checks
type HealthManager struct {
	serviceName string
	mu          sync.RWMutex
	checkers    map[string]CheckFunc
	timeout     time.Duration
}

// NewHealthManager creates a new health manager
func NewHealthManager(serviceName string) *HealthManager {
	return &HealthManager{
		serviceName: serviceName,
		checkers:    make(map[string]CheckFunc),
		timeout:     5 * time.Second,
	}
}

// RegisterChecker registers a health checker under a component name
func (hm *HealthManager) RegisterChecker(name string, checker CheckFunc) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	hm.checkers[name] = checker
}

// Report runs all checks and aggregates them
func (hm *HealthManager) Report(ctx context.Context) HealthReport {
	ctx, cancel := context.WithTimeout(ctx, hm.timeout)
	defer cancel()

	hm.mu.RLock()
	checkers := make(map[string]CheckFunc, len(hm.checkers))
	for name, c := range hm.checkers {
		checkers[name] = c
	}
	hm.mu.RUnlock()

	report := HealthReport{
		Status:    HealthStatusHealthy,
		Timestamp: time.Now().UTC(),
		Service:   hm.serviceName,
	}

	for name, check := range checkers {
		result := check(ctx)
		result.Name = name
		result.LastChecked = time.Now().UTC()
		report.Checks = append(report.Checks, result)

		switch result.Status {
		case HealthStatusUnhealthy:
			report.Status = HealthStatusUnhealthy
		case HealthStatusDegraded:
			if report.Status == HealthStatusHealthy {
				report.Status = HealthStatusDegraded
			}
		}
	}

	return report
}

// Handler serves the health report over HTTP
func (hm *HealthManager) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := hm.Report(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if report.Status == HealthStatusUnhealthy {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(report)
	})
}
