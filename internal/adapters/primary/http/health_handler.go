package http

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/lorrc/restaurant-relay/internal/core/domain"
	"github.com/lorrc/restaurant-relay/internal/core/ports"
	"github.com/lorrc/restaurant-relay/internal/core/services"
)

// StatsProvider reports live relay counts.
type StatsProvider interface {
	Stats() services.Stats
}

// Dependency is a collaborator checked for readiness. A failing optional dependency
// degrades the service without taking it out of rotation.
type Dependency struct {
	Name     string
	Checker  ports.HealthChecker
	Optional bool
}

// HealthHandler handles health check requests
type HealthHandler struct {
	deps      []Dependency
	stats     StatsProvider
	startTime time.Time
	version   string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(stats StatsProvider, version string, deps ...Dependency) *HealthHandler {
	return &HealthHandler{
		deps:      deps,
		stats:     stats,
		startTime: time.Now(),
		version:   version,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string           `json:"status"`
	Timestamp string           `json:"timestamp"`
	Version   string           `json:"version,omitempty"`
	Uptime    string           `json:"uptime,omitempty"`
	Checks    map[string]Check `json:"checks,omitempty"`
}

// Check represents an individual health check result
type Check struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// RelayStats is the relay section of the detailed health report.
type RelayStats struct {
	Connections map[domain.Domain]int `json:"connections"`
	Rooms       int                   `json:"rooms"`
}

// HandleLiveness handles liveness requests (is the service running?)
func (h *HealthHandler) HandleLiveness(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles readiness requests (can the service accept traffic?)
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, checks := h.runChecks(ctx)

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}

	WriteJSON(w, statusCode, HealthResponse{
		Status:    status,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Version:   h.version,
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Checks:    checks,
	})
}

// HandleHealth handles detailed health check requests (for monitoring/debugging)
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, checks := h.runChecks(ctx)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	response := struct {
		HealthResponse
		Relay  RelayStats `json:"relay"`
		Memory struct {
			Alloc      uint64 `json:"alloc_bytes"`
			TotalAlloc uint64 `json:"total_alloc_bytes"`
			Sys        uint64 `json:"sys_bytes"`
			NumGC      uint32 `json:"num_gc"`
		} `json:"memory"`
		Goroutines int `json:"goroutines"`
	}{
		HealthResponse: HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
			Uptime:    time.Since(h.startTime).Round(time.Second).String(),
			Checks:    checks,
		},
		Goroutines: runtime.NumGoroutine(),
	}
	if h.stats != nil {
		stats := h.stats.Stats()
		response.Relay = RelayStats{Connections: stats.Connections, Rooms: stats.Rooms}
	}
	response.Memory.Alloc = memStats.Alloc
	response.Memory.TotalAlloc = memStats.TotalAlloc
	response.Memory.Sys = memStats.Sys
	response.Memory.NumGC = memStats.NumGC

	statusCode := http.StatusOK
	if status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	WriteJSON(w, statusCode, response)
}

// runChecks checks every dependency. Any failing required dependency makes
// the service unhealthy; failing optional ones only degrade it.
func (h *HealthHandler) runChecks(ctx context.Context) (string, map[string]Check) {
	checks := make(map[string]Check, len(h.deps))
	status := "healthy"

	for _, dep := range h.deps {
		check := checkDependency(ctx, dep.Checker)
		checks[dep.Name] = check
		if check.Status == "healthy" {
			continue
		}
		if dep.Optional {
			if status == "healthy" {
				status = "degraded"
			}
		} else {
			status = "unhealthy"
		}
	}

	return status, checks
}

func checkDependency(ctx context.Context, checker ports.HealthChecker) Check {
	if checker == nil {
		return Check{Status: "unhealthy", Message: "not configured"}
	}

	start := time.Now()
	err := checker.Ping(ctx)
	latency := time.Since(start)

	if err != nil {
		return Check{
			Status:  "unhealthy",
			Message: err.Error(),
			Latency: latency.String(),
		}
	}
	return Check{Status: "healthy", Latency: latency.String()}
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.HandleHealth)
	r.Get("/health/live", h.HandleLiveness)
	r.Get("/health/ready", h.HandleReadiness)
}
