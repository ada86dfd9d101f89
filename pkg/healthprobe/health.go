package healthprobe

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
)

// HealthChecker provides health and readiness checks. Readiness reflects
// both startup completion and poll loop liveness: once the engine is
// running, a tick must have been observed within staleAfter.
type HealthChecker struct {
	startTime  time.Time
	staleAfter time.Duration
	ready      atomic.Bool

	mu       sync.Mutex
	lastTick time.Time
}

// New creates a new HealthChecker. staleAfter bounds how old the last
// observed engine tick may be before readiness is withdrawn; zero
// disables staleness checking.
func New(staleAfter time.Duration) *HealthChecker {
	return &HealthChecker{
		startTime:  time.Now(),
		staleAfter: staleAfter,
	}
}

// SetReady marks the application as ready to serve traffic.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// ObserveTick records that the engine completed a poll cycle.
func (h *HealthChecker) ObserveTick(at time.Time) {
	h.mu.Lock()
	h.lastTick = at
	h.mu.Unlock()
}

func (h *HealthChecker) tickStale() bool {
	if h.staleAfter <= 0 {
		return false
	}

	h.mu.Lock()
	last := h.lastTick
	h.mu.Unlock()

	if last.IsZero() {
		return false
	}
	return time.Since(last) > h.staleAfter
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	LastTick string `json:"last_tick,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Health returns an HTTP handler for liveness checks.
// Always returns 200 OK if the application is running.
func (h *HealthChecker) Health() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "healthy",
			Uptime: time.Since(h.startTime).String(),
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Ready returns an HTTP handler for readiness checks.
// Returns 200 OK if ready, 503 Service Unavailable if not ready or if
// the poll loop has gone stale.
func (h *HealthChecker) Ready() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if !h.ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(HealthResponse{
				Status:  "not_ready",
				Message: "application is starting",
			})
			return
		}

		if h.tickStale() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(HealthResponse{
				Status:  "stale",
				Message: "poll loop has not completed a cycle recently",
			})
			return
		}

		h.mu.Lock()
		last := h.lastTick
		h.mu.Unlock()

		resp := HealthResponse{
			Status: "ready",
			Uptime: time.Since(h.startTime).String(),
		}
		if !last.IsZero() {
			resp.LastTick = last.UTC().Format(time.RFC3339)
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
