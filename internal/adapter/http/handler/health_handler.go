package handler

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const defaultProbeTimeout = 5 * time.Second

// Check probes one dependency.
type Check func(ctx context.Context) error

type HealthHandler struct {
	checks  map[string]Check
	timeout time.Duration
}

// NewHealthHandler wires readiness probes keyed by dependency name
// (postgres, redis). The memory store registers none.
func NewHealthHandler(checks map[string]Check) *HealthHandler {
	return &HealthHandler{checks: checks, timeout: defaultProbeTimeout}
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Readiness runs every probe in parallel and reports each dependency as
// "ok" or its error. Any failure turns the response into a 503.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		failed bool
	)
	report := make(map[string]string, len(h.checks)+1)
	for name, check := range h.checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result := "ok"
			if err := check(ctx); err != nil {
				result = err.Error()
			}
			mu.Lock()
			defer mu.Unlock()
			report[name] = result
			failed = failed || result != "ok"
		}()
	}
	wg.Wait()

	if failed {
		report["status"] = "unavailable"
		writeJSON(w, http.StatusServiceUnavailable, report)
		return
	}
	report["status"] = "ready"
	writeJSON(w, http.StatusOK, report)
}
