package handlers

import (
	"net/http"
)

// HealthCheck reports every dependency. It answers 200 even when degraded so the
// body can be inspected.
func (a *App) HealthCheck(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.Health.Check(r.Context()))
}

func (a *App) Readiness(w http.ResponseWriter, r *http.Request) {
	if a.Ready != nil {
		if err := a.Ready(r.Context()); err != nil {
			a.json(w, http.StatusServiceUnavailable, map[string]any{
				"status":    "not_ready",
				"error":     err.Error(),
				"timestamp": a.now(),
			})
			return
		}
	}
	a.json(w, http.StatusOK, map[string]any{"status": "ready", "timestamp": a.now()})
}

func (a *App) Liveness(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{"status": "alive", "timestamp": a.now()})
}
