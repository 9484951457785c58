package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"genesis/internal/domain"
	"genesis/internal/health"
	"genesis/internal/infra"
	"genesis/internal/worker"
)

// Projects is the job API the handlers drive.
type Projects interface {
	Submit(ctx context.Context, prompt, backend string, metadata map[string]any) (string, error)
	Get(ctx context.Context, id string) (*domain.Job, error)
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Job, error)
	Stats(ctx context.Context) (map[domain.Status]int, error)
}

type HealthChecker interface {
	Check(ctx context.Context) health.Report
}

type PoolMetrics interface {
	Metrics() worker.Snapshot
}

type App struct {
	Projects Projects
	Health   HealthChecker
	Pool     PoolMetrics
	// Ready reports whether the service can take traffic. Nil means always.
	Ready  func(ctx context.Context) error
	Logger *infra.Logger

	now func() time.Time
}

func NewApp(projects Projects, checker HealthChecker, pool PoolMetrics, logger *infra.Logger) *App {
	if logger == nil {
		logger = infra.NopLogger()
	}
	return &App{
		Projects: projects,
		Health:   checker,
		Pool:     pool,
		Logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type apiResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) ok(w http.ResponseWriter, code int, message string, data any) {
	a.json(w, code, apiResponse{Success: true, Message: message, Data: data})
}
