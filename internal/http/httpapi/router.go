package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"genesis/internal/http/handlers"
	"genesis/internal/middleware"
	"genesis/internal/ratelimit"
)

type Options struct {
	Logger         zerolog.Logger
	Limiter        *ratelimit.Limiter
	AllowedOrigins []string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.AllowedOrigins),
	)

	r.Get("/health", app.HealthCheck)
	r.Get("/ready", app.Readiness)
	r.Get("/live", app.Liveness)

	generate := r.With()
	if opts.Limiter != nil {
		generate = r.With(middleware.RateLimit(opts.Limiter))
	}
	generate.Post("/generate", app.Generate)

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", app.ListProjects)
		r.Get("/{id}", app.GetProject)
		r.Get("/{id}/archive", app.ArchiveProject)
	})
	r.Get("/stats", app.Stats)

	return r
}
