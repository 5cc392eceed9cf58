package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/tessera-pm/tessera/internal/apikeys"
	"github.com/tessera-pm/tessera/internal/auth"
	"github.com/tessera-pm/tessera/internal/authz"
	"github.com/tessera-pm/tessera/internal/courses"
	"github.com/tessera-pm/tessera/internal/feedback"
	"github.com/tessera-pm/tessera/internal/observability"
	"github.com/tessera-pm/tessera/internal/projects"
	"github.com/tessera-pm/tessera/internal/roles"
	"github.com/tessera-pm/tessera/internal/users"
	"github.com/tessera-pm/tessera/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Guard           *authz.Guard
	AuthHandler     *auth.Handler
	APIKeysHandler  *apikeys.Handler
	RolesHandler    *roles.Handler
	UsersHandler    *users.Handler
	CoursesHandler  *courses.Handler
	ProjectsHandler *projects.Handler
	FeedbackHandler *feedback.Handler
	JobsHandler     *jobs.Handler
	Metrics         *observability.Metrics
}

// NewRouter constructs the chi router and mounts every API surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	loginLimit := 10
	if params.Config != nil && params.Config.LoginRateLimit > 0 {
		loginLimit = params.Config.LoginRateLimit
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(httprate.Limit(loginLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
			params.AuthHandler.MountRoutes(r)
		})
		r.Route("/apikeys", func(r chi.Router) {
			params.APIKeysHandler.MountRoutes(r, params.Guard)
		})
		if params.RolesHandler != nil {
			r.Route("/roles", func(r chi.Router) {
				params.RolesHandler.MountRoutes(r, params.Guard)
			})
		}
		r.Route("/users", func(r chi.Router) {
			params.UsersHandler.MountRoutes(r, params.Guard)
		})
		r.Route("/courses", func(r chi.Router) {
			params.CoursesHandler.MountRoutes(r, params.Guard)
		})
		r.Route("/projects", func(r chi.Router) {
			params.ProjectsHandler.MountRoutes(r, params.Guard)
		})
		r.Route("/feedback", func(r chi.Router) {
			params.FeedbackHandler.MountRoutes(r, params.Guard)
		})
		r.Route("/external", func(r chi.Router) {
			params.ProjectsHandler.MountExternalRoutes(r, params.Guard)
		})
		if params.JobsHandler != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Use(params.Guard.Require(authz.ActionAdmin, authz.PolicyNone))
				params.JobsHandler.MountRoutes(r)
			})
		}
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
