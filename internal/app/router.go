package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/proeftuin/agrigate/internal/auth"
	"github.com/proeftuin/agrigate/internal/authz"
	"github.com/proeftuin/agrigate/internal/farmusers"
	"github.com/proeftuin/agrigate/internal/observability"
	"github.com/proeftuin/agrigate/internal/roles"
	"github.com/proeftuin/agrigate/internal/users"
	"github.com/proeftuin/agrigate/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	AuthHandler      *auth.Handler
	AuthzHandler     *authz.Handler
	RolesHandler     *roles.Handler
	UsersHandler     *users.Handler
	FarmUsersHandler *farmusers.Handler
	JobsHandler      *jobs.Handler
	AccessVerifier   auth.TokenVerifier
	RefreshVerifier  auth.RefreshVerifier
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with service defaults.
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

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		// Routes that authenticate themselves: login, token refresh and
		// account registration.
		params.AuthHandler.MountRoutes(r)
		params.UsersHandler.MountPublicRoutes(r)

		// Everything else requires an access token.
		r.Group(func(r chi.Router) {
			r.Use(auth.Verify(params.AccessVerifier))
			params.AuthzHandler.MountRoutes(r)
			params.RolesHandler.MountRoutes(r)
			params.UsersHandler.MountRoutes(r)
			params.FarmUsersHandler.MountRoutes(r)
			if params.JobsHandler != nil {
				params.JobsHandler.MountRoutes(r)
			}
		})

		// The per-user role listing is guarded by a refresh token.
		r.Group(func(r chi.Router) {
			r.Use(auth.VerifyRefresh(params.RefreshVerifier))
			params.FarmUsersHandler.MountUserRolesRoute(r)
		})
	})

	return r
}
