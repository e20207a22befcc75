package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/pinboard/pinboard/internal/auth"
	"github.com/pinboard/pinboard/internal/boards"
	"github.com/pinboard/pinboard/internal/observability"
	"github.com/pinboard/pinboard/internal/pins"
	"github.com/pinboard/pinboard/internal/platform/httpx"
	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
	"github.com/pinboard/pinboard/internal/users"
	"github.com/pinboard/pinboard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	AuthService    *auth.Service

	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	BoardsHandler      *boards.Handler
	PinsHandler        *pins.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
	// MediaHandler serves stored image blobs; nil when storage is remote.
	MediaHandler http.Handler
}

// NewRouter constructs the chi.Router with pinboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		AuthService:    params.AuthService,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.BoardsHandler != nil {
		r.Route("/boards", params.BoardsHandler.MountRoutes)
	}
	if params.PinsHandler != nil {
		r.Route("/pins", params.PinsHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.MediaHandler != nil {
		r.Handle("/media/*", mediaCacheHandler(http.StripPrefix("/media/", params.MediaHandler)))
	}

	return r
}

// mediaCacheHandler marks stored images as immutable; keys are never reused.
func mediaCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		next.ServeHTTP(w, r)
	})
}
