package rbac

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pinboard/pinboard/internal/platform/httpx"
	"github.com/pinboard/pinboard/internal/shared"
)

// Middleware wires object permission checks for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireLogin rejects requests without an authenticated principal.
func (m Middleware) RequireLogin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.PrincipalFromContext(r.Context()); !ok {
			httpx.RespondError(w, shared.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireObject ensures the principal holds perm on the object of objectType
// whose id is the chi route parameter param.
func (m Middleware) RequireObject(perm, objectType, param string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, shared.ErrUnauthorized)
				return
			}
			id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
			if err != nil || id <= 0 {
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+param)
				return
			}
			allowed, err := m.Service.Has(r.Context(), principal, perm, Object{Type: objectType, ID: id})
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("rbac require object", slog.String("permission", perm), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !allowed {
				// Hide existence of objects the caller cannot see.
				if perm == shared.PermViewBoard {
					httpx.RespondError(w, shared.ErrNotFound)
					return
				}
				httpx.RespondError(w, shared.ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
