package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pinboard/pinboard/internal/platform/httpx"
	"github.com/pinboard/pinboard/internal/shared"
)

// PrincipalMiddleware attaches the logged in principal, if any, to the request context.
// Sessions pointing at missing or deactivated accounts are logged out.
func PrincipalMiddleware(logger *slog.Logger, service *Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			if sess == nil || sess.UserID() == 0 {
				next.ServeHTTP(w, r)
				return
			}
			principal, err := service.Principal(r.Context(), sess.UserID())
			switch {
			case errors.Is(err, shared.ErrUnauthorized):
				sess.SetUser(0)
				next.ServeHTTP(w, r)
				return
			case err != nil:
				logger.Error("resolve principal", slog.Int64("user_id", sess.UserID()), slog.Any("error", err))
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}
