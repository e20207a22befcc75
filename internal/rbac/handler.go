package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pinboard/pinboard/internal/platform/httpx"
	"github.com/pinboard/pinboard/internal/shared"
)

// PermissionsHandler exposes the caller's permissions on an object.
type PermissionsHandler struct {
	logger  *slog.Logger
	service *Service
	rbac    Middleware
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin)
		r.Get("/{objectType}/{objectID}", h.listMine)
	})
}

type permissionsResponse struct {
	Object      string   `json:"object"`
	Permissions []string `json:"permissions"`
}

func (h *PermissionsHandler) listMine(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	objectType := chi.URLParam(r, "objectType")
	if objectType != shared.ObjectBoard && objectType != shared.ObjectPin {
		httpx.RespondError(w, shared.ErrNotFound)
		return
	}
	id, err := httpx.IDParam(r, "objectID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	obj := Object{Type: objectType, ID: id}
	perms, err := h.service.List(r.Context(), principal.UserID, obj)
	if err != nil {
		h.logger.Error("list permissions", slog.String("object", obj.String()), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []string{}
	}
	httpx.JSON(w, http.StatusOK, permissionsResponse{Object: obj.String(), Permissions: perms})
}
