package boards

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pinboard/pinboard/internal/platform/httpx"
	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
)

// Handler exposes board endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers board routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin)
		r.Get("/", h.list)
		r.Post("/", h.create)
	})
	r.Route("/{boardID}", func(r chi.Router) {
		r.With(h.rbac.RequireObject(shared.PermViewBoard, shared.ObjectBoard, "boardID")).Get("/", h.get)
		r.With(h.rbac.RequireObject(shared.PermChangeBoard, shared.ObjectBoard, "boardID")).Patch("/", h.update)
		r.With(h.rbac.RequireObject(shared.PermDeleteBoard, shared.ObjectBoard, "boardID")).Delete("/", h.delete)
		r.Group(func(r chi.Router) {
			r.Use(h.rbac.RequireObject(shared.PermChangeBoard, shared.ObjectBoard, "boardID"))
			r.Post("/members", h.addMember)
			r.Delete("/members/{userID}", h.removeMember)
		})
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	boards, err := h.service.ListVisible(r.Context(), principal)
	if err != nil {
		h.logger.Error("list boards", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if boards == nil {
		boards = []Board{}
	}
	httpx.JSON(w, http.StatusOK, boards)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	board, err := h.service.Create(r.Context(), principal, in)
	if err != nil {
		h.logger.Warn("create board", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, board)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IDParam(r, "boardID")
	board, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, board)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IDParam(r, "boardID")
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	board, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, board)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IDParam(r, "boardID")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete board", slog.Int64("board_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IDParam(r, "boardID")
	var in MemberInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if in.UserID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "user_id: required")
		return
	}
	board, err := h.service.AddMember(r.Context(), id, in.UserID)
	if err != nil {
		httpx.RespondError(w, mapMemberError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, board)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IDParam(r, "boardID")
	userID, err := httpx.IDParam(r, "userID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	board, err := h.service.RemoveMember(r.Context(), id, userID)
	if err != nil {
		httpx.RespondError(w, mapMemberError(err))
		return
	}
	httpx.JSON(w, http.StatusOK, board)
}

func mapMemberError(err error) error {
	if errors.Is(err, rbac.ErrUnknownSubject) {
		return fmt.Errorf("%w: %v", shared.ErrNotFound, err)
	}
	return err
}
