package users

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pinboard/pinboard/internal/platform/httpx"
	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
)

// Handler manages user endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *shared.SessionManager
	rbac     rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, sessions: sessions, rbac: rbac}
}

// MountRoutes registers user routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/register", h.registrationStatus)
	r.Post("/register", h.register)
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireLogin)
		r.Get("/me", h.me)
		r.Get("/", h.listUsers)
	})
}

type registrationResponse struct {
	Open bool `json:"open"`
}

func (h *Handler) registrationStatus(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, registrationResponse{Open: h.service.RegistrationOpen()})
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	user, err := h.service.Register(r.Context(), in)
	if err != nil {
		if !errors.Is(err, shared.ErrRegistrationClosed) && !errors.Is(err, shared.ErrDuplicate) {
			h.logger.Warn("register user", slog.String("username", in.Username), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	// A fresh account is logged in straight away.
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		if err := h.sessions.Rotate(r.Context(), sess); err != nil {
			h.logger.Error("rotate session", slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		sess.SetUser(user.ID)
	}
	if err := h.service.RecordLogin(r.Context(), user.ID); err != nil {
		h.logger.Warn("record login", slog.Int64("user_id", user.ID), slog.Any("error", err))
	}
	h.logger.Info("user registered", slog.Int64("user_id", user.ID), slog.String("username", user.Username))
	httpx.JSON(w, http.StatusCreated, user)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	user, err := h.service.Get(r.Context(), principal.UserID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	if !principal.IsSuperuser {
		httpx.RespondError(w, shared.ErrForbidden)
		return
	}
	users, err := h.service.ListUsers(r.Context())
	if err != nil {
		h.logger.Error("list users failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if users == nil {
		users = []User{}
	}
	httpx.JSON(w, http.StatusOK, users)
}
