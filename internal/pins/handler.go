package pins

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pinboard/pinboard/internal/platform/httpx"
	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
)

// IdempotencyHeader carries a client supplied submission key.
const IdempotencyHeader = "Idempotency-Key"

// Handler exposes pin endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	return &Handler{logger: logger, service: service, rbac: rbac}
}

// MountRoutes registers pin routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.With(h.rbac.RequireLogin).Post("/", h.submit)
	r.Route("/{pinID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.With(h.rbac.RequireObject(shared.PermChangePin, shared.ObjectPin, "pinID")).Patch("/", h.update)
		r.With(h.rbac.RequireObject(shared.PermChangePin, shared.ObjectPin, "pinID")).Put("/tags", h.setTags)
		r.With(h.rbac.RequireObject(shared.PermDeletePin, shared.ObjectPin, "pinID")).Delete("/", h.delete)
	})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ListFilter{Tag: q.Get("tag"), Page: shared.PageFromQuery(q)}
	for name, target := range map[string]**int64{"board": &filter.BoardID, "submitter": &filter.SubmitterID} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
			return
		}
		*target = &id
	}
	principal, _ := shared.PrincipalFromContext(r.Context())
	pins, err := h.service.List(r.Context(), principal, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if pins == nil {
		pins = []Pin{}
	}
	httpx.JSON(w, http.StatusOK, pins)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	var in CreateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.Submit(r.Context(), principal, in, r.Header.Get(IdempotencyHeader))
	if err != nil {
		h.logger.Warn("submit pin", slog.String("url", in.URL), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if result.Queued {
		httpx.JSON(w, http.StatusAccepted, result)
		return
	}
	httpx.JSON(w, http.StatusCreated, result.Pin)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := httpx.IDParam(r, "pinID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	pin, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pin)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	principal, _ := shared.PrincipalFromContext(r.Context())
	id, _ := httpx.IDParam(r, "pinID")
	var in UpdateInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	pin, err := h.service.Update(r.Context(), principal, id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pin)
}

func (h *Handler) setTags(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IDParam(r, "pinID")
	var in TagsInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	pin, err := h.service.SetTags(r.Context(), id, in.Tags)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pin)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, _ := httpx.IDParam(r, "pinID")
	if err := h.service.Delete(r.Context(), id); err != nil {
		h.logger.Error("delete pin", slog.Int64("pin_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
