package boards

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
)

func newTestRouter(svc *Service, repo *memoryRepo) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, rbac.Middleware{Service: repo.perms, Logger: logger})
	r := chi.NewRouter()
	r.Route("/boards", h.MountRoutes)
	return r
}

func call(t *testing.T, router http.Handler, p *shared.Principal, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if p != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), *p))
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestHandlerBoardLifecycle(t *testing.T) {
	svc, repo := newTestService(1, 2, 3)
	router := newTestRouter(svc, repo)
	owner := &shared.Principal{UserID: 1}
	member := &shared.Principal{UserID: 2}
	stranger := &shared.Principal{UserID: 3}

	res := call(t, router, nil, http.MethodPost, "/boards/", `{"name":"Trips"}`)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = call(t, router, owner, http.MethodPost, "/boards/", `{"name":"Trips","settings":{"layout":"grid"}}`)
	require.Equal(t, http.StatusCreated, res.Code)
	var board Board
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &board))
	path := "/boards/" + strconv.FormatInt(board.ID, 10)

	res = call(t, router, stranger, http.MethodGet, path+"/", "")
	require.Equal(t, http.StatusNotFound, res.Code)

	res = call(t, router, owner, http.MethodPost, path+"/members", `{"user_id":2}`)
	require.Equal(t, http.StatusOK, res.Code)

	res = call(t, router, member, http.MethodGet, path+"/", "")
	require.Equal(t, http.StatusOK, res.Code)

	res = call(t, router, member, http.MethodDelete, path+"/", "")
	require.Equal(t, http.StatusForbidden, res.Code)

	res = call(t, router, owner, http.MethodPost, path+"/members", `{"user_id":404}`)
	require.Equal(t, http.StatusNotFound, res.Code)

	res = call(t, router, member, http.MethodGet, "/boards/", "")
	require.Equal(t, http.StatusOK, res.Code)
	var listed []Board
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	res = call(t, router, owner, http.MethodDelete, path+"/members/2", "")
	require.Equal(t, http.StatusOK, res.Code)
	res = call(t, router, member, http.MethodGet, path+"/", "")
	require.Equal(t, http.StatusNotFound, res.Code)

	res = call(t, router, owner, http.MethodDelete, path+"/", "")
	require.Equal(t, http.StatusNoContent, res.Code)
	_, err := repo.Get(context.Background(), board.ID)
	require.ErrorIs(t, err, ErrBoardNotFound)
}

func TestHandlerRejectsBadSettings(t *testing.T) {
	svc, repo := newTestService(1)
	router := newTestRouter(svc, repo)
	res := call(t, router, &shared.Principal{UserID: 1}, http.MethodPost, "/boards/", `{"name":"x","settings":[1]}`)
	require.Equal(t, http.StatusBadRequest, res.Code)
}
