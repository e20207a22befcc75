package pins

import (
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

func newTestRouter(f fixture) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, f.svc, rbac.Middleware{Service: f.repo.perms, Logger: logger})
	r := chi.NewRouter()
	r.Route("/pins", h.MountRoutes)
	return r
}

func call(t *testing.T, router http.Handler, p *shared.Principal, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if p != nil {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), *p))
	}
	res := httptest.NewRecorder()
	router.ServeHTTP(res, req)
	return res
}

func TestHandlerPinLifecycle(t *testing.T) {
	f := newFixture(false)
	router := newTestRouter(f)
	owner := &shared.Principal{UserID: 1}
	other := &shared.Principal{UserID: 2}

	res := call(t, router, nil, http.MethodGet, "/pins/", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.JSONEq(t, `[]`, res.Body.String())

	res = call(t, router, nil, http.MethodPost, "/pins/", `{"url":"http://example.com/a.png"}`, nil)
	require.Equal(t, http.StatusUnauthorized, res.Code)

	res = call(t, router, owner, http.MethodPost, "/pins/", `{"url":"http://example.com/a.png","tags":["tag_1"]}`, nil)
	require.Equal(t, http.StatusCreated, res.Code)
	var pin Pin
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &pin))
	require.Equal(t, []string{"tag_1"}, pin.Tags)
	path := "/pins/" + strconv.FormatInt(pin.ID, 10)

	res = call(t, router, nil, http.MethodGet, path+"/", "", nil)
	require.Equal(t, http.StatusOK, res.Code)

	res = call(t, router, other, http.MethodPatch, path+"/", `{"description":"mine now"}`, nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = call(t, router, owner, http.MethodPatch, path+"/", `{"description":"sunset"}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &pin))
	require.Equal(t, "sunset", *pin.Description)

	res = call(t, router, owner, http.MethodPut, path+"/tags", `{"tags":["tag_2"]}`, nil)
	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &pin))
	require.Equal(t, []string{"tag_2"}, pin.Tags)

	res = call(t, router, nil, http.MethodGet, "/pins/?tag=tag_2", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var listed []Pin
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &listed))
	require.Len(t, listed, 1)

	res = call(t, router, other, http.MethodDelete, path+"/", "", nil)
	require.Equal(t, http.StatusForbidden, res.Code)

	res = call(t, router, owner, http.MethodDelete, path+"/", "", nil)
	require.Equal(t, http.StatusNoContent, res.Code)

	res = call(t, router, nil, http.MethodGet, path+"/", "", nil)
	require.Equal(t, http.StatusNotFound, res.Code)
}

func TestHandlerSubmitQueuedAndIdempotent(t *testing.T) {
	f := newFixture(true)
	router := newTestRouter(f)
	owner := &shared.Principal{UserID: 1}
	headers := map[string]string{IdempotencyHeader: "abc"}

	res := call(t, router, owner, http.MethodPost, "/pins/", `{"url":"http://example.com/b.png"}`, headers)
	require.Equal(t, http.StatusAccepted, res.Code)
	var result SubmitResult
	require.NoError(t, json.Unmarshal(res.Body.Bytes(), &result))
	require.True(t, result.Queued)
	require.Nil(t, result.Pin)
	require.Len(t, f.queue.subs, 1)

	res = call(t, router, owner, http.MethodPost, "/pins/", `{"url":"http://example.com/b.png"}`, headers)
	require.Equal(t, http.StatusConflict, res.Code)
	require.Len(t, f.queue.subs, 1)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	f := newFixture(false)
	router := newTestRouter(f)
	owner := &shared.Principal{UserID: 1}

	res := call(t, router, nil, http.MethodGet, "/pins/?board=abc", "", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = call(t, router, owner, http.MethodPost, "/pins/", `{"url":`, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = call(t, router, owner, http.MethodPost, "/pins/", `{"url":"not a url"}`, nil)
	require.Equal(t, http.StatusBadRequest, res.Code)

	res = call(t, router, nil, http.MethodGet, "/pins/0/", "", nil)
	require.Equal(t, http.StatusBadRequest, res.Code)
}
