package auth_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pinboard/pinboard/internal/auth"
	"github.com/pinboard/pinboard/internal/shared"
	"github.com/pinboard/pinboard/internal/users"
	_ "github.com/pinboard/pinboard/testing"
)

type stubUsers struct {
	byID   map[int64]users.User
	logins int
}

func (s *stubUsers) Get(ctx context.Context, id int64) (users.User, error) {
	u, ok := s.byID[id]
	if !ok {
		return users.User{}, users.ErrUserNotFound
	}
	return u, nil
}

func (s *stubUsers) GetByUsername(ctx context.Context, username string) (users.User, error) {
	for _, u := range s.byID {
		if u.Username == username {
			return u, nil
		}
	}
	return users.User{}, users.ErrUserNotFound
}

func (s *stubUsers) RecordLogin(ctx context.Context, id int64) error {
	s.logins++
	return nil
}

type stubRepo struct {
	created []auth.SessionRecord
	deleted []string
}

func (s *stubRepo) CreateSession(ctx context.Context, rec auth.SessionRecord) error {
	s.created = append(s.created, rec)
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return 0, nil
}

type fixture struct {
	handler  *auth.Handler
	service  *auth.Service
	sessions *shared.SessionManager
	repo     *stubRepo
	users    *stubUsers
	redis    *miniredis.Miniredis
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password"), bcrypt.MinCost)
	require.NoError(t, err)
	lookup := &stubUsers{byID: map[int64]users.User{
		1: {ID: 1, Username: "user_1", PasswordHash: string(hashed), IsActive: true},
		2: {ID: 2, Username: "dormant", PasswordHash: string(hashed), IsActive: false},
	}}
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", time.Hour, false)
	repo := &stubRepo{}
	service := auth.NewService(repo, lookup)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return fixture{
		handler:  auth.NewHandler(logger, service, sessions, shared.NewCSRFManager("csrfsecret")),
		service:  service,
		sessions: sessions,
		repo:     repo,
		users:    lookup,
		redis:    mr,
	}
}

func (f fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, *shared.Session) {
	t.Helper()
	sess, err := f.sessions.Load(context.Background(), req)
	require.NoError(t, err)
	ctx := shared.ContextWithSession(req.Context(), sess)
	res := httptest.NewRecorder()
	router := chiRouter(f.handler)
	router.ServeHTTP(res, req.WithContext(ctx))
	require.NoError(t, f.sessions.Commit(ctx, res, sess))
	return res, sess
}

func TestLoginSuccess(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"user_1","password":"password"}`))
	res, sess := f.do(t, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.Equal(t, int64(1), sess.UserID())
	require.Len(t, f.repo.created, 1)
	require.Equal(t, sess.ID, f.repo.created[0].ID)
	require.Equal(t, 1, f.users.logins)
	require.True(t, f.redis.Exists("pinboard:session:"+sess.ID))
	require.NotContains(t, res.Body.String(), "password_hash")
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t)
	for _, body := range []string{
		`{"username":"user_1","password":"wrongpass"}`,
		`{"username":"nobody","password":"password"}`,
		`{"username":"dormant","password":"password"}`,
	} {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
		res, sess := f.do(t, req)
		require.Equal(t, http.StatusUnauthorized, res.Code, body)
		require.Zero(t, sess.UserID())
	}
	require.Empty(t, f.repo.created)
}

func TestLoginValidation(t *testing.T) {
	f := newFixture(t)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"user_1"}`))
	res, _ := f.do(t, req)
	require.Equal(t, http.StatusBadRequest, res.Code)
}

func TestLogout(t *testing.T) {
	f := newFixture(t)
	login := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"user_1","password":"password"}`))
	_, sess := f.do(t, login)

	logout := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	logout.AddCookie(&http.Cookie{Name: f.sessions.CookieName(), Value: sess.ID})
	res, _ := f.do(t, logout)

	require.Equal(t, http.StatusNoContent, res.Code)
	require.Equal(t, []string{sess.ID}, f.repo.deleted)
	require.False(t, f.redis.Exists("pinboard:session:"+sess.ID))
}

func TestPrincipalMiddleware(t *testing.T) {
	f := newFixture(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	var seen shared.Principal
	var present bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, present = shared.PrincipalFromContext(r.Context())
	})
	mw := auth.PrincipalMiddleware(logger, f.service)(next)

	run := func(userID int64) *shared.Session {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		sess, err := f.sessions.Load(context.Background(), req)
		require.NoError(t, err)
		sess.SetUser(userID)
		mw.ServeHTTP(httptest.NewRecorder(), req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		return sess
	}

	run(1)
	require.True(t, present)
	require.Equal(t, "user_1", seen.Username)

	sess := run(2)
	require.False(t, present)
	require.Zero(t, sess.UserID())

	run(0)
	require.False(t, present)
}
