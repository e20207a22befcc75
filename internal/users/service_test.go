package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pinboard/pinboard/internal/shared"
)

type memoryRepo struct {
	nextID int64
	users  map[int64]User
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{users: make(map[int64]User)}
}

func (m *memoryRepo) Create(ctx context.Context, u User) (User, error) {
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return User{}, ErrUsernameTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.DateJoined = time.Now()
	m.users[u.ID] = u
	return u, nil
}

func (m *memoryRepo) Get(ctx context.Context, id int64) (User, error) {
	u, ok := m.users[id]
	if !ok {
		return User{}, ErrUserNotFound
	}
	return u, nil
}

func (m *memoryRepo) GetByUsername(ctx context.Context, username string) (User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

func (m *memoryRepo) List(ctx context.Context) ([]User, error) {
	out := make([]User, 0, len(m.users))
	for id := int64(1); id <= m.nextID; id++ {
		if u, ok := m.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *memoryRepo) TouchLogin(ctx context.Context, id int64, at time.Time) error {
	u, ok := m.users[id]
	if !ok {
		return ErrUserNotFound
	}
	u.LastLogin = &at
	m.users[id] = u
	return nil
}

func newTestService(open bool) (*Service, *memoryRepo) {
	repo := newMemoryRepo()
	return NewService(repo, ServiceConfig{AllowRegistrations: open, BcryptCost: bcrypt.MinCost}), repo
}

func TestRegisterHashesPassword(t *testing.T) {
	svc, _ := newTestService(true)
	user, err := svc.Register(context.Background(), RegisterInput{Username: " user_1 ", Email: "user_1@example.com", Password: "password"})
	require.NoError(t, err)
	require.Equal(t, "user_1", user.Username)
	require.True(t, user.IsActive)
	require.False(t, user.IsSuperuser)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("password")))
}

func TestRegisterClosed(t *testing.T) {
	svc, _ := newTestService(false)
	require.False(t, svc.RegistrationOpen())
	_, err := svc.Register(context.Background(), RegisterInput{Username: "user_1", Password: "password"})
	require.ErrorIs(t, err, shared.ErrRegistrationClosed)
}

func TestRegisterValidation(t *testing.T) {
	svc, _ := newTestService(true)
	_, err := svc.Register(context.Background(), RegisterInput{Username: "user_1", Password: "short"})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	_, err = svc.Register(context.Background(), RegisterInput{Username: "has space", Password: "password"})
	require.True(t, errors.As(err, &verrs))
}

func TestRegisterDuplicate(t *testing.T) {
	svc, _ := newTestService(true)
	ctx := context.Background()
	_, err := svc.Register(ctx, RegisterInput{Username: "user_1", Password: "password"})
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Username: "user_1", Password: "password"})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestCreatePlaceholderIsInactiveAndReused(t *testing.T) {
	svc, repo := newTestService(false)
	ctx := context.Background()
	first, err := svc.CreatePlaceholder(ctx, "anonymous")
	require.NoError(t, err)
	require.False(t, first.IsActive)
	require.Empty(t, first.PasswordHash)

	second, err := svc.CreatePlaceholder(ctx, "anonymous")
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Len(t, repo.users, 1)
}

func TestRecordLogin(t *testing.T) {
	svc, repo := newTestService(true)
	ctx := context.Background()
	user, err := svc.Register(ctx, RegisterInput{Username: "user_1", Password: "password"})
	require.NoError(t, err)
	require.NoError(t, svc.RecordLogin(ctx, user.ID))
	require.NotNil(t, repo.users[user.ID].LastLogin)
}
