package auth

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pinboard/pinboard/internal/shared"
	"github.com/pinboard/pinboard/internal/users"
)

// UserLookup resolves accounts for authentication.
type UserLookup interface {
	Get(ctx context.Context, id int64) (users.User, error)
	GetByUsername(ctx context.Context, username string) (users.User, error)
	RecordLogin(ctx context.Context, id int64) error
}

// Service wraps authentication business rules.
type Service struct {
	repo  Repository
	users UserLookup
	now   func() time.Time
}

// NewService constructs a new Service.
func NewService(repo Repository, lookup UserLookup) *Service {
	return &Service{repo: repo, users: lookup, now: time.Now}
}

// Authenticate validates username/password credentials.
func (s *Service) Authenticate(ctx context.Context, username, password string) (users.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return users.User{}, shared.ErrInvalidCredentials
		}
		return users.User{}, err
	}
	if !user.IsActive || user.PasswordHash == "" {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return users.User{}, shared.ErrInvalidCredentials
	}
	if err := s.users.RecordLogin(ctx, user.ID); err != nil {
		return users.User{}, err
	}
	return user, nil
}

// Principal resolves the principal for a session user id. Deactivated
// accounts resolve to ErrUnauthorized.
func (s *Service) Principal(ctx context.Context, userID int64) (shared.Principal, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.Principal{}, shared.ErrUnauthorized
		}
		return shared.Principal{}, err
	}
	if !user.IsActive {
		return shared.Principal{}, shared.ErrUnauthorized
	}
	return user.Principal(), nil
}

// RegisterSession persists the session metadata in postgres.
func (s *Service) RegisterSession(ctx context.Context, id string, userID int64, ttl time.Duration, ip, ua string) error {
	now := s.now()
	return s.repo.CreateSession(ctx, SessionRecord{
		ID:        id,
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
		IP:        ip,
		UserAgent: ua,
	})
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	return s.repo.DeleteSession(ctx, id)
}

// PurgeExpired removes stale session rows.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
