package users

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"

	"github.com/pinboard/pinboard/internal/shared"
)

// RepositoryPort defines data access methods for users.
type RepositoryPort interface {
	Create(ctx context.Context, u User) (User, error)
	Get(ctx context.Context, id int64) (User, error)
	GetByUsername(ctx context.Context, username string) (User, error)
	List(ctx context.Context) ([]User, error)
	TouchLogin(ctx context.Context, id int64, at time.Time) error
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowRegistrations bool
	// BcryptCost defaults to bcrypt.DefaultCost.
	BcryptCost int
}

// Service handles user business logic.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	cfg      ServiceConfig
}

// NewService builds Service instance.
func NewService(repo RepositoryPort, cfg ServiceConfig) *Service {
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{repo: repo, validate: validator.New(), cfg: cfg}
}

// RegistrationOpen reports whether sign-ups are allowed.
func (s *Service) RegistrationOpen() bool {
	return s.cfg.AllowRegistrations
}

// Register creates an active, unprivileged account.
func (s *Service) Register(ctx context.Context, in RegisterInput) (User, error) {
	if !s.RegistrationOpen() {
		return User{}, shared.ErrRegistrationClosed
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validate.Struct(in); err != nil {
		return User{}, err
	}
	return s.create(ctx, User{Username: in.Username, Email: in.Email, IsActive: true}, in.Password)
}

// CreateSuperuser creates an administrator account, bypassing the registration gate.
func (s *Service) CreateSuperuser(ctx context.Context, username, email, password string) (User, error) {
	return s.create(ctx, User{Username: username, Email: email, IsActive: true, IsStaff: true, IsSuperuser: true}, password)
}

// CreatePlaceholder creates the inactive anonymous account that never logs in.
func (s *Service) CreatePlaceholder(ctx context.Context, username string) (User, error) {
	if existing, err := s.repo.GetByUsername(ctx, username); err == nil {
		return existing, nil
	}
	return s.repo.Create(ctx, User{Username: username, IsActive: false})
}

func (s *Service) create(ctx context.Context, u User, password string) (User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cfg.BcryptCost)
	if err != nil {
		return User{}, err
	}
	u.PasswordHash = string(hash)
	return s.repo.Create(ctx, u)
}

// Get returns the user with id.
func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	return s.repo.Get(ctx, id)
}

// GetByUsername returns the user with the given username.
func (s *Service) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.repo.GetByUsername(ctx, strings.TrimSpace(username))
}

// ListUsers returns all users.
func (s *Service) ListUsers(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

// RecordLogin stamps last_login.
func (s *Service) RecordLogin(ctx context.Context, id int64) error {
	return s.repo.TouchLogin(ctx, id, time.Now().UTC())
}
