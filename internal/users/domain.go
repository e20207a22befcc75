package users

import (
	"fmt"
	"time"

	"github.com/pinboard/pinboard/internal/shared"
)

// User is an account identity.
type User struct {
	ID           int64      `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	PasswordHash string     `json:"-"`
	IsActive     bool       `json:"is_active"`
	IsStaff      bool       `json:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser"`
	DateJoined   time.Time  `json:"date_joined"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
}

// Principal converts the account into the request principal.
func (u User) Principal() shared.Principal {
	return shared.Principal{UserID: u.ID, Username: u.Username, IsSuperuser: u.IsSuperuser}
}

// RegisterInput carries a sign-up request.
type RegisterInput struct {
	Username string `json:"username" validate:"required,max=150,excludesall= /"`
	Email    string `json:"email" validate:"omitempty,email,max=254"`
	Password string `json:"password" validate:"required,min=8"`
}

var (
	// ErrUserNotFound indicates the user id or name does not exist.
	ErrUserNotFound = fmt.Errorf("users: %w", shared.ErrNotFound)
	// ErrUsernameTaken indicates the username is already registered.
	ErrUsernameTaken = fmt.Errorf("users: username %w", shared.ErrDuplicate)
)
