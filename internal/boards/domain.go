// Package boards manages named pin collections, their members and view grants.
package boards

import (
	"errors"
	"fmt"

	"github.com/pinboard/pinboard/internal/shared"
)

// Board is a named collection of pins shared with its members.
type Board struct {
	ID          int64    `json:"id"`
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	Settings    Settings `json:"settings"`
	Members     []int64  `json:"members"`
}

// CreateInput carries a new board.
type CreateInput struct {
	Name        string   `json:"name" validate:"required,max=75"`
	Description *string  `json:"description"`
	Settings    Settings `json:"settings"`
}

// UpdateInput carries a partial board update. Nil fields are left unchanged.
type UpdateInput struct {
	Name        *string   `json:"name" validate:"omitempty,min=1,max=75"`
	Description *string   `json:"description"`
	Settings    *Settings `json:"settings"`
}

// MemberInput names a user to add to a board.
type MemberInput struct {
	UserID int64 `json:"user_id" validate:"required,gt=0"`
}

var (
	// ErrBoardNotFound indicates the board does not exist or is not visible.
	ErrBoardNotFound = fmt.Errorf("boards: %w", shared.ErrNotFound)
	// ErrInvalidSettings indicates a settings document that is not a JSON object.
	ErrInvalidSettings = errors.New("boards: settings must be a JSON object")
)
