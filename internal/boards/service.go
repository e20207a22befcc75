package boards

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
)

// Permissions is the subset of rbac.Service used for board grants.
type Permissions interface {
	Grant(ctx context.Context, perm string, userID int64, obj rbac.Object) error
	Revoke(ctx context.Context, perm string, userID int64, obj rbac.Object) error
	RevokeAll(ctx context.Context, obj rbac.Object) (int64, error)
	List(ctx context.Context, userID int64, obj rbac.Object) ([]string, error)
}

// RepositoryPort defines data access methods for boards.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Board, error)
	ListAll(ctx context.Context) ([]Board, error)
	ListVisible(ctx context.Context, userID int64) ([]Board, error)
}

// Service implements board business logic.
type Service struct {
	repo     RepositoryPort
	validate *validator.Validate
	logger   *slog.Logger
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validate: validator.New(), logger: logger}
}

// Create stores a board. The owner becomes a member with every board permission.
func (s *Service) Create(ctx context.Context, owner shared.Principal, in CreateInput) (Board, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := s.validate.Struct(in); err != nil {
		return Board{}, err
	}
	var created Board
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		board, err := tx.Insert(ctx, Board{Name: in.Name, Description: in.Description, Settings: in.Settings})
		if err != nil {
			return fmt.Errorf("boards: insert: %w", err)
		}
		if err := tx.AddMember(ctx, board.ID, owner.UserID); err != nil {
			return fmt.Errorf("boards: add owner: %w", err)
		}
		obj := rbac.BoardObject(board.ID)
		for _, perm := range shared.BoardOwnerPermissions() {
			if err := tx.Permissions().Grant(ctx, perm, owner.UserID, obj); err != nil {
				return err
			}
		}
		created, err = tx.Get(ctx, board.ID)
		return err
	})
	if err != nil {
		return Board{}, err
	}
	s.logger.Info("board created", slog.Int64("board_id", created.ID), slog.Int64("user_id", owner.UserID))
	return created, nil
}

// Get returns a board with its members.
func (s *Service) Get(ctx context.Context, id int64) (Board, error) {
	return s.repo.Get(ctx, id)
}

// ListVisible returns the boards the principal may view. Superusers see every board.
func (s *Service) ListVisible(ctx context.Context, p shared.Principal) ([]Board, error) {
	if p.IsSuperuser {
		return s.repo.ListAll(ctx)
	}
	return s.repo.ListVisible(ctx, p.UserID)
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (Board, error) {
	if in.Name != nil {
		trimmed := strings.TrimSpace(*in.Name)
		in.Name = &trimmed
	}
	if err := s.validate.Struct(in); err != nil {
		return Board{}, err
	}
	var updated Board
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		board, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}
		if in.Name != nil {
			board.Name = *in.Name
		}
		if in.Description != nil {
			board.Description = in.Description
			if *in.Description == "" {
				board.Description = nil
			}
		}
		if in.Settings != nil {
			board.Settings = *in.Settings
		}
		if err := tx.Update(ctx, board); err != nil {
			return err
		}
		updated = board
		return nil
	})
	return updated, err
}

// AddMember adds userID to the board and grants view_board. Both steps are idempotent.
func (s *Service) AddMember(ctx context.Context, boardID, userID int64) (Board, error) {
	var board Board
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Get(ctx, boardID); err != nil {
			return err
		}
		if err := tx.Permissions().Grant(ctx, shared.PermViewBoard, userID, rbac.BoardObject(boardID)); err != nil {
			return err
		}
		if err := tx.AddMember(ctx, boardID, userID); err != nil {
			return fmt.Errorf("boards: add member: %w", err)
		}
		var err error
		board, err = tx.Get(ctx, boardID)
		return err
	})
	return board, err
}

// RemoveMember removes userID from the board and revokes every permission the
// user holds on it, so grants on a board only ever belong to its members.
func (s *Service) RemoveMember(ctx context.Context, boardID, userID int64) (Board, error) {
	var board Board
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Get(ctx, boardID); err != nil {
			return err
		}
		if err := tx.RemoveMember(ctx, boardID, userID); err != nil {
			return fmt.Errorf("boards: remove member: %w", err)
		}
		obj := rbac.BoardObject(boardID)
		granted, err := tx.Permissions().List(ctx, userID, obj)
		if err != nil {
			return err
		}
		for _, perm := range granted {
			if err := tx.Permissions().Revoke(ctx, perm, userID, obj); err != nil {
				return err
			}
		}
		board, err = tx.Get(ctx, boardID)
		return err
	})
	return board, err
}

// Delete revokes every grant on the board, clears members and pin references,
// then removes the board. Pins survive as unfiled.
func (s *Service) Delete(ctx context.Context, id int64) error {
	var revoked, unfiled int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.Get(ctx, id); err != nil {
			return err
		}
		var err error
		if revoked, err = tx.Permissions().RevokeAll(ctx, rbac.BoardObject(id)); err != nil {
			return err
		}
		if err := tx.ClearMembers(ctx, id); err != nil {
			return fmt.Errorf("boards: clear members: %w", err)
		}
		if unfiled, err = tx.ClearPins(ctx, id); err != nil {
			return fmt.Errorf("boards: clear pins: %w", err)
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.logger.Info("board deleted", slog.Int64("board_id", id), slog.Int64("grants_revoked", revoked), slog.Int64("pins_unfiled", unfiled))
	return nil
}
