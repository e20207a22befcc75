// Package backfill moves pre-board data onto a shared default board and back.
//
// Forward creates (or reuses) the default board, makes every eligible user a
// member holding view_board on it, and files every unfiled pin there. Backward
// revokes every grant on each board, deletes every board and unfiles every pin.
// Eligible users are all users except the anonymous placeholder and superusers.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
)

// DefaultBoardName names the board created by Forward.
const DefaultBoardName = "Default board"

// ErrAnonymousUserNotConfigured is returned by Forward when no anonymous account id is set.
var ErrAnonymousUserNotConfigured = errors.New("backfill: anonymous user id not configured")

// Member is a board member with the flag that decides rollback handling.
type Member struct {
	UserID      int64
	IsSuperuser bool
}

// Store is the persistence port used by the procedure.
type Store interface {
	FindBoardByName(ctx context.Context, name string) (id int64, found bool, err error)
	CreateBoard(ctx context.Context, name string) (int64, error)
	EligibleUserIDs(ctx context.Context, anonymousID int64) ([]int64, error)
	AddMember(ctx context.Context, boardID, userID int64) error
	AssignUnfiledPins(ctx context.Context, boardID int64) (int64, error)
	BoardIDs(ctx context.Context) ([]int64, error)
	Members(ctx context.Context, boardID int64) ([]Member, error)
	ClearMembers(ctx context.Context, boardID int64) error
	DeleteBoard(ctx context.Context, boardID int64) error
	UnfileAllPins(ctx context.Context) (int64, error)
	CountUnfiledPins(ctx context.Context) (int64, error)
}

// Permissions is the authorization interface the procedure drives.
type Permissions interface {
	Grant(ctx context.Context, perm string, userID int64, obj rbac.Object) error
	Revoke(ctx context.Context, perm string, userID int64, obj rbac.Object) error
	List(ctx context.Context, userID int64, obj rbac.Object) ([]string, error)
	RevokeAll(ctx context.Context, obj rbac.Object) (int64, error)
}

// Runner executes fn with a Store and Permissions, atomically where the backend allows.
type Runner interface {
	Run(ctx context.Context, fn func(ctx context.Context, store Store, perms Permissions) error) error
}

// Options configures a Procedure.
type Options struct {
	// AnonymousUserID identifies the placeholder account. Required by Forward.
	AnonymousUserID int64
	// DryRun makes Forward and Backward return without touching anything.
	DryRun bool
	Logger *slog.Logger
}

// Result summarises a run.
type Result struct {
	DryRun       bool  `json:"dry_run"`
	BoardID      int64 `json:"board_id,omitempty"`
	BoardCreated bool  `json:"board_created"`
	Members      int   `json:"members"`
	PinsFiled    int64 `json:"pins_filed"`

	BoardsDeleted      int   `json:"boards_deleted"`
	PermissionsRevoked int   `json:"permissions_revoked"`
	PinsUnfiled        int64 `json:"pins_unfiled"`
}

// Plan describes what Forward and Backward would touch.
type Plan struct {
	AnonymousUserID   int64 `json:"anonymous_user_id"`
	EligibleUsers     int   `json:"eligible_users"`
	MissingGrants     int   `json:"missing_grants"`
	UnfiledPins       int64 `json:"unfiled_pins"`
	Boards            int   `json:"boards"`
	DefaultBoardFound bool  `json:"default_board_found"`
}

// Pending reports whether Forward would change anything. MissingGrants counts
// members of the default board that lack view_board.
func (p Plan) Pending() bool {
	return !p.DefaultBoardFound || p.UnfiledPins > 0 || p.EligibleUsers > 0 || p.MissingGrants > 0
}

// Procedure runs the default board backfill.
type Procedure struct {
	runner Runner
	opts   Options
	logger *slog.Logger
}

// NewProcedure constructs a Procedure.
func NewProcedure(runner Runner, opts Options) *Procedure {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Procedure{runner: runner, opts: opts, logger: logger.With(slog.String("component", "backfill"))}
}

// Forward files every unfiled pin on the default board and grants eligible users access.
// Re-running reuses the existing default board and changes nothing further.
func (p *Procedure) Forward(ctx context.Context) (Result, error) {
	if p.opts.DryRun {
		p.logger.Info("dry run, forward skipped")
		return Result{DryRun: true}, nil
	}
	if p.opts.AnonymousUserID == 0 {
		return Result{}, ErrAnonymousUserNotConfigured
	}

	var res Result
	err := p.runner.Run(ctx, func(ctx context.Context, store Store, perms Permissions) error {
		res = Result{}
		boardID, found, err := store.FindBoardByName(ctx, DefaultBoardName)
		if err != nil {
			return fmt.Errorf("backfill: find default board: %w", err)
		}
		if !found {
			if boardID, err = store.CreateBoard(ctx, DefaultBoardName); err != nil {
				return fmt.Errorf("backfill: create default board: %w", err)
			}
			res.BoardCreated = true
		}
		res.BoardID = boardID
		obj := rbac.BoardObject(boardID)

		userIDs, err := store.EligibleUserIDs(ctx, p.opts.AnonymousUserID)
		if err != nil {
			return fmt.Errorf("backfill: list eligible users: %w", err)
		}
		for _, userID := range userIDs {
			if err := store.AddMember(ctx, boardID, userID); err != nil {
				return fmt.Errorf("backfill: add member %d: %w", userID, err)
			}
			if err := perms.Grant(ctx, shared.PermViewBoard, userID, obj); err != nil {
				return fmt.Errorf("backfill: grant view_board to %d: %w", userID, err)
			}
		}
		res.Members = len(userIDs)

		if res.PinsFiled, err = store.AssignUnfiledPins(ctx, boardID); err != nil {
			return fmt.Errorf("backfill: file pins: %w", err)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("forward failed", slog.Any("error", err))
		return Result{}, err
	}
	p.logger.Info("forward complete",
		slog.Int64("board_id", res.BoardID),
		slog.Bool("board_created", res.BoardCreated),
		slog.Int("members", res.Members),
		slog.Int64("pins_filed", res.PinsFiled))
	return res, nil
}

// Backward deletes every board after revoking each non-superuser member's
// permissions on it and sweeping any grant left on the board, then unfiles
// every pin.
func (p *Procedure) Backward(ctx context.Context) (Result, error) {
	if p.opts.DryRun {
		p.logger.Info("dry run, backward skipped")
		return Result{DryRun: true}, nil
	}

	var res Result
	err := p.runner.Run(ctx, func(ctx context.Context, store Store, perms Permissions) error {
		res = Result{}
		boardIDs, err := store.BoardIDs(ctx)
		if err != nil {
			return fmt.Errorf("backfill: list boards: %w", err)
		}
		for _, boardID := range boardIDs {
			obj := rbac.BoardObject(boardID)
			members, err := store.Members(ctx, boardID)
			if err != nil {
				return fmt.Errorf("backfill: list members of board %d: %w", boardID, err)
			}
			for _, m := range members {
				if m.IsSuperuser {
					continue
				}
				// Every permission goes, not just view_board.
				granted, err := perms.List(ctx, m.UserID, obj)
				if err != nil {
					return fmt.Errorf("backfill: list permissions of %d on board %d: %w", m.UserID, boardID, err)
				}
				for _, perm := range granted {
					if err := perms.Revoke(ctx, perm, m.UserID, obj); err != nil {
						return fmt.Errorf("backfill: revoke %s from %d on board %d: %w", perm, m.UserID, boardID, err)
					}
				}
				res.PermissionsRevoked += len(granted)
			}
			// Grants held by non-members or superusers would outlive the board.
			swept, err := perms.RevokeAll(ctx, obj)
			if err != nil {
				return fmt.Errorf("backfill: revoke remaining grants on board %d: %w", boardID, err)
			}
			res.PermissionsRevoked += int(swept)
			if err := store.ClearMembers(ctx, boardID); err != nil {
				return fmt.Errorf("backfill: clear members of board %d: %w", boardID, err)
			}
			if err := store.DeleteBoard(ctx, boardID); err != nil {
				return fmt.Errorf("backfill: delete board %d: %w", boardID, err)
			}
			res.BoardsDeleted++
		}

		// Separate bulk step: covers pins whose board vanished out of band.
		if res.PinsUnfiled, err = store.UnfileAllPins(ctx); err != nil {
			return fmt.Errorf("backfill: unfile pins: %w", err)
		}
		return nil
	})
	if err != nil {
		p.logger.Error("backward failed", slog.Any("error", err))
		return Result{}, err
	}
	p.logger.Info("backward complete",
		slog.Int("boards_deleted", res.BoardsDeleted),
		slog.Int("permissions_revoked", res.PermissionsRevoked),
		slog.Int64("pins_unfiled", res.PinsUnfiled))
	return res, nil
}

// Plan inspects the store without mutating it.
func (p *Procedure) Plan(ctx context.Context) (Plan, error) {
	if p.opts.AnonymousUserID == 0 {
		return Plan{}, ErrAnonymousUserNotConfigured
	}
	plan := Plan{AnonymousUserID: p.opts.AnonymousUserID}
	err := p.runner.Run(ctx, func(ctx context.Context, store Store, perms Permissions) error {
		boardID, found, err := store.FindBoardByName(ctx, DefaultBoardName)
		if err != nil {
			return err
		}
		plan.DefaultBoardFound = found
		userIDs, err := store.EligibleUserIDs(ctx, p.opts.AnonymousUserID)
		if err != nil {
			return err
		}
		if found {
			// Members holding view_board need nothing.
			members, err := store.Members(ctx, boardID)
			if err != nil {
				return err
			}
			onBoard := make(map[int64]bool, len(members))
			for _, m := range members {
				onBoard[m.UserID] = true
			}
			obj := rbac.BoardObject(boardID)
			for _, id := range userIDs {
				if !onBoard[id] {
					plan.EligibleUsers++
					continue
				}
				granted, err := perms.List(ctx, id, obj)
				if err != nil {
					return err
				}
				if !slices.Contains(granted, shared.PermViewBoard) {
					plan.MissingGrants++
				}
			}
		} else {
			plan.EligibleUsers = len(userIDs)
		}
		if plan.UnfiledPins, err = store.CountUnfiledPins(ctx); err != nil {
			return err
		}
		boards, err := store.BoardIDs(ctx)
		plan.Boards = len(boards)
		return err
	})
	if err != nil {
		return Plan{}, fmt.Errorf("backfill: plan: %w", err)
	}
	return plan, nil
}
