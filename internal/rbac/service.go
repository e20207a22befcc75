package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pinboard/pinboard/internal/platform/db"
)

var (
	// ErrUnknownSubject indicates the grant subject does not resolve to a user.
	ErrUnknownSubject = errors.New("rbac: subject does not resolve to a user")
	// ErrInvalidGrant indicates an empty permission name or object reference.
	ErrInvalidGrant = errors.New("rbac: invalid grant")
)

// Store is the persistence port used by Service.
type Store interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	Insert(ctx context.Context, g Grant) error
	Delete(ctx context.Context, g Grant) error
	DeleteForObject(ctx context.Context, obj Object) (int64, error)
	ListForUser(ctx context.Context, userID int64, obj Object) ([]string, error)
	ListForObject(ctx context.Context, obj Object) ([]Grant, error)
	ObjectIDs(ctx context.Context, userID int64, perm, objectType string) ([]int64, error)
}

// Service grants, revokes and checks object-level permissions.
type Service struct {
	store Store
}

// NewService constructs a Service backed by store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// Grant gives userID perm on obj. Granting twice is a no-op.
func (s *Service) Grant(ctx context.Context, perm string, userID int64, obj Object) error {
	g, err := s.resolve(ctx, perm, userID, obj)
	if err != nil {
		return err
	}
	if err := s.store.Insert(ctx, g); err != nil {
		if db.IsForeignKeyViolation(err) {
			return fmt.Errorf("%w: user %d", ErrUnknownSubject, userID)
		}
		return fmt.Errorf("rbac: grant %s on %s: %w", perm, obj, err)
	}
	return nil
}

// Revoke removes perm from userID on obj. Revoking a missing grant is a no-op.
func (s *Service) Revoke(ctx context.Context, perm string, userID int64, obj Object) error {
	g, err := s.resolve(ctx, perm, userID, obj)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, g); err != nil {
		return fmt.Errorf("rbac: revoke %s on %s: %w", perm, obj, err)
	}
	return nil
}

// List returns the permissions userID holds on obj, sorted by name.
func (s *Service) List(ctx context.Context, userID int64, obj Object) ([]string, error) {
	if err := s.ensureSubject(ctx, userID); err != nil {
		return nil, err
	}
	perms, err := s.store.ListForUser(ctx, userID, obj)
	if err != nil {
		return nil, fmt.Errorf("rbac: list on %s: %w", obj, err)
	}
	return perms, nil
}

// Grants returns all grants on obj.
func (s *Service) Grants(ctx context.Context, obj Object) ([]Grant, error) {
	return s.store.ListForObject(ctx, obj)
}

// RevokeAll deletes every grant referencing obj and reports how many were removed.
func (s *Service) RevokeAll(ctx context.Context, obj Object) (int64, error) {
	n, err := s.store.DeleteForObject(ctx, obj)
	if err != nil {
		return 0, fmt.Errorf("rbac: revoke all on %s: %w", obj, err)
	}
	return n, nil
}

// Has reports whether p may perform perm on obj. Superusers hold every permission.
func (s *Service) Has(ctx context.Context, p Principal, perm string, obj Object) (bool, error) {
	if p == nil || p.GetID() <= 0 {
		return false, nil
	}
	if p.IsSuperUser() {
		return true, nil
	}
	perms, err := s.store.ListForUser(ctx, p.GetID(), obj)
	if err != nil {
		return false, err
	}
	for _, granted := range perms {
		if granted == perm {
			return true, nil
		}
	}
	return false, nil
}

// ObjectIDs lists ids of objectType on which userID holds perm.
func (s *Service) ObjectIDs(ctx context.Context, userID int64, perm, objectType string) ([]int64, error) {
	return s.store.ObjectIDs(ctx, userID, perm, objectType)
}

func (s *Service) resolve(ctx context.Context, perm string, userID int64, obj Object) (Grant, error) {
	perm = strings.TrimSpace(perm)
	if perm == "" || obj.Type == "" || obj.ID <= 0 {
		return Grant{}, ErrInvalidGrant
	}
	if err := s.ensureSubject(ctx, userID); err != nil {
		return Grant{}, err
	}
	return Grant{UserID: userID, Permission: perm, Object: obj}, nil
}

func (s *Service) ensureSubject(ctx context.Context, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user %d", ErrUnknownSubject, userID)
	}
	ok, err := s.store.UserExists(ctx, userID)
	if err != nil {
		return fmt.Errorf("rbac: lookup user %d: %w", userID, err)
	}
	if !ok {
		return fmt.Errorf("%w: user %d", ErrUnknownSubject, userID)
	}
	return nil
}
