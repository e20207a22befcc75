package rbac

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pinboard/pinboard/internal/platform/db"
)

// Repository stores object permissions in PostgreSQL.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a Repository over a pool or transaction.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

// UserExists reports whether the user id resolves to an account.
func (r *Repository) UserExists(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists)
	return exists, err
}

// Insert adds a grant, ignoring duplicates.
func (r *Repository) Insert(ctx context.Context, g Grant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO object_permissions (user_id, permission, object_type, object_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, permission, object_type, object_id) DO NOTHING`,
		g.UserID, g.Permission, g.Object.Type, g.Object.ID)
	return err
}

// Delete removes a grant if present.
func (r *Repository) Delete(ctx context.Context, g Grant) error {
	_, err := r.db.Exec(ctx, `
		DELETE FROM object_permissions
		WHERE user_id = $1 AND permission = $2 AND object_type = $3 AND object_id = $4`,
		g.UserID, g.Permission, g.Object.Type, g.Object.ID)
	return err
}

// DeleteForObject removes every grant referencing obj.
func (r *Repository) DeleteForObject(ctx context.Context, obj Object) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM object_permissions WHERE object_type = $1 AND object_id = $2`, obj.Type, obj.ID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListForUser returns the permission names userID holds on obj.
func (r *Repository) ListForUser(ctx context.Context, userID int64, obj Object) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT permission FROM object_permissions
		WHERE user_id = $1 AND object_type = $2 AND object_id = $3
		ORDER BY permission`, userID, obj.Type, obj.ID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

// ListForObject returns every grant on obj.
func (r *Repository) ListForObject(ctx context.Context, obj Object) ([]Grant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, permission FROM object_permissions
		WHERE object_type = $1 AND object_id = $2
		ORDER BY user_id, permission`, obj.Type, obj.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var grants []Grant
	for rows.Next() {
		g := Grant{Object: obj}
		if err := rows.Scan(&g.UserID, &g.Permission); err != nil {
			return nil, err
		}
		grants = append(grants, g)
	}
	return grants, rows.Err()
}

// ObjectIDs returns ids of objectType on which userID holds perm.
func (r *Repository) ObjectIDs(ctx context.Context, userID int64, perm, objectType string) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT object_id FROM object_permissions
		WHERE user_id = $1 AND permission = $2 AND object_type = $3
		ORDER BY object_id`, userID, perm, objectType)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

var _ Store = (*Repository)(nil)
