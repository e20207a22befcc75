package tags

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pinboard/pinboard/internal/platform/db"
)

// Repository provides PostgreSQL persistence for tags and tagged items.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// WithTx returns a repository bound to tx.
func (r *Repository) WithTx(tx pgx.Tx) *Repository {
	return &Repository{db: tx}
}

func scanTag(row pgx.Row) (Tag, error) {
	var t Tag
	if err := row.Scan(&t.ID, &t.Name, &t.Slug); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Tag{}, ErrTagNotFound
		}
		return Tag{}, err
	}
	return t, nil
}

// FindByName looks up a tag by exact name.
func (r *Repository) FindByName(ctx context.Context, name string) (Tag, error) {
	return scanTag(r.db.QueryRow(ctx, `SELECT id, name, slug FROM tags WHERE name = $1 ORDER BY id LIMIT 1`, name))
}

// FindBySlug looks up a tag by slug.
func (r *Repository) FindBySlug(ctx context.Context, slug string) (Tag, error) {
	return scanTag(r.db.QueryRow(ctx, `SELECT id, name, slug FROM tags WHERE slug = $1`, slug))
}

// Insert creates a tag. A slug collision surfaces as a unique violation.
func (r *Repository) Insert(ctx context.Context, name, slug string) (Tag, error) {
	return scanTag(r.db.QueryRow(ctx, `INSERT INTO tags (name, slug) VALUES ($1, $2) RETURNING id, name, slug`, name, slug))
}

// Attach links a tag to an object, ignoring duplicates.
func (r *Repository) Attach(ctx context.Context, item TaggedItem) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tagged_items (content_type, object_id, tag_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (content_type, object_id, tag_id) DO NOTHING`,
		item.ContentType, item.ObjectID, item.TagID)
	return err
}

// Detach unlinks a tag from an object.
func (r *Repository) Detach(ctx context.Context, item TaggedItem) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tagged_items WHERE content_type = $1 AND object_id = $2 AND tag_id = $3`,
		item.ContentType, item.ObjectID, item.TagID)
	return err
}

// DetachAll unlinks every tag from an object.
func (r *Repository) DetachAll(ctx context.Context, contentType string, objectID int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM tagged_items WHERE content_type = $1 AND object_id = $2`, contentType, objectID)
	return err
}

// ForObject lists the tags attached to an object ordered by name.
func (r *Repository) ForObject(ctx context.Context, contentType string, objectID int64) ([]Tag, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.id, t.name, t.slug
		FROM tags t
		JOIN tagged_items ti ON ti.tag_id = t.id
		WHERE ti.content_type = $1 AND ti.object_id = $2
		ORDER BY t.name`, contentType, objectID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Tag])
}

// ObjectIDs lists the ids of objects of contentType carrying tagID.
func (r *Repository) ObjectIDs(ctx context.Context, contentType string, tagID int64) ([]int64, error) {
	rows, err := r.db.Query(ctx, `
		SELECT object_id FROM tagged_items
		WHERE content_type = $1 AND tag_id = $2
		ORDER BY object_id`, contentType, tagID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

var _ Store = (*Repository)(nil)
