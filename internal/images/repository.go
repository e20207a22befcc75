package images

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pinboard/pinboard/internal/platform/db"
)

// Repository persists Image rows.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a Repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

// Create inserts an image row.
func (r *Repository) Create(ctx context.Context, img Image) (Image, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO images (file, width, height)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, img.File, img.Width, img.Height).Scan(&img.ID, &img.CreatedAt)
	return img, err
}

// Get fetches an image by id.
func (r *Repository) Get(ctx context.Context, id int64) (Image, error) {
	var img Image
	err := r.db.QueryRow(ctx, `SELECT id, file, width, height, created_at FROM images WHERE id = $1`, id).
		Scan(&img.ID, &img.File, &img.Width, &img.Height, &img.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Image{}, ErrImageNotFound
	}
	return img, err
}

// Delete removes an image row.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM images WHERE id = $1`, id)
	return err
}

var _ Store = (*Repository)(nil)
