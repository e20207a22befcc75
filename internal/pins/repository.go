package pins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pinboard/pinboard/internal/images"
	"github.com/pinboard/pinboard/internal/platform/db"
	"github.com/pinboard/pinboard/internal/rbac"
	"github.com/pinboard/pinboard/internal/shared"
	"github.com/pinboard/pinboard/internal/tags"
)

// Repository provides PostgreSQL persistence for pins.
type Repository struct {
	pool *pgxpool.Pool
	q    queries
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, q: queries{db: pool}}
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	Insert(ctx context.Context, p Pin) (Pin, error)
	Get(ctx context.Context, id int64) (Pin, error)
	Update(ctx context.Context, p Pin) error
	Delete(ctx context.Context, id int64) error
	Permissions() Permissions
	Tags() Tagger
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{
			queries: queries{db: tx},
			perms:   rbac.NewService(rbac.NewRepository(tx)),
			tags:    tags.NewService(tags.NewRepository(tx)),
		})
	})
}

// Get loads a pin with its image and tags.
func (r *Repository) Get(ctx context.Context, id int64) (Pin, error) {
	return r.q.Get(ctx, id)
}

// List returns pins matching filter, most recent first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Pin, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if filter.BoardID != nil {
		where = append(where, "p.board_id = "+arg(*filter.BoardID))
	}
	if filter.SubmitterID != nil {
		where = append(where, "p.submitter_id = "+arg(*filter.SubmitterID))
	}
	if filter.Tag != "" {
		ref := arg(filter.Tag)
		where = append(where, `EXISTS (
			SELECT 1 FROM tagged_items ti JOIN tags t ON t.id = ti.tag_id
			WHERE ti.content_type = 'pin' AND ti.object_id = p.id AND (t.name = `+ref+` OR t.slug = `+ref+`))`)
	}
	sql := pinSelect
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	limit := filter.Page.Limit
	if limit <= 0 {
		limit = shared.PageFromQuery(nil).Limit
	}
	sql += " ORDER BY p.published DESC, p.id DESC LIMIT " + arg(limit) + " OFFSET " + arg(filter.Page.Offset)

	rows, err := r.q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Pin, error) {
		return scanPin(row)
	})
}

type txRepo struct {
	queries
	perms *rbac.Service
	tags  *tags.Service
}

func (t *txRepo) Permissions() Permissions { return t.perms }

func (t *txRepo) Tags() Tagger { return t.tags }

type queries struct {
	db db.DBTX
}

const pinSelect = `
	SELECT p.id, p.submitter_id, p.board_id, p.url, p.origin, p.description, p.image_id, p.published,
	       i.id, i.file, i.width, i.height, i.created_at,
	       ARRAY(
	           SELECT t.name FROM tags t JOIN tagged_items ti ON ti.tag_id = t.id
	           WHERE ti.content_type = 'pin' AND ti.object_id = p.id
	           ORDER BY t.name
	       ) AS tags
	FROM pins p
	JOIN images i ON i.id = p.image_id`

func scanPin(row pgx.Row) (Pin, error) {
	var (
		p   Pin
		img images.Image
	)
	err := row.Scan(&p.ID, &p.SubmitterID, &p.BoardID, &p.URL, &p.Origin, &p.Description, &p.ImageID, &p.Published,
		&img.ID, &img.File, &img.Width, &img.Height, &img.CreatedAt, &p.Tags)
	if errors.Is(err, pgx.ErrNoRows) {
		return Pin{}, ErrPinNotFound
	}
	if err != nil {
		return Pin{}, err
	}
	p.Image = &img
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p, nil
}

func (q queries) Insert(ctx context.Context, p Pin) (Pin, error) {
	err := q.db.QueryRow(ctx, `
		INSERT INTO pins (submitter_id, board_id, url, origin, description, image_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, published`,
		p.SubmitterID, p.BoardID, p.URL, p.Origin, p.Description, p.ImageID).Scan(&p.ID, &p.Published)
	return p, err
}

func (q queries) Get(ctx context.Context, id int64) (Pin, error) {
	return scanPin(q.db.QueryRow(ctx, pinSelect+" WHERE p.id = $1", id))
}

// Update writes the editable columns. Published is never rewritten.
func (q queries) Update(ctx context.Context, p Pin) error {
	tag, err := q.db.Exec(ctx, `UPDATE pins SET board_id = $2, description = $3 WHERE id = $1`, p.ID, p.BoardID, p.Description)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPinNotFound
	}
	return nil
}

func (q queries) Delete(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM pins WHERE id = $1`, id)
	return err
}

var (
	_ TxRepository   = (*txRepo)(nil)
	_ RepositoryPort = (*Repository)(nil)
)
