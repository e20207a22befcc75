package boards

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pinboard/pinboard/internal/platform/db"
	"github.com/pinboard/pinboard/internal/rbac"
)

// Repository provides PostgreSQL persistence for boards.
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
	Insert(ctx context.Context, b Board) (Board, error)
	Get(ctx context.Context, id int64) (Board, error)
	Update(ctx context.Context, b Board) error
	Delete(ctx context.Context, id int64) error
	AddMember(ctx context.Context, boardID, userID int64) error
	RemoveMember(ctx context.Context, boardID, userID int64) error
	ClearMembers(ctx context.Context, boardID int64) error
	ClearPins(ctx context.Context, boardID int64) (int64, error)
	Permissions() Permissions
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{queries: queries{db: tx}, perms: rbac.NewService(rbac.NewRepository(tx))})
	})
}

// Get loads a board with its members.
func (r *Repository) Get(ctx context.Context, id int64) (Board, error) {
	return r.q.Get(ctx, id)
}

// ListAll returns every board ordered by id.
func (r *Repository) ListAll(ctx context.Context) ([]Board, error) {
	return r.q.list(ctx, `SELECT id, name, description, settings FROM boards ORDER BY id`)
}

// ListVisible returns boards on which userID holds view_board.
func (r *Repository) ListVisible(ctx context.Context, userID int64) ([]Board, error) {
	return r.q.list(ctx, `
		SELECT b.id, b.name, b.description, b.settings
		FROM boards b
		WHERE EXISTS (
			SELECT 1 FROM object_permissions op
			WHERE op.object_type = 'board' AND op.object_id = b.id
			  AND op.permission = 'view_board' AND op.user_id = $1
		)
		ORDER BY b.id`, userID)
}

type txRepo struct {
	queries
	perms *rbac.Service
}

func (t *txRepo) Permissions() Permissions { return t.perms }

type queries struct {
	db db.DBTX
}

func (q queries) Insert(ctx context.Context, b Board) (Board, error) {
	if b.Settings == nil {
		b.Settings = Settings{}
	}
	err := q.db.QueryRow(ctx, `
		INSERT INTO boards (name, description, settings)
		VALUES ($1, $2, $3)
		RETURNING id`, b.Name, b.Description, b.Settings).Scan(&b.ID)
	return b, err
}

func (q queries) Get(ctx context.Context, id int64) (Board, error) {
	var b Board
	err := q.db.QueryRow(ctx, `SELECT id, name, description, settings FROM boards WHERE id = $1`, id).
		Scan(&b.ID, &b.Name, &b.Description, &b.Settings)
	if errors.Is(err, pgx.ErrNoRows) {
		return Board{}, ErrBoardNotFound
	}
	if err != nil {
		return Board{}, err
	}
	b.Members, err = q.members(ctx, id)
	return b, err
}

func (q queries) Update(ctx context.Context, b Board) error {
	tag, err := q.db.Exec(ctx, `UPDATE boards SET name = $2, description = $3, settings = $4 WHERE id = $1`,
		b.ID, b.Name, b.Description, b.Settings)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrBoardNotFound
	}
	return nil
}

func (q queries) Delete(ctx context.Context, id int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM boards WHERE id = $1`, id)
	return err
}

func (q queries) AddMember(ctx context.Context, boardID, userID int64) error {
	_, err := q.db.Exec(ctx, `
		INSERT INTO board_members (board_id, user_id) VALUES ($1, $2)
		ON CONFLICT (board_id, user_id) DO NOTHING`, boardID, userID)
	return err
}

func (q queries) RemoveMember(ctx context.Context, boardID, userID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM board_members WHERE board_id = $1 AND user_id = $2`, boardID, userID)
	return err
}

func (q queries) ClearMembers(ctx context.Context, boardID int64) error {
	_, err := q.db.Exec(ctx, `DELETE FROM board_members WHERE board_id = $1`, boardID)
	return err
}

func (q queries) ClearPins(ctx context.Context, boardID int64) (int64, error) {
	tag, err := q.db.Exec(ctx, `UPDATE pins SET board_id = NULL WHERE board_id = $1`, boardID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (q queries) members(ctx context.Context, boardID int64) ([]int64, error) {
	rows, err := q.db.Query(ctx, `SELECT user_id FROM board_members WHERE board_id = $1 ORDER BY user_id`, boardID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (q queries) list(ctx context.Context, sql string, args ...any) ([]Board, error) {
	rows, err := q.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	boards, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Board, error) {
		var b Board
		err := row.Scan(&b.ID, &b.Name, &b.Description, &b.Settings)
		return b, err
	})
	if err != nil {
		return nil, err
	}
	for i := range boards {
		if boards[i].Members, err = q.members(ctx, boards[i].ID); err != nil {
			return nil, err
		}
	}
	return boards, nil
}

var (
	_ TxRepository   = (*txRepo)(nil)
	_ RepositoryPort = (*Repository)(nil)
)
