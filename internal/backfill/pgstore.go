package backfill

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/pinboard/pinboard/internal/platform/db"
	"github.com/pinboard/pinboard/internal/rbac"
)

// PGRunner runs the procedure inside one repeatable-read transaction.
type PGRunner struct {
	pool db.TxBeginner
}

// NewPGRunner constructs a runner over a pool.
func NewPGRunner(pool db.TxBeginner) *PGRunner {
	return &PGRunner{pool: pool}
}

// Run implements Runner.
func (r *PGRunner) Run(ctx context.Context, fn func(context.Context, Store, Permissions) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgStore{db: tx}, rbac.NewService(rbac.NewRepository(tx)))
	})
}

type pgStore struct {
	db db.DBTX
}

func (s *pgStore) FindBoardByName(ctx context.Context, name string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRow(ctx, `SELECT id FROM boards WHERE name = $1 ORDER BY id LIMIT 1`, name).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func (s *pgStore) CreateBoard(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.db.QueryRow(ctx, `INSERT INTO boards (name, description, settings) VALUES ($1, NULL, '{}'::jsonb) RETURNING id`, name).Scan(&id)
	return id, err
}

func (s *pgStore) EligibleUserIDs(ctx context.Context, anonymousID int64) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM users WHERE id <> $1 AND NOT is_superuser ORDER BY id`, anonymousID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *pgStore) AddMember(ctx context.Context, boardID, userID int64) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO board_members (board_id, user_id) VALUES ($1, $2)
		ON CONFLICT (board_id, user_id) DO NOTHING`, boardID, userID)
	return err
}

func (s *pgStore) AssignUnfiledPins(ctx context.Context, boardID int64) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE pins SET board_id = $1 WHERE board_id IS NULL`, boardID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) BoardIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM boards ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *pgStore) Members(ctx context.Context, boardID int64) ([]Member, error) {
	rows, err := s.db.Query(ctx, `
		SELECT bm.user_id, u.is_superuser
		FROM board_members bm
		JOIN users u ON u.id = bm.user_id
		WHERE bm.board_id = $1
		ORDER BY bm.user_id`, boardID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[Member])
}

func (s *pgStore) ClearMembers(ctx context.Context, boardID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM board_members WHERE board_id = $1`, boardID)
	return err
}

func (s *pgStore) DeleteBoard(ctx context.Context, boardID int64) error {
	_, err := s.db.Exec(ctx, `DELETE FROM boards WHERE id = $1`, boardID)
	return err
}

func (s *pgStore) UnfileAllPins(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `UPDATE pins SET board_id = NULL WHERE board_id IS NOT NULL`)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *pgStore) CountUnfiledPins(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM pins WHERE board_id IS NULL`).Scan(&n)
	return n, err
}

var (
	_ Store  = (*pgStore)(nil)
	_ Runner = (*PGRunner)(nil)
)
