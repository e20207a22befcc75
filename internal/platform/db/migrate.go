package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrator applies the embedded schema migrations with goose.
type Migrator struct {
	db *sql.DB
}

// OpenMigrator opens a database/sql handle over the pgx driver for goose.
func OpenMigrator(dsn string) (*Migrator, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: open migrator: %w", err)
	}
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("platform/db: goose dialect: %w", err)
	}
	return &Migrator{db: conn}, nil
}

// Up applies all pending migrations.
func (m *Migrator) Up(ctx context.Context) error {
	if err := goose.UpContext(ctx, m.db, "migrations"); err != nil {
		return fmt.Errorf("platform/db: migrate up: %w", err)
	}
	return nil
}

// Down rolls back the most recent migration.
func (m *Migrator) Down(ctx context.Context) error {
	if err := goose.DownContext(ctx, m.db, "migrations"); err != nil {
		return fmt.Errorf("platform/db: migrate down: %w", err)
	}
	return nil
}

// Status logs the applied state of every migration.
func (m *Migrator) Status(ctx context.Context) error {
	return goose.StatusContext(ctx, m.db, "migrations")
}

// Version returns the current schema version.
func (m *Migrator) Version(ctx context.Context) (int64, error) {
	return goose.GetDBVersionContext(ctx, m.db)
}

// Close releases the underlying handle.
func (m *Migrator) Close() error {
	return m.db.Close()
}
