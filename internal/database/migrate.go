package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Migrator applies the SQL files in Dir with goose over a database/sql
// handle opened through the pgx stdlib driver.
type Migrator struct {
	DSN    string
	Dir    string
	Logger *slog.Logger
}

func NewMigrator(dsn, dir string, logger *slog.Logger) (*Migrator, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database url is required")
	}
	if dir == "" {
		return nil, fmt.Errorf("migrations directory is required")
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("locate migrations directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{DSN: dsn, Dir: dir, Logger: logger}, nil
}

func (m *Migrator) Up(ctx context.Context) error {
	return m.withDB(func(db *sql.DB) error {
		m.Logger.Info("applying migrations", "dir", m.Dir)
		if err := goose.UpContext(ctx, db, m.Dir); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		return nil
	})
}

// Down rolls back one migration, or down to target when target > 0.
func (m *Migrator) Down(ctx context.Context, target int64) error {
	return m.withDB(func(db *sql.DB) error {
		if target > 0 {
			m.Logger.Info("rolling back migrations", "target", target)
			if err := goose.DownToContext(ctx, db, m.Dir, target); err != nil {
				return fmt.Errorf("rollback to version %d: %w", target, err)
			}
			return nil
		}
		m.Logger.Info("rolling back latest migration")
		if err := goose.DownContext(ctx, db, m.Dir); err != nil {
			return fmt.Errorf("rollback latest migration: %w", err)
		}
		return nil
	})
}

func (m *Migrator) Status(ctx context.Context) error {
	return m.withDB(func(db *sql.DB) error {
		if err := goose.StatusContext(ctx, db, m.Dir); err != nil {
			return fmt.Errorf("migration status: %w", err)
		}
		return nil
	})
}

func (m *Migrator) withDB(fn func(*sql.DB) error) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("configure goose: %w", err)
	}

	db, err := sql.Open("pgx", m.DSN)
	if err != nil {
		return fmt.Errorf("open sql connection: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("ping sql connection: %w", err)
	}

	return fn(db)
}
