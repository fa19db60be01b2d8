package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/subcommands"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/odyssey-erp/odyssey-gl/internal/app"
	"github.com/odyssey-erp/odyssey-gl/migrations"
)

type migrateCmd struct {
	down bool
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply the database schema" }
func (*migrateCmd) Usage() string {
	return `migrate [-down]

Apply every pending migration, or roll all of them back with -down.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.down, "down", false, "roll back every migration")
}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := app.LoadConfig()
	if err != nil {
		return fail("migrate: %v", err)
	}
	logger := app.NewLogger(cfg)
	applied, err := runMigrations(ctx, cfg.PGDSN, c.down)
	if err != nil {
		logger.Error("migrate", slog.Any("error", err))
		return subcommands.ExitFailure
	}
	if !applied {
		logger.Info("no new migrations to apply")
		return subcommands.ExitSuccess
	}
	logger.Info("migrations applied", slog.Bool("down", c.down))
	return subcommands.ExitSuccess
}

func runMigrations(ctx context.Context, dsn string, down bool) (bool, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return false, err
	}
	defer conn.Close()
	if err := conn.PingContext(ctx); err != nil {
		return false, fmt.Errorf("ping: %w", err)
	}
	driver, err := postgres.WithInstance(conn, &postgres.Config{})
	if err != nil {
		return false, fmt.Errorf("postgres driver: %w", err)
	}
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return false, fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return false, err
	}
	defer m.Close()
	if down {
		err = m.Down()
	} else {
		err = m.Up()
	}
	if errors.Is(err, migrate.ErrNoChange) {
		return false, nil
	}
	return err == nil, err
}
