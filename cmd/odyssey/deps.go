package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-gl/internal/app"
	"github.com/odyssey-erp/odyssey-gl/internal/consol/fx"
	"github.com/odyssey-erp/odyssey-gl/internal/platform/db"
)

// deps bundles the state shared by every command.
type deps struct {
	cfg    *app.Config
	logger *slog.Logger
	pool   *pgxpool.Pool
}

func openDeps(ctx context.Context) (*deps, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := app.NewLogger(cfg)
	pool, err := db.New(ctx, cfg.PGDSN, db.WithMaxConns(cfg.PGMaxConns), db.WithApplicationName("odyssey"))
	if err != nil {
		return nil, err
	}
	return &deps{cfg: cfg, logger: logger, pool: pool}, nil
}

func (d *deps) Close() {
	d.pool.Close()
}

// rates builds the currency service and loads the rate table.
func (d *deps) rates(ctx context.Context) (*fx.Service, error) {
	svc := fx.NewService(fx.NewRepository(d.pool), fx.NewStore(), d.cfg.FXAnchorCurrency, d.logger)
	if err := svc.Refresh(ctx); err != nil {
		return nil, err
	}
	return svc, nil
}
