package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/nafauto/internal/automation"
	"github.com/xkilldash9x/nafauto/internal/browser"
	"github.com/xkilldash9x/nafauto/internal/config"
	"github.com/xkilldash9x/nafauto/internal/store"
)

const connectTimeout = 15 * time.Second

// components holds the long-lived dependencies a command needs.
type components struct {
	pool   *pgxpool.Pool
	Store  *store.Store
	Runner *automation.Runner
}

// connectStore opens the database pool and wraps it in a Store.
func connectStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("database URL is not set (NAFAUTO_DATABASE_URL or database.url)")
	}

	initCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.New(initCtx, cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	c := &components{pool: pool}

	st, err := store.New(initCtx, pool, logger)
	if err != nil {
		c.Shutdown()
		return nil, err
	}
	c.Store = st
	logger.Info("Database connection established.")
	return c, nil
}

// initializeComponents wires the store, browser launcher and submission pipeline.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*components, error) {
	c, err := connectStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	driverOpts, err := automation.DriverOptionsFromConfig(cfg.Automation)
	if err != nil {
		c.Shutdown()
		return nil, fmt.Errorf("invalid automation settings: %w", err)
	}

	launcher := browser.NewLauncher(cfg.Browser, logger)
	driver := automation.NewDriver(driverOpts, c.Store, logger)
	coordinator := automation.NewCoordinator(launcher, driver, logger)
	c.Runner = automation.NewRunner(c.Store, coordinator, logger)
	return c, nil
}

// Shutdown releases the database pool.
func (c *components) Shutdown() {
	if c.pool != nil {
		c.pool.Close()
	}
}
