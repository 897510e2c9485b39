package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sclint/support-desk/internal/persistence"
)

var (
	migrateDown   bool
	migrateSteps  int
	migrateStatus bool
)

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, logger, err := loadBase()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.Postgres.DSN == "" {
		return fmt.Errorf("POSTGRES_DSN is required for migrations")
	}
	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return fmt.Errorf("failed to connect postgres: %w", err)
	}
	defer pg.Close()

	if migrateStatus {
		pending, err := persistence.PendingMigrations(pg.PoolHandle())
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("schema is up to date")
			return nil
		}
		for _, id := range pending {
			fmt.Println("pending:", id)
		}
		return nil
	}

	dir := persistence.MigrateUp
	if migrateDown {
		dir = persistence.MigrateDown
		if migrateSteps == 0 {
			migrateSteps = 1
		}
	}
	n, err := persistence.RunMigrations(ctx, pg.PoolHandle(), dir, migrateSteps, logger)
	if err != nil {
		return err
	}
	logger.Info("migrate finished", zap.Int("applied", n), zap.Bool("down", migrateDown))
	return nil
}
