package persistence

import (
	"context"
	"embed"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationsFS embed.FS

const migrationsTable = "schema_migrations"

// MigrationDirection selects which way RunMigrations moves the schema.
type MigrationDirection = migrate.MigrationDirection

const (
	MigrateUp   = migrate.Up
	MigrateDown = migrate.Down
)

func migrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationsFS,
		Root:       "migrations",
	}
}

// RunMigrations applies the embedded SQL migrations. max limits how many are
// applied, zero meaning all pending.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, dir MigrationDirection, max int, logger *zap.Logger) (int, error) {
	if pool == nil {
		logger.Warn("no postgres pool available; skipping migrations")
		return 0, nil
	}

	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	migrate.SetTable(migrationsTable)

	type result struct {
		n   int
		err error
	}
	done := make(chan result, 1)
	go func() {
		n, err := migrate.ExecMax(db, "postgres", migrationSource(), dir, max)
		done <- result{n: n, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("migration interrupted: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return res.n, fmt.Errorf("db migrations have failed: %w", res.err)
		}
		logger.Info("migrations applied", zap.Int("count", res.n), zap.String("direction", directionName(dir)))
		return res.n, nil
	}
}

// PendingMigrations lists embedded migrations not yet recorded in the database.
func PendingMigrations(pool *pgxpool.Pool) ([]string, error) {
	if pool == nil {
		return nil, errors.New("postgres pool not configured")
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	migrate.SetTable(migrationsTable)
	planned, _, err := migrate.PlanMigration(db, "postgres", migrationSource(), migrate.Up, 0)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(planned))
	for _, m := range planned {
		ids = append(ids, m.Id)
	}
	return ids, nil
}

func directionName(dir MigrationDirection) string {
	if dir == migrate.Down {
		return "down"
	}
	return "up"
}
