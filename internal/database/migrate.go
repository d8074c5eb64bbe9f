package database

import (
	"context"
	"embed"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrationLockKey serializes concurrent migrators on the same database.
const migrationLockKey = 0x7265636f6e

type migration struct {
	version  int
	filename string
}

// Migrate runs all pending migrations. Simple sequential approach using
// a migrations tracking table.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	return withMigrationLock(ctx, pool, func(conn *pgxpool.Conn) error {
		current, err := currentVersion(ctx, conn)
		if err != nil {
			return err
		}

		pending, err := listMigrations(".up.sql")
		if err != nil {
			return err
		}
		for _, m := range pending {
			if m.version <= current {
				continue
			}
			err := apply(ctx, conn, m, func(tx pgx.Tx) error {
				_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", m.version)
				return err
			})
			if err != nil {
				return err
			}
			log.Info().Int("version", m.version).Str("file", m.filename).Msg("applied migration")
		}
		return nil
	})
}

// MigrateDown rolls back the most recently applied migration.
func MigrateDown(ctx context.Context, pool *pgxpool.Pool) error {
	return withMigrationLock(ctx, pool, func(conn *pgxpool.Conn) error {
		current, err := currentVersion(ctx, conn)
		if err != nil {
			return err
		}
		if current == 0 {
			log.Info().Msg("no migrations to roll back")
			return nil
		}

		downs, err := listMigrations(".down.sql")
		if err != nil {
			return err
		}
		for _, m := range downs {
			if m.version != current {
				continue
			}
			err := apply(ctx, conn, m, func(tx pgx.Tx) error {
				_, err := tx.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", m.version)
				return err
			})
			if err != nil {
				return err
			}
			log.Info().Int("version", m.version).Str("file", m.filename).Msg("rolled back migration")
			return nil
		}
		return fmt.Errorf("no down migration for version %d", current)
	})
}

func withMigrationLock(ctx context.Context, pool *pgxpool.Pool, fn func(conn *pgxpool.Conn) error) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("lock migrations: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.WithoutCancel(ctx), "SELECT pg_advisory_unlock($1)", migrationLockKey); err != nil {
			log.Warn().Err(err).Msg("unlock migrations")
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	return fn(conn)
}

func currentVersion(ctx context.Context, conn *pgxpool.Conn) (int, error) {
	var v int
	err := conn.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("get current version: %w", err)
	}
	return v, nil
}

func listMigrations(suffix string) ([]migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var out []migration
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), suffix) {
			continue
		}
		var version int
		if _, err := fmt.Sscanf(entry.Name(), "%03d_", &version); err != nil {
			continue
		}
		out = append(out, migration{version: version, filename: entry.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

func apply(ctx context.Context, conn *pgxpool.Conn, m migration, record func(pgx.Tx) error) error {
	sql, err := migrationsFS.ReadFile("migrations/" + m.filename)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", m.filename, err)
	}

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx for migration %d: %w", m.version, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, string(sql)); err != nil {
		return fmt.Errorf("apply migration %d: %w", m.version, err)
	}
	if err := record(tx); err != nil {
		return fmt.Errorf("record migration %d: %w", m.version, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.version, err)
	}
	return nil
}
