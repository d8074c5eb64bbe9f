package cmd

import (
	"context"
	"fmt"

	"github.com/adarshvs/Recon-MCP/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v3"
)

func migrateCmd() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run database migrations",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply all pending migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withPool(ctx, cmd, database.Migrate)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back the last migration",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return withPool(ctx, cmd, database.MigrateDown)
				},
			},
		},
	}
}

func withPool(ctx context.Context, cmd *cli.Command, fn func(context.Context, *pgxpool.Pool) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return fmt.Errorf("database URL is required (set RECON_DATABASE_URL or --database-url)")
	}

	pool, err := database.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConnections)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool)
}
