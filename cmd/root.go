package cmd

import (
	"fmt"

	"github.com/adarshvs/Recon-MCP/internal/config"
	"github.com/urfave/cli/v3"
)

var version = "dev"

func App() *cli.Command {
	return &cli.Command{
		Name:    "recon",
		Version: version,
		Usage:   "Run ordered recon command plans and stream their output.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to TOML config file",
				Sources: cli.EnvVars("RECON_CONFIG_PATH"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error), overrides logging.level",
			},
			&cli.StringFlag{
				Name:  "database-url",
				Usage: "PostgreSQL connection string, overrides database.url",
			},
		},
		Commands: []*cli.Command{
			serveCmd(),
			runCmd(),
			migrateCmd(),
		},
	}
}

// loadConfig loads the config file named by --config and applies the
// global flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if v := cmd.String("log-level"); v != "" {
		cfg.Logging.Level = v
	}
	if v := cmd.String("database-url"); v != "" {
		cfg.Database.URL = v
	}
	return cfg, nil
}
