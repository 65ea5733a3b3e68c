package cli

import (
	"fmt"

	"github.com/servetable/servetable/internal/config"
	"github.com/servetable/servetable/internal/migrations"
	"github.com/servetable/servetable/internal/pgmanager"
	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <up|down>",
	Short: "Apply or roll back the database schema",
	Long: `Apply (up) or roll back (down) the embedded servetable schema.
With no database URL configured, the managed PostgreSQL instance is started
for the duration of the command.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(migrations.Up), string(migrations.Down)},
	RunE:      runMigrate,
}

func init() {
	migrateCmd.Flags().String("database-url", "", "PostgreSQL connection URL")
	migrateCmd.Flags().String("config", "", "Path to servetable.toml config file")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	direction, err := migrations.ParseDirection(args[0])
	if err != nil {
		return err
	}

	flags := map[string]string{}
	if v, _ := cmd.Flags().GetString("database-url"); v != "" {
		flags["database-url"] = v
	}
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, _, _, closeLog := newLogger(cfg.Logging.Level, cfg.Logging.Format)
	defer closeLog()

	if cfg.Database.URL == "" {
		mgr := pgmanager.New(pgmanager.Config{
			Port:    uint32(cfg.Database.EmbeddedPort),
			DataDir: cfg.Database.EmbeddedDataDir,
			Logger:  logger,
		})
		url, err := mgr.Start(cmd.Context())
		if err != nil {
			return fmt.Errorf("starting managed postgres: %w", err)
		}
		defer func() {
			if err := mgr.Stop(); err != nil {
				logger.Error("error stopping managed postgres", "error", err)
			}
		}()
		cfg.Database.URL = url
	}

	if err := migrations.Run(cfg.Database.URL, direction, logger); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %s\n", direction)
	return nil
}
