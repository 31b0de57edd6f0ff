package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/qvnt33/agromat-it-desk-bot/internal/config"
	"github.com/qvnt33/agromat-it-desk-bot/internal/db"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration commands",
	}

	cmd.AddCommand(newMigrateSchemaCmd())
	cmd.AddCommand(newMigrateCopyCmd())
	return cmd
}

func newMigrateSchemaCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			gormDB, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(gormDB); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d tables on %s\n", len(db.AllModels()), cfg.Database.Driver)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deskbot.yaml", "path to deskbot config file")
	return cmd
}

func newMigrateCopyCmd() *cobra.Command {
	var configPath string
	var fromPath string

	cmd := &cobra.Command{
		Use:   "copy",
		Short: "Copy data from a SQLite file into the configured database",
		Long: `Copies all rows from a SQLite database file into the database named
in the config. Existing rows with the same keys are overwritten, so the
copy is safe to re-run after a partial failure.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			src, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: fromPath})
			if err != nil {
				return fmt.Errorf("open source %s: %w", fromPath, err)
			}
			dst, err := db.Connect(cfg.Database)
			if err != nil {
				return err
			}
			if err := db.AutoMigrate(dst); err != nil {
				return err
			}

			if err := db.Copy(src, dst); err != nil {
				return err
			}
			fmt.Fprintf(out, "Copied %s into %s database %s\n", fromPath, cfg.Database.Driver, cfg.Database.Database)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "deskbot.yaml", "path to deskbot config file")
	cmd.Flags().StringVar(&fromPath, "from", "deskbot.db", "path to the source SQLite file")
	return cmd
}
