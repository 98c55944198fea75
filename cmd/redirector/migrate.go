package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/click-redirector/internal/logging"
	pgstore "github.com/JakeFAU/click-redirector/internal/storage/postgres"
)

func newMigrateCmd(load configLoader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema.",
	}
	run := func(action func(*pgstore.Migrator, *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Database.DSN == "" {
				return errors.New("database.dsn is required for migrations")
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			defer logger.Sync() //nolint:errcheck // best-effort flush
			m, err := pgstore.NewMigrator(cfg.Database.DSN, logger.Named("migrate"))
			if err != nil {
				return err
			}
			defer func() {
				if cerr := m.Close(); cerr != nil {
					logger.Warn("migrator close failed", zap.Error(cerr))
				}
			}()
			return action(m, cmd)
		}
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations.",
		Args:  cobra.NoArgs,
		RunE: run(func(m *pgstore.Migrator, _ *cobra.Command) error {
			return m.Up()
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the most recent migration.",
		Args:  cobra.NoArgs,
		RunE: run(func(m *pgstore.Migrator, _ *cobra.Command) error {
			return m.Down()
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version.",
		Args:  cobra.NoArgs,
		RunE: run(func(m *pgstore.Migrator, cmd *cobra.Command) error {
			version, dirty, err := m.Version()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "version=%d dirty=%t\n", version, dirty)
			return err
		}),
	})
	return cmd
}
