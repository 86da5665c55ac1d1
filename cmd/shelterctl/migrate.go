package main

import (
	"fmt"

	"github.com/kiranshivaraju/sheltertrack/internal/config"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
	"github.com/spf13/cobra"
)

func (a *app) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Long: `Apply pending schema migrations for the configured store.

PostgreSQL runs the files in MIGRATIONS_DIR. SQLite creates its schema on open.
The memory store has nothing to migrate.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			switch a.cfg.Store.Driver {
			case config.DriverPostgres:
				if err := store.RunMigrations(a.cfg.Database.URL, a.cfg.Store.MigrationsDir); err != nil {
					return fmt.Errorf("run migrations: %w", err)
				}
				fmt.Fprintf(out, "postgres schema up to date (%s)\n", a.cfg.Store.MigrationsDir)
			case config.DriverSQLite:
				st, err := store.NewSQLiteStore(a.cfg.Store.SQLitePath)
				if err != nil {
					return err
				}
				defer st.Close()
				fmt.Fprintf(out, "sqlite schema up to date (%s)\n", a.cfg.Store.SQLitePath)
			default:
				return fmt.Errorf("store driver %q has no schema to migrate", a.cfg.Store.Driver)
			}
			return nil
		},
	}
}
