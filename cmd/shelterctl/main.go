// Package main is shelterctl, the operator CLI for sheltertrack: API keys, migrations, exports.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kiranshivaraju/sheltertrack/internal/config"
	"github.com/kiranshivaraju/sheltertrack/internal/store"
	"github.com/spf13/cobra"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// app carries state shared by subcommands once PersistentPreRunE has loaded config.
type app struct {
	cfg *config.Config
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "shelterctl",
		Short: "Operate a sheltertrack deployment",
		Long: `shelterctl manages API keys, applies database migrations, and exports
animal records. It reads the same environment variables as the server
(STORE_DRIVER, DATABASE_URL, SQLITE_PATH, EXPORT_S3_BUCKET, ...).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	root.AddCommand(a.keysCmd(), a.migrateCmd(), a.exportCmd())
	return root
}

// openStore opens the configured store; callers must Close it.
func (a *app) openStore(ctx context.Context) (store.Store, error) {
	st, err := store.Open(ctx, a.cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}
