package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/og-worker/internal/logging"
	"github.com/JakeFAU/og-worker/internal/storage/postgres"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "migrate [up|down|status]",
		Short:     "Applies the embedded Postgres migrations",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{postgres.MigrateUp, postgres.MigrateDown, postgres.MigrateStatus},
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := resolveEnv(cmd.Context())
			if err != nil {
				return err
			}
			command := postgres.MigrateUp
			if len(args) == 1 {
				command = args[0]
			}

			pool, err := postgres.NewPool(cmd.Context(), postgres.Config{
				DSN:      e.cfg.DB.DSN,
				MaxConns: e.cfg.DB.MaxConns,
				MinConns: e.cfg.DB.MinConns,
			})
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			defer pool.Close()

			return postgres.Migrate(cmd.Context(), pool, command, logging.Component(e.logger, "migrate"))
		},
	}
}
