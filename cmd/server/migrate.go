package main

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jun/notabl/backend/internal/adapter/postgres"
)

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	var dsn string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the PostgreSQL schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.config()
			if dsn == "" {
				dsn = cfg.DatabaseURL
			}
			if dsn == "" {
				return errors.New("DATABASE_URL or --dsn is required")
			}

			provider, err := postgres.Open(dsn)
			if err != nil {
				return err
			}
			defer func() {
				if err := provider.Close(); err != nil {
					log.Warn().Err(err).Msg("failed to close database")
				}
			}()
			return provider.Migrate(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", "", "PostgreSQL connection string (default DATABASE_URL)")
	return cmd
}
