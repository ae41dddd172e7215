package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"techverse/marketplace/internal/store"
)

var errNoDatabase = errors.New("no database configured: set DATABASE_URL or DB_HOST")

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			dsn := cfg.DSN()
			if dsn == "" {
				return errNoDatabase
			}
			if err := store.Migrate(cmd.Context(), dsn); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
