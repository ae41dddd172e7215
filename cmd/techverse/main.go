// Command techverse runs the Tech Verse marketplace API and its maintenance tasks.
package main

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"techverse/marketplace/internal/config"
	"techverse/marketplace/internal/logging"
	"techverse/marketplace/internal/store"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "techverse",
		Short:        "Tech Verse marketplace API",
		SilenceUsage: true,
	}
	cmd.AddCommand(serveCmd(), migrateCmd(), createAdminCmd(), seedCmd())
	return cmd
}

// setup loads configuration and builds the root logger.
func setup() (config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, zerolog.Nop(), err
	}
	return cfg, logging.New(os.Stderr, cfg.LogLevel, cfg.LogFormat), nil
}

func storeOptions(cfg config.Config, log zerolog.Logger) store.Options {
	return store.Options{
		CacheTTL:          cfg.CacheTTL,
		LowStockThreshold: cfg.LowStockThreshold,
		Logger:            log,
	}
}

// openStore migrates and connects to postgres. With allowMemory set, a missing
// or unreachable database yields a memory store instead of an error.
func openStore(ctx context.Context, cfg config.Config, log zerolog.Logger, allowMemory bool) (*store.Store, error) {
	dsn := cfg.DSN()
	fallback := func(err error) (*store.Store, error) {
		if !allowMemory {
			return nil, err
		}
		log.Warn().Err(err).Msg("database unavailable, running in memory mode")
		return store.New(nil, storeOptions(cfg, log)), nil
	}
	if dsn == "" {
		return fallback(errNoDatabase)
	}
	if err := store.Migrate(ctx, dsn); err != nil {
		return fallback(err)
	}
	db, err := store.Connect(ctx, store.DBConfig{
		DSN:             dsn,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxIdle:     cfg.DBConnMaxIdle,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		return fallback(err)
	}
	return store.New(db, storeOptions(cfg, log)), nil
}
