package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"techverse/marketplace/internal/api"
	"techverse/marketplace/internal/auth"
	"techverse/marketplace/internal/config"
	"techverse/marketplace/internal/media"
	"techverse/marketplace/internal/metrics"
	"techverse/marketplace/internal/store"
)

const sessionPurgeInterval = 10 * time.Minute

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := setup()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	st, err := openStore(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}()
	if st.Mode() == store.ModeMemory {
		data, err := store.DefaultSeed()
		if err != nil {
			return err
		}
		if _, err := st.Seed(ctx, data); err != nil {
			return errors.Wrap(err, "seed memory store")
		}
	}

	var sessions auth.SessionStore = st
	if cfg.RedisURL != "" {
		rs, err := auth.NewRedisSessions(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, keeping sessions in the main store")
		} else {
			defer rs.Close()
			sessions = rs
			log.Info().Msg("sessions stored in redis")
		}
	}

	images, err := media.New(cfg.MediaDir)
	if err != nil {
		return err
	}

	handler := api.New(api.Options{
		Store:         st,
		Sessions:      sessions,
		Media:         images,
		Metrics:       metrics.New(st.Mode()),
		Logger:        log,
		ModuleName:    cfg.ModuleName,
		SessionTTL:    cfg.SessionTTL,
		SessionCookie: cfg.SessionCookie,
		CookieSecure:  cfg.CookieSecure,
		AdminCode:     cfg.AdminRegistrationCode,
	}).Handler()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 2 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Str("mode", st.Mode()).Msg("marketplace listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		purgeSessions(gctx, st, log)
		return nil
	})
	return g.Wait()
}

// purgeSessions removes expired sessions from the store until ctx ends.
func purgeSessions(ctx context.Context, st *store.Store, log zerolog.Logger) {
	ticker := time.NewTicker(sessionPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.PurgeExpiredSessions(ctx)
			if err != nil {
				log.Warn().Err(err).Msg("purge expired sessions")
				continue
			}
			if n > 0 {
				log.Debug().Int64("removed", n).Msg("expired sessions purged")
			}
		}
	}
}
