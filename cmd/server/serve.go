package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/jun/notabl/backend/internal/app"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(ctx *commandContext) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API as a local HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := ctx.config()
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			application, err := app.NewApp(runCtx, cfg)
			if err != nil {
				return err
			}

			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           application,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.HTTPAddr).Str("backend", cfg.StorageBackend).Msg("starting local server")
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-runCtx.Done():
			}

			log.Info().Msg("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return errors.Join(srv.Shutdown(shutdownCtx), application.Shutdown(shutdownCtx))
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default HTTP_ADDR or :8080)")
	return cmd
}
