package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"staykeeper/internal/infra/config"
	ginserver "staykeeper/internal/infra/http/gin"
	"staykeeper/internal/infra/obs"
)

func newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the outbox relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.HTTPAddr = addr
			}
			logger := obs.NewLogger(cfg.Env)
			ctx := cmd.Context()

			app, err := buildApplication(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := app.Close(closeCtx); err != nil {
					logger.Error("shutdown cleanup failed", "error", err)
				}
			}()

			server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{Checks: app.checks}, app.handlers)

			workerDone := make(chan struct{})
			if app.worker != nil {
				go func() {
					defer close(workerDone)
					if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
						logger.Error("outbox worker stopped", "error", err)
					}
				}()
			} else {
				close(workerDone)
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("http shutdown failed", "error", err)
				}
			}()

			logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "store", cfg.StoreBackend, "locks", cfg.LockBackend)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			<-workerDone
			logger.Info("HTTP server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides HTTP_ADDR")
	return cmd
}
