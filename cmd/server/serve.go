package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httptransport "docqa/internal/transport/http"
)

func serveCMD(load configLoader) *cobra.Command {
	var withWorkers bool
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			app, err := newApp(ctx, load)
			if err != nil {
				return err
			}
			defer closeApp(app)

			if withWorkers {
				if err := app.StartWorkers(ctx); err != nil {
					return err
				}
			}

			server := &http.Server{
				Addr:              app.Config.HTTPAddr(),
				Handler:           httptransport.NewRouter(app),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Printf("server starting on %s", server.Addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- err
				}
			}()

			go func() {
				waitForSignal()
				errCh <- nil
			}()
			serveErr := <-errCh

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("server shutdown failed: %v", err)
			}
			return serveErr
		},
	}
	serve.Flags().BoolVar(&withWorkers, "with-workers", true, "also consume ingestion jobs in this process")
	return serve
}
