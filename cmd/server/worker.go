package main

import (
	"context"
	"log"

	"github.com/spf13/cobra"
)

func workerCMD(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Consume document ingestion jobs without serving HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			app, err := newApp(ctx, load)
			if err != nil {
				return err
			}
			defer closeApp(app)

			if err := app.StartWorkers(ctx); err != nil {
				return err
			}
			log.Printf("ingest worker running, pool size %d", app.Config.Worker.PoolSize)
			waitForSignal()
			return nil
		},
	}
}
