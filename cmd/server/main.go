package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docqa/internal/bootstrap"
	"docqa/internal/config"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:          "docqa",
		Short:        "Ask questions about uploaded documents",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default $CONFIG_FILE or configs/config.toml)")

	load := func() (*config.Config, error) {
		if cfgPath == "" {
			return config.Load()
		}
		return config.LoadFile(cfgPath)
	}

	root.AddCommand(serveCMD(load), workerCMD(load), reingestCMD(load))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

type configLoader func() (*config.Config, error)

func newApp(ctx context.Context, load configLoader) (*bootstrap.App, error) {
	cfg, err := load()
	if err != nil {
		return nil, err
	}
	return bootstrap.New(ctx, cfg)
}

func closeApp(app *bootstrap.App) {
	if err := app.Close(); err != nil {
		log.Printf("close resources failed: %v", err)
	}
}

func waitForSignal() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
}
