package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/goyp/internal/logger"
	"github.com/marmos91/goyp/pkg/config"
	"github.com/marmos91/goyp/pkg/server"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the configured NIS responders",
		Long: `Run the portmap, ypserv, ypbind and yppasswdd responders enabled in
the server section of the configuration, serving the maps it names.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), a.cfg)
		},
	}
}

func runServe(ctx context.Context, cfg *config.Config) error {
	m := config.InitializeMetrics(cfg)

	st, err := config.CreateStore(ctx, &cfg.Server.Store)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("Store close error: %v", err)
		}
	}()

	n, err := config.LoadMaps(ctx, st, &cfg.Server)
	if err != nil {
		return fmt.Errorf("failed to load maps: %w", err)
	}
	logger.Info("Loaded %d map entries for domain %s", n, cfg.Server.Domain)

	adapters, err := config.CreateAdapters(cfg, m.Server)
	if err != nil {
		return err
	}

	srv := server.New(st)
	for _, adp := range adapters {
		if err := srv.AddAdapter(adp); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	metricsDone := make(chan error, 1)
	if m.HTTP != nil {
		go func() {
			metricsDone <- m.HTTP.Start(ctx)
		}()
	} else {
		close(metricsDone)
	}

	logger.Info("Serving domain %s. Press Ctrl+C to stop.", cfg.Server.Domain)

	err = srv.Serve(ctx)
	cancel()
	if mErr := <-metricsDone; mErr != nil {
		logger.Error("Metrics server error: %v", mErr)
	}

	if errors.Is(err, context.Canceled) {
		logger.Info("Server stopped gracefully")
		return nil
	}
	return err
}
