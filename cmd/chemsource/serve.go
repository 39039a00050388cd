package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/c360studio/chemsource/api"
	"github.com/c360studio/chemsource/config"
	"github.com/c360studio/chemsource/pipeline"
)

const shutdownTimeout = 10 * time.Second

func serveCmd(c *cli) *cobra.Command {
	var (
		addr  string
		watch bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve /v1/retrieve, /v1/classify, /v1/chemsource, /healthz and /metrics.

With --watch (or server.watch_config) and --config, edits to the config file
rebuild the pipeline without restarting the server.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := c.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("watch") {
				cfg.Server.WatchConfig = watch
			}

			lis, err := net.Listen("tcp", cfg.Server.Addr)
			if err != nil {
				return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
			}

			s := &server{cli: c, logger: logger}
			return s.run(cmd.Context(), cfg, lis)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Rebuild the pipeline when the config file changes")
	return cmd
}

// server owns the HTTP listener and swaps pipelines on config reload.
type server struct {
	cli    *cli
	logger *slog.Logger
}

func (s *server) run(ctx context.Context, cfg *config.Config, lis net.Listener) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := pipeline.NewMetrics(reg)

	p, err := pipeline.New(*cfg, pipeline.WithMetricsCollector(metrics), pipeline.WithLogger(s.logger))
	if err != nil {
		return err
	}
	if err := cfg.RequireModelKey(); err != nil {
		s.logger.Warn("No model key configured; classification endpoints will fail", "error", err)
	}

	handler := api.NewHTTPHandler(p, api.WithGatherer(reg), api.WithLogger(s.logger))
	mux := http.NewServeMux()
	handler.RegisterHTTPHandlers(mux)

	if cfg.Server.WatchConfig {
		stop, err := s.watch(ctx, handler, metrics)
		if err != nil {
			return err
		}
		defer stop()
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Serving HTTP API", "addr", lis.Addr().String())
		errCh <- srv.Serve(lis)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("Received shutdown signal")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

// watch rebuilds the pipeline whenever the --config file changes. Reloads go
// through the full layered loader so env overrides still apply.
func (s *server) watch(ctx context.Context, handler *api.HTTPHandler, metrics *pipeline.Metrics) (func(), error) {
	if s.cli.configPath == "" {
		s.logger.Warn("Config watching needs --config; not watching")
		return func() {}, nil
	}

	loader := config.NewLoader(s.logger)
	watcher, err := config.NewWatcher(s.cli.configPath, s.logger, config.WithLoadFunc(loader.Load))
	if err != nil {
		return nil, fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Start(ctx); err != nil {
		return nil, fmt.Errorf("start config watcher: %w", err)
	}

	go func() {
		for reload := range watcher.Reloads() {
			if reload.Err != nil {
				s.logger.Warn("Config reload rejected; keeping current pipeline",
					"path", reload.Path,
					"error", reload.Err)
				continue
			}

			p, err := pipeline.New(*reload.Config, pipeline.WithMetricsCollector(metrics), pipeline.WithLogger(s.logger))
			if err != nil {
				s.logger.Warn("Pipeline rebuild failed; keeping current pipeline", "error", err)
				continue
			}
			handler.Swap(p)
			s.logger.Info("Pipeline reloaded", "path", reload.Path, "model", reload.Config.Model.Name)
		}
	}()

	return func() { _ = watcher.Stop() }, nil
}
