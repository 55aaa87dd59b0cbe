package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/zoreu/cfresolver/internal/browser"
	"github.com/zoreu/cfresolver/internal/config"
	"github.com/zoreu/cfresolver/internal/observability"
	"github.com/zoreu/cfresolver/internal/proxy"
	"github.com/zoreu/cfresolver/internal/server"
)

func newServeCmd() *cobra.Command {
	var warmup bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the browser proxy HTTP server.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := initializeConfig()
			if err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg, warmup)
		},
	}

	cmd.Flags().BoolVar(&warmup, "warmup", false, "start the browser engine eagerly instead of on the first request")
	return cmd
}

// components holds the initialized services behind the HTTP surface.
type components struct {
	orchestrator *proxy.Orchestrator
	registry     *prometheus.Registry
}

// shutdown releases resources in reverse initialization order. The
// browser engine is torn down exactly once here, after the HTTP server
// has stopped accepting requests.
func (c *components) shutdown(logger *zap.Logger) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	c.orchestrator.Shutdown(shutdownCtx)
	logger.Info("All components shut down")
}

// buildComponents wires config, metrics, session, dispatcher, recovery
// and orchestrator together.
func buildComponents(cfg *config.Config, logger *zap.Logger) *components {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(registry)

	session := browser.NewSession(cfg.Browser, logger, metrics)
	dispatcher := proxy.NewDispatcher(cfg.Upstream, logger)
	recovery := proxy.NewRestartPolicy(logger, metrics)
	orchestrator := proxy.NewOrchestrator(session, dispatcher, recovery, logger, metrics)

	return &components{
		orchestrator: orchestrator,
		registry:     registry,
	}
}

func runServe(ctx context.Context, cfg *config.Config, warmup bool) error {
	logger := observability.GetLogger()
	logger.Info("Starting cfresolver", zap.String("version", Version))
	defer observability.Sync()

	comps := buildComponents(cfg, logger)
	defer comps.shutdown(logger)

	if warmup {
		// The first fetch pays the engine start cost otherwise.
		if _, err := comps.orchestrator.Session().Acquire(ctx); err != nil {
			return fmt.Errorf("failed to warm up browser engine: %w", err)
		}
		comps.orchestrator.Session().Clear(ctx)
		logger.Info("Browser engine warmed up")
	}

	handlers := server.NewHandlers(comps.orchestrator, comps.orchestrator.Session(), logger)
	srv := server.New(cfg.Server, handlers, comps.registry, logger)
	return srv.Run(ctx)
}
