package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jusunglee/mta-arrivals/api/handlers"
	"github.com/jusunglee/mta-arrivals/internal/config"
	"github.com/jusunglee/mta-arrivals/internal/logging"
	"github.com/jusunglee/mta-arrivals/internal/metrics"
	"github.com/jusunglee/mta-arrivals/pkg/mta"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath   = flag.String("config", "", "Config file (.yaml or .toml)")
		port         = flag.Int("port", 0, "Server port (overrides config)")
		apiKey       = flag.String("api-key", "", "MTA API key (overrides config and MTA_API_KEY)")
		stationsFile = flag.String("stations-file", "", "Stations JSON file (overrides config)")
		logFile      = flag.String("log-file", "", "Diagnostic log file (overrides config)")
		logLevel     = flag.String("log-level", "", "Log level (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *apiKey != "" {
		cfg.Feeds.APIKey = *apiKey
	}
	if *stationsFile != "" {
		cfg.Data.StationsFile = *stationsFile
	}
	if *logFile != "" {
		cfg.Log.File = *logFile
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, logCloser, err := logging.OpenDiagnosticLog(cfg.Log.File, logging.ParseLevel(cfg.Log.Level))
	if err != nil {
		return err
	}
	defer logging.SafeCloseWithLogging(logCloser, logger, "diagnostic_log")
	slog.SetDefault(logger)

	if cfg.Feeds.APIKey == "" {
		logger.Warn("no MTA API key configured; requests are sent without x-api-key")
	}

	m := metrics.New()
	clientCfg := mta.FromSettings(cfg)
	clientCfg.Logger = logger
	clientCfg.Metrics = m

	client, err := mta.NewLocal(clientCfg)
	if err != nil {
		return fmt.Errorf("create MTA client: %w", err)
	}
	defer client.Close()

	routerOpts := handlers.RouterOptions{
		Logger:    logger,
		RateLimit: cfg.Server.RateLimit,
	}
	if cfg.Server.MetricsPort == 0 {
		routerOpts.Metrics = m.Handler()
	}

	servers := []*http.Server{newServer(cfg.Server.Port, handlers.NewRouter(handlers.NewHandler(client, logger), routerOpts))}
	if cfg.Server.MetricsPort != 0 {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", m.Handler())
		servers = append(servers, newServer(cfg.Server.MetricsPort, metricsMux))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error {
			logging.LogOperation(logger, "server starting", slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Std())
		defer cancel()

		var errs []error
		for _, srv := range servers {
			if err := srv.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("shutdown %s: %w", srv.Addr, err))
			}
		}
		return errors.Join(errs...)
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("server stopped")
	return nil
}

func newServer(port int, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
