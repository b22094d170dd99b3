// Package main is the entry point for the newsfeed API server. With
// -generate it instead regenerates the listed users' feeds and exits.
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
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/onnwee/newsfeed/internal/api"
	"github.com/onnwee/newsfeed/internal/auth"
	"github.com/onnwee/newsfeed/internal/config"
	"github.com/onnwee/newsfeed/internal/health"
	"github.com/onnwee/newsfeed/internal/jobs"
	"github.com/onnwee/newsfeed/internal/middleware"
	"github.com/onnwee/newsfeed/internal/tracing"
	"github.com/onnwee/newsfeed/internal/validate"
)

const version = "0.1.0"

func main() {
	help := flag.Bool("help", false, "display help message")
	configPath := flag.String("config", "", "path to a YAML config file; environment variables take precedence")
	generate := flag.String("generate", "", "comma-separated user IDs to regenerate, then exit")
	concurrency := flag.Int("concurrency", jobs.DefaultConcurrency, "parallel generations with -generate")
	flag.Parse()

	if *help {
		fmt.Println("Newsfeed API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configPath)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintln(os.Stderr, "config error:", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	tp, err := tracing.NewProvider(tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: version,
		Enabled:        cfg.TracingEnabled,
		Environment:    cfg.Env,
		ExporterType:   cfg.TracingExporter,
		OTLPEndpoint:   cfg.TracingEndpoint,
		SamplingRate:   cfg.TracingSamplingRate,
		InsecureMode:   cfg.TracingInsecure,
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}

	if *generate != "" {
		err = runBatch(cfg, logger, splitUserIDs(*generate), *concurrency)
	} else {
		err = serve(cfg, logger)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if shutdownErr := tp.Shutdown(ctx); shutdownErr != nil {
		logger.Error("failed to flush traces", "error", shutdownErr)
	}
	cancel()

	if err != nil {
		logger.Error("exiting", "error", err)
		os.Exit(1)
	}
}

func serve(cfg *config.Config, logger *slog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	components, err := InitNewsfeed(context.Background(), cfg, logger, reg)
	if err != nil {
		return err
	}
	defer components.Close()

	httpMetrics := middleware.NewMetrics()
	if err := httpMetrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register http metrics: %w", err)
	}

	healthConfig := api.HealthHandlersConfig{
		RedisChecker:   health.NewRedisChecker(components.Redis, cfg.TopPostsKey),
		MetricsEnabled: true,
	}
	if components.DB != nil {
		healthConfig.DBChecker = health.NewDBChecker(components.DB)
	}

	handler := newRouter(routerDeps{
		Logger:    logger,
		Generator: components.Generator,
		Feeds:     components.Store,
		Tokens: auth.NewJWTService(auth.Options{
			Secret:         cfg.JWTSecret,
			PreviousSecret: cfg.JWTPreviousSecret,
		}),
		RateStore:   middleware.NewRedisRateLimitStore(components.Redis),
		RateLimit:   middleware.RateLimitConfig{RequestsPerWindow: cfg.GenerateRateLimit, WindowDuration: time.Minute},
		Health:      api.NewHealthHandlers(healthConfig),
		Gatherer:    reg,
		HTTPMetrics: httpMetrics,
	})

	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	case <-quit:
	}

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// runBatch regenerates userIDs once and pushes the run's metrics when a
// Pushgateway is configured. Any failed user makes the run fail.
func runBatch(cfg *config.Config, logger *slog.Logger, userIDs []string, concurrency int) error {
	if len(userIDs) == 0 {
		return errors.New("-generate needs at least one user ID")
	}
	for _, id := range userIDs {
		if _, err := validate.UserID(id); err != nil {
			return fmt.Errorf("invalid user ID %q: %w", id, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	components, err := InitNewsfeed(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer components.Close()

	jobMetrics := jobs.NewMetrics()
	if err := jobMetrics.Register(reg); err != nil {
		return fmt.Errorf("failed to register job metrics: %w", err)
	}

	report := jobs.RunBatch(ctx, components.Generator, userIDs, jobs.BatchConfig{
		Concurrency: concurrency,
		Logger:      logger,
		Metrics:     jobMetrics,
	})

	if cfg.PushgatewayURL != "" {
		if err := push.New(cfg.PushgatewayURL, jobs.JobTypeNewsfeedBatch).Gatherer(reg).Push(); err != nil {
			logger.Warn("failed to push batch metrics", "error", err)
		}
	}

	if len(report.Failed) > 0 {
		return fmt.Errorf("%d of %d newsfeed generations failed", len(report.Failed), len(report.Failed)+report.Succeeded)
	}
	return nil
}

// splitUserIDs parses a comma-separated list, dropping blanks.
func splitUserIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
