// tryon-service is the HTTP gateway that dispatches virtual try-on jobs to
// remote compute endpoints over a shared object store.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vton/internal/api"
	"vton/internal/cleanup"
	"vton/internal/config"
	"vton/internal/endpoint"
	"vton/internal/health"
	"vton/internal/invoker"
	"vton/internal/observability"
	"vton/internal/store"
	"vton/internal/tryon"
	"vton/internal/waiter"
	"vton/pkg/failsafe"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	storeCfg := config.LoadStoreConfig()
	if !storeCfg.Complete() {
		return fmt.Errorf("object store configuration incomplete: S3_ENDPOINT_URL, S3_ACCESS_KEY_ID, S3_SECRET_ACCESS_KEY and S3_BUCKET are required")
	}

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Object store client
	storeClient, err := store.NewS3Client(storeCfg)
	if err != nil {
		return err
	}
	slog.Info("Object store configured", "bucket", storeCfg.Bucket, "region", storeCfg.Region)

	// Compute endpoints
	endpoints := endpoint.LoadFromEnv()
	if len(endpoints) == 0 {
		return fmt.Errorf("no compute endpoints configured: set COMPUTE_ENDPOINTS")
	}
	selector := endpoint.NewSelector(endpoints, failsafe.BreakerConfig{})
	slog.Info("Compute endpoints configured", "count", len(endpoints))

	// Worker invocation and completion detection
	inv := invoker.New(svcCfg.JobTimeout)
	var jobWaiter waiter.Waiter
	switch svcCfg.CompletionMode {
	case config.CompletionPush:
		jobWaiter = waiter.NewPush(inv, 2*time.Minute)
	default:
		jobWaiter = waiter.NewSync(inv)
	}
	slog.Info("Completion mode", "mode", svcCfg.CompletionMode, "delivery", svcCfg.ResultDelivery)

	// Staged input cleanup
	cleaner := cleanup.New(storeClient, cleanup.Config{}, metrics)

	// Job coordinator
	coordinator := tryon.NewCoordinator(storeClient, selector, jobWaiter, cleaner, metrics, *svcCfg)

	// Health checker
	healthChecker := health.NewChecker(storeClient, selector)

	// API router
	router := api.NewRouter(api.RouterConfig{
		Coordinator:   coordinator,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY configured")
	}

	// API server. Write timeout must cover a full synchronous job.
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: svcCfg.JobTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		metricsHandler.ServeHTTP(w, r)
	}))
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: flip readiness so load balancers stop sending traffic
	healthChecker.SetShuttingDown()
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: stop accepting connections, finish in-flight jobs
	slog.Info("Starting graceful shutdown")
	shutdown(svcCfg.JobTimeout + 10*time.Second)

	// Phase 3: drain the cleanup queue
	slog.Info("Draining cleanup queue")
	cleanerCtx, cleanerCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cleanerCancel()
	if err := cleaner.Close(cleanerCtx); err != nil {
		slog.Warn("Cleanup shutdown error", "error", err)
	}

	stats := cleaner.Stats()
	slog.Info("Cleanup stats",
		"deleted", stats.Deleted,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	slog.Info("Shutdown complete")
	return nil
}
