// tryon-local runs the try-on API against a supervised local inference
// server instead of remote compute endpoints. It launches the server as a
// subprocess, waits for its health probe, and serves the same API over
// loopback.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
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
	"vton/internal/supervisor"
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

	svcCfg := config.LoadServiceConfig()
	storeCfg := config.LoadStoreConfig()
	if !storeCfg.Complete() {
		return fmt.Errorf("object store configuration incomplete: the local inference server shares results through the bucket")
	}

	command := strings.Fields(config.GetEnv("INFERENCE_COMMAND", ""))
	if len(command) == 0 {
		return fmt.Errorf("no inference server configured: set INFERENCE_COMMAND")
	}
	inferencePort := config.GetEnv("INFERENCE_PORT", "8188")
	baseURL := "http://127.0.0.1:" + inferencePort

	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	storeClient, err := store.NewS3Client(storeCfg)
	if err != nil {
		return err
	}

	// Launch the inference server and block until it answers its probe.
	sup := supervisor.New(supervisor.Config{
		Command:        command,
		Env:            []string{"PORT=" + inferencePort},
		HealthURL:      baseURL + "/ping",
		StartupTimeout: config.GetDurationEnv("INFERENCE_STARTUP_TIMEOUT", 2*time.Minute),
	})
	if err := sup.Start(ctx); err != nil {
		return err
	}
	defer sup.Stop()

	if err := sup.WaitReady(ctx); err != nil {
		return err
	}

	// The supervised server is the only compute endpoint.
	selector := endpoint.NewSelector([]endpoint.Endpoint{
		{ID: "local", BaseURL: baseURL},
	}, failsafe.BreakerConfig{})

	inv := invoker.New(svcCfg.JobTimeout)
	var jobWaiter waiter.Waiter
	switch svcCfg.CompletionMode {
	case config.CompletionPush:
		jobWaiter = waiter.NewPush(inv, 2*time.Minute)
	default:
		jobWaiter = waiter.NewSync(inv)
	}

	cleaner := cleanup.New(storeClient, cleanup.Config{}, metrics)
	coordinator := tryon.NewCoordinator(storeClient, selector, jobWaiter, cleaner, metrics, *svcCfg)
	healthChecker := health.NewChecker(storeClient, selector)

	router := api.NewRouter(api.RouterConfig{
		Coordinator:   coordinator,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
	})

	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: svcCfg.JobTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

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

	healthChecker.SetShuttingDown()
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	slog.Info("Starting graceful shutdown")
	shutdown(svcCfg.JobTimeout + 10*time.Second)

	cleanerCtx, cleanerCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cleanerCancel()
	if err := cleaner.Close(cleanerCtx); err != nil {
		slog.Warn("Cleanup shutdown error", "error", err)
	}

	if err := sup.Stop(); err != nil {
		slog.Warn("Inference server stop error", "error", err)
	}

	slog.Info("Shutdown complete")
	return nil
}
