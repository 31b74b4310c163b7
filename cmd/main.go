package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/avetra/prospect/internal/adapters/http/api"
	"github.com/avetra/prospect/internal/adapters/http/swagger"
	"github.com/avetra/prospect/internal/adapters/providers"
	"github.com/avetra/prospect/internal/adapters/repository"
	app "github.com/avetra/prospect/internal/app"
	"github.com/avetra/prospect/internal/config"
	"github.com/avetra/prospect/internal/domain/fallback"
	"github.com/avetra/prospect/internal/domain/scoring"
	"github.com/avetra/prospect/internal/domain/transform"
	"github.com/avetra/prospect/pkg/logger"
	"github.com/avetra/prospect/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// HTTP server timeout constants.
const (
	idleTimeout               = 60 * time.Second
	readHeaderTimeout         = 5 * time.Second
	shutdownTimeout           = 30 * time.Second
	systemMetricsInterval     = 10 * time.Second
	serviceMetricsInterval    = 5 * time.Second
	nanosecondsPerMillisecond = 1e6
)

func main() {
	// Disable default Go metrics collection to avoid duplicate metrics
	// We collect our own custom system metrics instead
	prometheus.Unregister(collectors.NewGoCollector())
	prometheus.Unregister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Initialize logging
	if err := logger.Init(); err != nil {
		// Use stderr for initialization errors since logger isn't available yet
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return
	}
	defer func() { _ = logger.Sync() }()

	loggerInstance := logger.Get()

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return
	}

	// Apply configured log level (fallback to info on invalid input)
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		loggerInstance.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	// Assemble the pipeline: provider chain, transformer, scorer, store.
	chain, err := buildChain(cfg)
	if err != nil {
		os.Stderr.WriteString("failed to build provider chain: " + err.Error() + "\n")
		return
	}

	store, err := buildStore(cfg)
	if err != nil {
		os.Stderr.WriteString("failed to open repository: " + err.Error() + "\n")
		return
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	svc, err := app.New(
		chain,
		transform.New(),
		scoring.New(scoring.WithThreshold(cfg.QualityThreshold)),
		store,
		app.WithLogger(loggerInstance),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.QueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithRedeliveryMax(cfg.RedeliveryMax),
		app.WithBudget(time.Duration(cfg.BatchBudgetMS)*time.Millisecond),
		app.WithQualityRetries(cfg.QualityRetries),
		app.WithQualityRetryDelay(time.Duration(cfg.QualityRetryDelayMS)*time.Millisecond),
		app.WithBatchLimits(cfg.BatchLimit, cfg.MaxBatchLimit),
	)
	if err != nil {
		os.Stderr.WriteString("failed to build service: " + err.Error() + "\n")
		return
	}
	if err := svc.Start(ctx); err != nil {
		os.Stderr.WriteString("failed to start service: " + err.Error() + "\n")
		return
	}
	defer svc.Stop()

	metrics.UpdateQueueCapacity(cfg.QueueSize)

	// Start system metrics updater
	go startSystemMetricsUpdater(ctx)

	// Start service metrics updater
	go startServiceMetricsUpdater(ctx, svc, cfg.QueueSize)

	// HTTP mux and routes.
	mux := http.NewServeMux()

	// Register the OpenAPI document and viewer.
	swagger.Register(ctx, mux)

	// Register business API routes with the service dependency.
	apiServer := api.NewServer(svc, svc)
	apiServer.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       time.Duration(cfg.ReadTimeoutMS) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.WriteTimeoutMS) * time.Millisecond,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	// Start the HTTP server
	go func() {
		loggerInstance.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			os.Stderr.WriteString("HTTP server failed: " + err.Error() + "\n")
			return
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()
	loggerInstance.Info(ctx, "shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		loggerInstance.Error(ctx, "server shutdown failed", logger.Error(err))
	}

	loggerInstance.Info(ctx, "server stopped")
}

// buildChain assembles the provider fallback chain in configured order.
// Credentials stay opaque here; a provider missing its key reports itself
// unconfigured and the chain skips past it at fetch time.
func buildChain(cfg *config.Config) (*fallback.Chain, error) {
	requestTimeout := time.Duration(cfg.RequestTimeoutMS) * time.Millisecond

	fetchers := make([]fallback.Fetcher, 0, len(cfg.ProviderChain))
	for _, name := range cfg.ProviderChain {
		switch name {
		case config.ProviderRapidAPI:
			fetchers = append(fetchers, providers.NewRapidAPI(cfg.RapidAPIKey, cfg.RapidAPIHost,
				providers.WithBaseURL(cfg.RapidAPIBaseURL),
				providers.WithTimeout(requestTimeout),
				providers.WithRateLimit(cfg.RapidAPIRate, cfg.RateBurst),
			))
		case config.ProviderScrapfly:
			fetchers = append(fetchers, providers.NewScrapfly(cfg.ScrapflyKey,
				providers.WithBaseURL(cfg.ScrapflyBaseURL),
				providers.WithTimeout(requestTimeout),
				providers.WithRateLimit(cfg.ScrapflyRate, cfg.RateBurst),
			))
		case config.ProviderProxycurl:
			fetchers = append(fetchers, providers.NewProxycurl(cfg.ProxycurlKey,
				providers.WithBaseURL(cfg.ProxycurlBaseURL),
				providers.WithTimeout(requestTimeout),
				providers.WithRateLimit(cfg.ProxycurlRate, cfg.RateBurst),
			))
		default:
			return nil, fmt.Errorf("unknown provider %q", name)
		}
	}

	return fallback.New(fetchers,
		fallback.WithMaxAttempts(cfg.RetryMaxAttempts),
		fallback.WithBaseDelay(time.Duration(cfg.RetryBaseDelayMS)*time.Millisecond),
		fallback.WithMaxDelay(time.Duration(cfg.RetryMaxDelayMS)*time.Millisecond),
		fallback.WithAttemptTimeout(requestTimeout),
	)
}

// buildStore selects the node repository backend.
func buildStore(cfg *config.Config) (repository.Store, error) {
	switch cfg.RepositoryKind {
	case config.RepositoryREST:
		return repository.NewRESTStore(cfg.RepositoryBaseURL, cfg.RepositoryAPIKey,
			repository.WithTimeout(time.Duration(cfg.RepositoryTimeoutMS)*time.Millisecond),
		), nil
	case config.RepositorySQLite:
		return repository.NewSQLiteStore(cfg.SQLitePath)
	default:
		return repository.NewMemoryStore(), nil
	}
}

// startSystemMetricsUpdater starts a background goroutine that updates system metrics.
func startSystemMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(systemMetricsInterval) // Update every 10 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateSystemMetrics()
		}
	}
}

// startServiceMetricsUpdater starts a background goroutine that updates service metrics.
func startServiceMetricsUpdater(ctx context.Context, svc *app.Service, queueCapacity int) {
	ticker := time.NewTicker(serviceMetricsInterval) // Update every 5 seconds
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateServiceMetrics(ctx, svc, queueCapacity)
		}
	}
}

// updateSystemMetrics updates system-level metrics.
func updateSystemMetrics() {
	// Update memory usage
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	metrics.UpdateSystemMemoryUsage(m.Alloc)

	// Update goroutine count
	metrics.UpdateSystemGoroutineCount(runtime.NumGoroutine())

	// Update GC pause time
	if m.NumGC > 0 {
		// Calculate average GC pause time
		avgPauseMs := float64(m.PauseTotalNs) / float64(m.NumGC) / nanosecondsPerMillisecond
		metrics.RecordSystemGCPauseTime(avgPauseMs)
	}
}

// updateServiceMetrics updates service-level metrics.
func updateServiceMetrics(ctx context.Context, svc *app.Service, queueCapacity int) {
	// GetStats already pushes the queue depth gauge; derive utilization
	// and the worker gauge from the same snapshot.
	stats := svc.GetStats(ctx)

	if depth, ok := stats["queue_depth"].(int); ok && queueCapacity > 0 {
		metrics.UpdateQueueUtilization(float64(depth) / float64(queueCapacity))
	}

	if workers, ok := stats["workers"].(int); ok {
		metrics.UpdateWorkerActiveCount(workers)
	}
}
