// The adstrends server resolves keyword metrics from the ad platform
// and the web trends provider, with caching and an async job queue.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/lwoyr/AdsTrendsAPI/internal/config"
	"github.com/lwoyr/AdsTrendsAPI/pkg/ads"
	"github.com/lwoyr/AdsTrendsAPI/pkg/cache"
	"github.com/lwoyr/AdsTrendsAPI/pkg/coordinator"
	"github.com/lwoyr/AdsTrendsAPI/pkg/gateway"
	"github.com/lwoyr/AdsTrendsAPI/pkg/metrics"
	"github.com/lwoyr/AdsTrendsAPI/pkg/queue"
	"github.com/lwoyr/AdsTrendsAPI/pkg/shared/logging"
	"github.com/lwoyr/AdsTrendsAPI/pkg/trends"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to an optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	m := metrics.New()

	cacheManager := cache.New(cfg.Cache, cfg.Redis, logger.Named("cache"), m)
	defer func() { _ = cacheManager.Close() }()

	adsAdapter := ads.New(cfg.Ads, logger.Named("ads"), m)
	trendsAdapter := trends.New(cfg.Trends, logger.Named("trends"), m)
	jobQueue := queue.New(cfg.Queue.MaxConcurrent, cfg.Queue.BatchDelay, logger.Named("queue"), m)

	service := coordinator.New(cacheManager, adsAdapter, trendsAdapter, jobQueue, logger.Named("coordinator"))
	server := gateway.New(cfg.Server, service, logger, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("service started",
		zap.String("addr", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)),
		zap.String("cache_backend", cacheManager.BackendName()))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown failed: %w", err)
		}
	}

	logger.Info("service stopped cleanly")
	return nil
}
