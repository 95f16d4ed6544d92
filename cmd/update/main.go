package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"cloudmarketwatch/internal/config"
	"cloudmarketwatch/internal/ec2"
	"cloudmarketwatch/internal/ingestion"
	"cloudmarketwatch/internal/lock"
	"cloudmarketwatch/internal/observability"
	"cloudmarketwatch/internal/storage"
	chstore "cloudmarketwatch/internal/storage/clickhouse"
	pgstore "cloudmarketwatch/internal/storage/postgres"
)

// redisLockKey names the run lease shared by every host running this job.
const redisLockKey = "cloudmarketwatch:update"

func main() {
	logger := log.New(os.Stdout, "[update] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Config error: %v", err)
	}

	// Start metrics server if enabled
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RunDeadline)
	defer cancel()

	// Handle shutdown signals with graceful timeout
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	go func() {
		select {
		case sig := <-sigCh:
			logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
			cancel()
		case <-done:
			return
		}

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	err = run(ctx, logger, cfg)
	close(done)

	if err != nil {
		logger.Fatalf("Error: %v", err)
	}
}

// run wires the storage, source and lock, then executes one ingestion run.
func run(ctx context.Context, logger *log.Logger, cfg *config.Config) error {
	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	store := pgstore.NewStore(pool)

	// Optional analytics mirror
	var analytics storage.PriceAnalyticsStore
	if cfg.ClickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return err
		}
		defer conn.Close()
		analytics = chstore.NewPriceHistoryStore(conn)
	}

	source := ec2.NewClient(cfg.AWSAccessKeyID, cfg.AWSSecretAccessKey,
		ec2.WithTimeout(cfg.RequestTimeout))

	runLock := buildLock(cfg, logger)

	coordinator := ingestion.NewRunCoordinator(ingestion.CoordinatorOptions{
		Store:           store,
		Source:          source,
		Lock:            runLock,
		Analytics:       analytics,
		Platform:        cfg.Platform,
		Regions:         cfg.Regions,
		RegionBlacklist: cfg.RegionBlacklist,
		BatchSize:       cfg.BatchSize,
		DefaultLookback: cfg.DefaultLookback,
		Logger:          logger,
	})

	result, err := coordinator.Run(ctx)
	if err != nil {
		return err
	}
	if result.Skipped {
		logger.Println("Run skipped, another instance holds the lock")
	}
	return nil
}

// buildLock picks the run lock implementation: a Redis lease when REDIS_ADDR
// is set, an OS file lock otherwise.
func buildLock(cfg *config.Config, logger *log.Logger) lock.RunLock {
	if cfg.RedisAddr != "" {
		logger.Printf("Using redis run lock at %s", cfg.RedisAddr)
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		// Lease must outlive the run deadline so a live run is never evicted.
		ttl := cfg.RunDeadline + 15*time.Minute
		return lock.NewRedisLock(client, redisLockKey, ttl)
	}

	path := cfg.LockPath
	if path == "" {
		path = lock.DefaultLockPath("cloudmarketwatch-update")
	}
	logger.Printf("Using file run lock at %s", path)
	return lock.NewFileLock(path)
}
