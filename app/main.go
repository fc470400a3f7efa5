package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pagecomb/pagecomb/app/api"
	"github.com/pagecomb/pagecomb/app/cache"
	"github.com/pagecomb/pagecomb/app/cfg"
	"github.com/pagecomb/pagecomb/app/database"
	"github.com/pagecomb/pagecomb/app/extract"
	"github.com/pagecomb/pagecomb/app/feed"
	"github.com/pagecomb/pagecomb/app/fetch"
	"github.com/pagecomb/pagecomb/app/tasks"
	"github.com/pagecomb/pagecomb/app/telemetry"
)

func main() {
	appCfg, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if appCfg == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(appCfg.Debug)

	slog.Info("Starting Page Comb server", "version", appCfg.Version)

	db, err := database.NewConnection(appCfg.DBHost, appCfg.DBPort, appCfg.DBUser,
		appCfg.DBPassword, appCfg.DBName)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database migrations applied", "version", version, "dirty", dirty)

	configCache := feed.NewConfigCache(appCfg.FeedsDir)
	if err := configCache.Run(); err != nil {
		slog.Error("Failed to load feed definitions", "error", err)
		os.Exit(1)
	}
	slog.Info("Feed definitions loaded", "count", configCache.GetConfigCount())

	feedRepo := database.NewFeedRepository(db)
	runRepo := database.NewRunRepository(db)
	itemRepo := database.NewItemRepository(db)

	registerFeeds(configCache, feedRepo)

	// A crash can leave runs stuck in scheduled/running, which blocks their
	// feeds from ever being picked up again. Close them before workers start.
	if swept, err := runRepo.FailOrphanedRuns("interrupted"); err != nil {
		slog.Error("Failed to close orphaned runs", "error", err)
		os.Exit(1)
	} else if swept > 0 {
		slog.Info("Closed orphaned runs from previous process", "count", swept)
	}

	var cooldowns cache.CooldownStore
	if appCfg.RedisAddr != "" {
		redisStore, err := cache.NewRedisStore(appCfg.RedisAddr)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisStore.Close()
		cooldowns = redisStore
		slog.Info("Using Redis cooldown store", "addr", appCfg.RedisAddr)
	} else {
		cooldowns = cache.NewMemoryStore()
		slog.Info("Using in-memory cooldown store")
	}

	breaker := fetch.NewBreakerRegistry(appCfg.BreakerFailures,
		time.Duration(appCfg.BreakerCooldown)*time.Second)
	fetcher := fetch.NewFetcher(breaker)
	extractor := extract.NewExtractor()
	feedSource := extract.NewFeedSource()
	deduplicator := feed.NewDeduplicator(itemRepo)
	sink := telemetry.SlogSink{}

	scheduler := tasks.NewScheduler(feedRepo, runRepo, fetcher, extractor, feedSource,
		deduplicator, cooldowns, sink)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Scheduler started", "workers", appCfg.WorkerCount,
		"tick_interval", appCfg.SchedulerInterval)

	apiHandler := api.NewHandler(feedRepo, runRepo, itemRepo, scheduler, breaker, appCfg.BaseUrl)
	server := api.NewServer(apiHandler, appCfg.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + appCfg.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", appCfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	slog.Info("Shutting down gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

// registerFeeds upserts every loaded feed definition into the database,
// reporting source URL changes.
func registerFeeds(configCache *feed.ConfigCache, feedRepo database.FeedRepository) {
	registered := 0
	urlChanged := 0

	for name, config := range configCache.GetConfigs() {
		dbID, changed, err := feedRepo.UpsertFeed(config.ToFeed())
		if err != nil {
			slog.Warn("Failed to register feed", "feed", name, "error", err)
			continue
		}

		if changed {
			slog.Info("Feed source URL updated", "feed", name, "db_id", dbID, "url", config.URL)
			urlChanged++
		} else {
			slog.Debug("Feed registered", "feed", name, "db_id", dbID, "url", config.URL)
		}
		registered++
	}

	slog.Info("Feeds registered", "registered", registered, "url_changed", urlChanged)
}
